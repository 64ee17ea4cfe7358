// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package graph

import (
	"image"

	"github.com/gogpu/styletransfer/kernel"
)

// Access is how a pass uses a resource.
type Access int

const (
	// AccessRead marks a resource the pass only reads.
	AccessRead Access = iota

	// AccessWrite marks a resource the pass writes.
	AccessWrite
)

// String returns the access name.
func (a Access) String() string {
	if a == AccessWrite {
		return "write"
	}
	return "read"
}

// Binding attaches a buffer or an image to a pass.
// Exactly one of Buffer and Image is set.
type Binding struct {
	Buffer *Buffer
	Image  *Image
	Access Access
}

// ReadBuffer binds b for reading.
func ReadBuffer(b *Buffer) Binding { return Binding{Buffer: b, Access: AccessRead} }

// WriteBuffer binds b for writing.
func WriteBuffer(b *Buffer) Binding { return Binding{Buffer: b, Access: AccessWrite} }

// ReadImage binds i for reading.
func ReadImage(i *Image) Binding { return Binding{Image: i, Access: AccessRead} }

// WriteImage binds i for writing.
func WriteImage(i *Image) Binding { return Binding{Image: i, Access: AccessWrite} }

// PassKind identifies the kind of a pass.
type PassKind int

const (
	PassCompute PassKind = iota
	PassCopy
	PassUpload
	PassRaster
	PassHost
)

// String returns the pass kind name.
func (k PassKind) String() string {
	switch k {
	case PassCompute:
		return "compute"
	case PassCopy:
		return "copy"
	case PassUpload:
		return "upload"
	case PassRaster:
		return "raster"
	case PassHost:
		return "host"
	default:
		return "unknown"
	}
}

// ComputeOp is a kernel dispatch.
//
// Bindings follow the kernel's binding order: the uniform block is bound
// implicitly at slot 0 and the listed resources at slots 1..n.
type ComputeOp struct {
	Params kernel.Params
	Groups kernel.GroupCount
}

// CopyOp copies Size bytes between buffers.
type CopyOp struct {
	Src, Dst             *Buffer
	SrcOffset, DstOffset uint64
	Size                 uint64
}

// UploadOp writes host bytes into a buffer.
type UploadOp struct {
	Dst    *Buffer
	Offset uint64
	Data   []byte
}

// RasterOp draws Src into Dst. SrcRect is resampled bilinearly to cover
// DstRect. Empty rectangles mean the full image.
type RasterOp struct {
	Src, Dst         *Image
	SrcRect, DstRect image.Rectangle
}

// HostContext gives a host pass access to the buffers it declared.
type HostContext interface {
	// ReadFloats returns the contents of b as float32 values.
	ReadFloats(b *Buffer) ([]float32, error)

	// WriteFloats overwrites b starting at element 0.
	WriteFloats(b *Buffer, data []float32) error
}

// HostFunc is the body of a host pass.
type HostFunc func(hc HostContext) error

// Pass is one recorded pass.
type Pass struct {
	Name  string
	Scope string
	Kind  PassKind

	// Bindings lists every resource the pass touches.
	Bindings []Binding

	Compute *ComputeOp
	Copy    *CopyOp
	Upload  *UploadOp
	Raster  *RasterOp
	Host    HostFunc
}

// Reads reports whether the pass reads b.
func (p *Pass) Reads(b *Buffer) bool { return p.uses(b, nil, AccessRead) }

// Writes reports whether the pass writes b.
func (p *Pass) Writes(b *Buffer) bool { return p.uses(b, nil, AccessWrite) }

// WritesImage reports whether the pass writes i.
func (p *Pass) WritesImage(i *Image) bool { return p.uses(nil, i, AccessWrite) }

func (p *Pass) uses(b *Buffer, i *Image, a Access) bool {
	for _, bd := range p.Bindings {
		if bd.Access != a {
			continue
		}
		if b != nil && bd.Buffer == b {
			return true
		}
		if i != nil && bd.Image == i {
			return true
		}
	}
	return false
}
