// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package graph

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// BufferDesc describes a linear device buffer.
type BufferDesc struct {
	// Label is an optional debug label.
	Label string

	// Size is the buffer size in bytes.
	Size uint64

	// Usage specifies how the buffer will be used.
	Usage gputypes.BufferUsage
}

// ImageDesc describes a 2D image.
type ImageDesc struct {
	// Label is an optional debug label.
	Label string

	// Width and Height are the image extent in pixels.
	Width  uint32
	Height uint32

	// Format is the pixel format.
	Format gputypes.TextureFormat

	// Usage specifies how the image may be used.
	Usage gputypes.TextureUsage

	// Clear, when set, clears transient images to ClearColor before the
	// first pass that uses them.
	Clear      bool
	ClearColor [4]float32
}

// HasUsage reports whether all bits of u are set.
func (d ImageDesc) HasUsage(u gputypes.TextureUsage) bool {
	return d.Usage&u == u
}

// PooledBuffer is device buffer memory that outlives a single graph.
type PooledBuffer interface {
	Desc() BufferDesc
}

// PooledImage is device image memory that outlives a single graph.
type PooledImage interface {
	Desc() ImageDesc
}

// Buffer is a graph-local buffer handle.
type Buffer struct {
	id     int
	owner  *Recorder
	desc   BufferDesc
	pooled PooledBuffer
}

// ID returns the index of the buffer within its graph.
func (b *Buffer) ID() int { return b.id }

// Desc returns the buffer description.
func (b *Buffer) Desc() BufferDesc { return b.desc }

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 { return b.desc.Size }

// Pooled returns the external buffer, or nil for a transient buffer.
func (b *Buffer) Pooled() PooledBuffer { return b.pooled }

// IsExternal reports whether the buffer was registered from pooled memory.
func (b *Buffer) IsExternal() bool { return b.pooled != nil }

// String returns a short description for logs.
func (b *Buffer) String() string {
	return fmt.Sprintf("buffer#%d(%s, %d bytes)", b.id, b.desc.Label, b.desc.Size)
}

// Image is a graph-local image handle.
type Image struct {
	id     int
	owner  *Recorder
	desc   ImageDesc
	pooled PooledImage
}

// ID returns the index of the image within its graph.
func (i *Image) ID() int { return i.id }

// Desc returns the image description.
func (i *Image) Desc() ImageDesc { return i.desc }

// Width returns the image width.
func (i *Image) Width() uint32 { return i.desc.Width }

// Height returns the image height.
func (i *Image) Height() uint32 { return i.desc.Height }

// Pooled returns the external image, or nil for a transient image.
func (i *Image) Pooled() PooledImage { return i.pooled }

// IsExternal reports whether the image was registered from pooled memory.
func (i *Image) IsExternal() bool { return i.pooled != nil }

// IsValid reports whether i is non-nil with a non-empty extent.
func (i *Image) IsValid() bool {
	return i != nil && i.desc.Width > 0 && i.desc.Height > 0
}

// String returns a short description for logs.
func (i *Image) String() string {
	return fmt.Sprintf("image#%d(%s, %dx%d)", i.id, i.desc.Label, i.desc.Width, i.desc.Height)
}
