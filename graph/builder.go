// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/gogpu/styletransfer/kernel"
)

// Builder records passes into a graph.
//
// Add methods validate the pass first. On error nothing is recorded.
type Builder interface {
	// CreateTransientImage declares an image that lives for one graph.
	CreateTransientImage(desc ImageDesc) *Image

	// CreateTransientBuffer declares a buffer that lives for one graph.
	CreateTransientBuffer(desc BufferDesc) *Buffer

	// RegisterExternalBuffer returns the graph handle of a pooled buffer.
	// Registering the same buffer twice returns the same handle.
	RegisterExternalBuffer(p PooledBuffer) *Buffer

	// RegisterExternalImage returns the graph handle of a pooled image.
	// Registering the same image twice returns the same handle.
	RegisterExternalImage(p PooledImage) *Image

	// AddComputePass records a kernel dispatch.
	AddComputePass(name string, params kernel.Params, groups kernel.GroupCount, bindings ...Binding) error

	// AddCopyPass records a buffer to buffer copy.
	AddCopyPass(name string, op CopyOp) error

	// AddUploadPass records a host to buffer upload. data is copied.
	AddUploadPass(name string, dst *Buffer, offset uint64, data []byte) error

	// AddRasterPass records a bilinear image blit.
	AddRasterPass(name string, op RasterOp) error

	// AddHostPass records a callback that runs on the host between
	// device passes, with access to the declared buffers.
	AddHostPass(name string, fn HostFunc, bindings ...Binding) error

	// BeginScope opens a named event scope for subsequent passes.
	BeginScope(name string)

	// EndScope closes the innermost event scope.
	EndScope()
}

// Recorder is the Builder implementation executed by a Device.
type Recorder struct {
	device Device

	buffers []*Buffer
	images  []*Image
	extBuf  map[PooledBuffer]*Buffer
	extImg  map[PooledImage]*Image

	passes   []*Pass
	scopes   []string
	executed bool
}

var _ Builder = (*Recorder)(nil)

// NewRecorder creates an empty graph for dev. dev may be nil for graphs
// that are only inspected.
func NewRecorder(dev Device) *Recorder {
	return &Recorder{
		device: dev,
		extBuf: make(map[PooledBuffer]*Buffer),
		extImg: make(map[PooledImage]*Image),
	}
}

// Device returns the device the graph executes on.
func (r *Recorder) Device() Device { return r.device }

// CreateTransientImage implements Builder.
func (r *Recorder) CreateTransientImage(desc ImageDesc) *Image {
	img := &Image{id: len(r.images), owner: r, desc: desc}
	r.images = append(r.images, img)
	return img
}

// CreateTransientBuffer implements Builder.
func (r *Recorder) CreateTransientBuffer(desc BufferDesc) *Buffer {
	b := &Buffer{id: len(r.buffers), owner: r, desc: desc}
	r.buffers = append(r.buffers, b)
	return b
}

// RegisterExternalBuffer implements Builder.
func (r *Recorder) RegisterExternalBuffer(p PooledBuffer) *Buffer {
	if p == nil {
		return nil
	}
	if b, ok := r.extBuf[p]; ok {
		return b
	}
	b := &Buffer{id: len(r.buffers), owner: r, desc: p.Desc(), pooled: p}
	r.buffers = append(r.buffers, b)
	r.extBuf[p] = b
	return b
}

// RegisterExternalImage implements Builder.
func (r *Recorder) RegisterExternalImage(p PooledImage) *Image {
	if p == nil {
		return nil
	}
	if img, ok := r.extImg[p]; ok {
		return img
	}
	img := &Image{id: len(r.images), owner: r, desc: p.Desc(), pooled: p}
	r.images = append(r.images, img)
	r.extImg[p] = img
	return img
}

// AddComputePass implements Builder.
func (r *Recorder) AddComputePass(name string, params kernel.Params, groups kernel.GroupCount, bindings ...Binding) error {
	if params == nil {
		return fmt.Errorf("%w: compute pass %q has no parameters", ErrInvalidPass, name)
	}
	if err := r.checkBindings(name, bindings); err != nil {
		return err
	}
	r.add(&Pass{
		Name:     name,
		Kind:     PassCompute,
		Bindings: append([]Binding(nil), bindings...),
		Compute:  &ComputeOp{Params: params, Groups: groups},
	})
	return nil
}

// AddCopyPass implements Builder.
func (r *Recorder) AddCopyPass(name string, op CopyOp) error {
	bindings := []Binding{ReadBuffer(op.Src), WriteBuffer(op.Dst)}
	if err := r.checkBindings(name, bindings); err != nil {
		return err
	}
	if op.Size%4 != 0 || op.SrcOffset%4 != 0 || op.DstOffset%4 != 0 {
		return fmt.Errorf("%w: copy pass %q", ErrMisaligned, name)
	}
	if op.SrcOffset+op.Size > op.Src.Size() || op.DstOffset+op.Size > op.Dst.Size() {
		return fmt.Errorf("%w: copy pass %q: %d bytes from %s@%d to %s@%d",
			ErrOutOfRange, name, op.Size, op.Src, op.SrcOffset, op.Dst, op.DstOffset)
	}
	c := op
	r.add(&Pass{Name: name, Kind: PassCopy, Bindings: bindings, Copy: &c})
	return nil
}

// AddUploadPass implements Builder.
func (r *Recorder) AddUploadPass(name string, dst *Buffer, offset uint64, data []byte) error {
	bindings := []Binding{WriteBuffer(dst)}
	if err := r.checkBindings(name, bindings); err != nil {
		return err
	}
	size := uint64(len(data))
	if size%4 != 0 || offset%4 != 0 {
		return fmt.Errorf("%w: upload pass %q", ErrMisaligned, name)
	}
	if offset+size > dst.Size() {
		return fmt.Errorf("%w: upload pass %q: %d bytes to %s@%d", ErrOutOfRange, name, size, dst, offset)
	}
	r.add(&Pass{
		Name:     name,
		Kind:     PassUpload,
		Bindings: bindings,
		Upload:   &UploadOp{Dst: dst, Offset: offset, Data: append([]byte(nil), data...)},
	})
	return nil
}

// AddRasterPass implements Builder.
func (r *Recorder) AddRasterPass(name string, op RasterOp) error {
	bindings := []Binding{ReadImage(op.Src), WriteImage(op.Dst)}
	if err := r.checkBindings(name, bindings); err != nil {
		return err
	}
	c := op
	r.add(&Pass{Name: name, Kind: PassRaster, Bindings: bindings, Raster: &c})
	return nil
}

// AddHostPass implements Builder.
func (r *Recorder) AddHostPass(name string, fn HostFunc, bindings ...Binding) error {
	if fn == nil {
		return fmt.Errorf("%w: host pass %q has no function", ErrInvalidPass, name)
	}
	if err := r.checkBindings(name, bindings); err != nil {
		return err
	}
	r.add(&Pass{
		Name:     name,
		Kind:     PassHost,
		Bindings: append([]Binding(nil), bindings...),
		Host:     fn,
	})
	return nil
}

// BeginScope implements Builder.
func (r *Recorder) BeginScope(name string) {
	r.scopes = append(r.scopes, name)
}

// EndScope implements Builder.
func (r *Recorder) EndScope() {
	if len(r.scopes) > 0 {
		r.scopes = r.scopes[:len(r.scopes)-1]
	}
}

// Passes returns the recorded passes in order.
func (r *Recorder) Passes() []*Pass {
	return r.passes
}

// Graph returns the recorded graph.
func (r *Recorder) Graph() *Graph {
	return &Graph{Buffers: r.buffers, Images: r.images, Passes: r.passes}
}

// Execute runs the recorded passes on the recorder's device.
// A recorder executes at most once. An empty recording needs no device.
func (r *Recorder) Execute(ctx context.Context) error {
	if r.executed {
		return ErrAlreadyExecuted
	}
	if len(r.passes) == 0 {
		r.executed = true
		return nil
	}
	if r.device == nil {
		return ErrNoDevice
	}
	r.executed = true
	return r.device.Execute(ctx, r.Graph())
}

func (r *Recorder) add(p *Pass) {
	p.Scope = strings.Join(r.scopes, "/")
	r.passes = append(r.passes, p)
}

func (r *Recorder) checkBindings(name string, bindings []Binding) error {
	type key struct {
		buf *Buffer
		img *Image
	}
	seen := make(map[key]Access, len(bindings))
	for i, b := range bindings {
		var k key
		switch {
		case b.Buffer != nil && b.Image == nil:
			if b.Buffer.owner != r {
				return fmt.Errorf("%w: pass %q binding %d", ErrForeignResource, name, i)
			}
			k.buf = b.Buffer
		case b.Image != nil && b.Buffer == nil:
			if b.Image.owner != r {
				return fmt.Errorf("%w: pass %q binding %d", ErrForeignResource, name, i)
			}
			k.img = b.Image
		default:
			return fmt.Errorf("%w: pass %q binding %d", ErrNilResource, name, i)
		}
		if prev, ok := seen[k]; ok && prev != b.Access {
			return fmt.Errorf("%w: pass %q binding %d", ErrAliasedBinding, name, i)
		}
		seen[k] = b.Access
	}
	return nil
}
