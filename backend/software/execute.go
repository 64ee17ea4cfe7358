// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"fmt"

	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/styletransfer/graph"
	"github.com/gogpu/styletransfer/kernel"
)

// frame holds the device memory of one executing graph.
type frame struct {
	dev      *Device
	buffers  []*buffer
	textures []*texture
}

func (d *Device) bind(g *graph.Graph) (*frame, error) {
	f := &frame{
		dev:      d,
		buffers:  make([]*buffer, len(g.Buffers)),
		textures: make([]*texture, len(g.Images)),
	}
	for _, b := range g.Buffers {
		if b.IsExternal() {
			pb, err := asBuffer(b.Pooled())
			if err != nil {
				return nil, err
			}
			f.buffers[b.ID()] = pb
			continue
		}
		f.buffers[b.ID()] = newBuffer(b.Desc())
	}
	for _, img := range g.Images {
		if img.IsExternal() {
			t, err := asTexture(img.Pooled())
			if err != nil {
				return nil, err
			}
			f.textures[img.ID()] = t
			continue
		}
		desc := img.Desc()
		t := newTexture(desc)
		if desc.Clear {
			t.clear(desc.ClearColor)
		}
		f.textures[img.ID()] = t
	}
	return f, nil
}

func (f *frame) run(p *graph.Pass) error {
	switch p.Kind {
	case graph.PassCompute:
		return f.compute(p)
	case graph.PassCopy:
		op := p.Copy
		src, dst := f.buffers[op.Src.ID()], f.buffers[op.Dst.ID()]
		copy(dst.data[op.DstOffset/4:(op.DstOffset+op.Size)/4], src.data[op.SrcOffset/4:(op.SrcOffset+op.Size)/4])
		return nil
	case graph.PassUpload:
		return f.buffers[p.Upload.Dst.ID()].write(p.Upload.Offset, p.Upload.Data)
	case graph.PassRaster:
		return f.raster(p.Raster)
	case graph.PassHost:
		return p.Host(hostContext{f})
	default:
		return fmt.Errorf("unsupported pass kind %v", p.Kind)
	}
}

func (f *frame) compute(p *graph.Pass) error {
	groups := p.Compute.Groups
	switch params := p.Compute.Params.(type) {
	case kernel.PixelsToTensorParams:
		if len(p.Bindings) != 2 {
			return fmt.Errorf("%v expects 2 bindings, got %d", params.Kernel(), len(p.Bindings))
		}
		src := f.textures[p.Bindings[0].Image.ID()]
		dst := f.buffers[p.Bindings[1].Buffer.ID()].data
		f.dispatch(groups, kernel.ImageTile, func(x, y, _ uint32) {
			kernel.RunPixelsToTensor(params, src, dst, x, y)
		})
	case kernel.TensorToPixelsParams:
		if len(p.Bindings) != 2 {
			return fmt.Errorf("%v expects 2 bindings, got %d", params.Kernel(), len(p.Bindings))
		}
		src := f.buffers[p.Bindings[0].Buffer.ID()].data
		dst := f.textures[p.Bindings[1].Image.ID()]
		f.dispatch(groups, kernel.ImageTile, func(x, y, _ uint32) {
			kernel.RunTensorToPixels(params, src, dst, x, y)
		})
	case kernel.InterpolateParams:
		if len(p.Bindings) != 3 {
			return fmt.Errorf("%v expects 3 bindings, got %d", params.Kernel(), len(p.Bindings))
		}
		a := f.buffers[p.Bindings[0].Buffer.ID()].data
		b := f.buffers[p.Bindings[1].Buffer.ID()].data
		dst := f.buffers[p.Bindings[2].Buffer.ID()].data
		f.dispatch(groups, kernel.InterpolateTile, func(x, _, _ uint32) {
			kernel.RunInterpolate(params, dst, a, b, x)
		})
	default:
		return fmt.Errorf("unsupported kernel parameters %T", params)
	}
	return nil
}

func (f *frame) dispatch(groups kernel.GroupCount, tile kernel.Tile, fn func(x, y, z uint32)) {
	f.dev.pool.Dispatch(groups.X, groups.Y, groups.Z, func(gx, gy, gz uint32) {
		kernel.ForEachInvocation(tile, gx, gy, gz, fn)
	})
}

func (f *frame) raster(op *graph.RasterOp) error {
	src := f.textures[op.Src.ID()]
	dst := f.textures[op.Dst.ID()]
	sr := op.SrcRect
	if sr.Empty() {
		sr = src.img.Bounds()
	}
	dr := op.DstRect
	if dr.Empty() {
		dr = dst.img.Bounds()
	}
	if !sr.In(src.img.Bounds()) || !dr.In(dst.img.Bounds()) {
		return fmt.Errorf("raster rectangles %v -> %v outside images", sr, dr)
	}
	if sr.Size() == dr.Size() {
		xdraw.Draw(dst.img, dr, src.img, sr.Min, xdraw.Src)
		return nil
	}
	xdraw.BiLinear.Scale(dst.img, dr, src.img, sr, xdraw.Src, nil)
	return nil
}

// hostContext exposes frame buffers to host passes.
type hostContext struct {
	f *frame
}

// ReadFloats implements graph.HostContext.
func (h hostContext) ReadFloats(b *graph.Buffer) ([]float32, error) {
	if b == nil || b.ID() >= len(h.f.buffers) {
		return nil, graph.ErrNilResource
	}
	return append([]float32(nil), h.f.buffers[b.ID()].data...), nil
}

// WriteFloats implements graph.HostContext.
func (h hostContext) WriteFloats(b *graph.Buffer, data []float32) error {
	if b == nil || b.ID() >= len(h.f.buffers) {
		return graph.ErrNilResource
	}
	dst := h.f.buffers[b.ID()].data
	if len(data) > len(dst) {
		return fmt.Errorf("%w: %d floats into %s", graph.ErrOutOfRange, len(data), b)
	}
	copy(dst, data)
	return nil
}

