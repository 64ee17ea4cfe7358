// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"context"
	"encoding/binary"
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/styletransfer/graph"
	"github.com/gogpu/styletransfer/kernel"
	"github.com/gogpu/styletransfer/tensor"
)

// Execute implements graph.Device. All passes up to the next host pass are
// recorded into one command buffer.
func (d *Device) Execute(ctx context.Context, g *graph.Graph) error {
	if d.closed {
		return ErrClosed
	}
	f, err := d.bind(g)
	if err != nil {
		return err
	}
	defer f.release()

	if err := f.begin(); err != nil {
		return err
	}
	f.clearTransients()
	for _, p := range g.Passes {
		if err := ctx.Err(); err != nil {
			f.discard()
			return err
		}
		if err := f.run(ctx, p); err != nil {
			f.discard()
			return fmt.Errorf("wgpu: pass %q: %w", p.Name, err)
		}
	}
	return f.flush(ctx)
}

// frame holds the device memory and encoder state of one executing graph.
type frame struct {
	dev      *Device
	buffers  []*buffer
	textures []*texture

	enc   hal.CommandEncoder
	state map[hal.Buffer]gputypes.BufferUsage

	// owned buffers and bind groups are destroyed after the graph completes.
	owned      []hal.Buffer
	bindGroups []hal.BindGroup

	clearImages []*texture
	clearColors [][4]float32
}

func (d *Device) bind(g *graph.Graph) (*frame, error) {
	f := &frame{
		dev:      d,
		buffers:  make([]*buffer, len(g.Buffers)),
		textures: make([]*texture, len(g.Images)),
		state:    make(map[hal.Buffer]gputypes.BufferUsage),
	}
	for _, b := range g.Buffers {
		if b.IsExternal() {
			pb, err := asBuffer(b.Pooled())
			if err != nil {
				f.release()
				return nil, err
			}
			f.buffers[b.ID()] = pb
			continue
		}
		pb, err := d.newBuffer(b.Desc())
		if err != nil {
			f.release()
			return nil, fmt.Errorf("wgpu: transient %v: %w", b, err)
		}
		f.owned = append(f.owned, pb.raw)
		f.buffers[b.ID()] = pb
	}
	for _, img := range g.Images {
		if img.IsExternal() {
			t, err := asTexture(img.Pooled())
			if err != nil {
				f.release()
				return nil, err
			}
			f.textures[img.ID()] = t
			continue
		}
		t, err := d.newTexture(img.Desc())
		if err != nil {
			f.release()
			return nil, fmt.Errorf("wgpu: transient %v: %w", img, err)
		}
		f.owned = append(f.owned, t.raw)
		f.textures[img.ID()] = t
		if desc := img.Desc(); desc.Clear {
			f.clearImages = append(f.clearImages, t)
			f.clearColors = append(f.clearColors, desc.ClearColor)
		}
	}
	return f, nil
}

func (f *frame) begin() error {
	enc, err := f.dev.beginEncoder("frame graph")
	if err != nil {
		return err
	}
	f.enc = enc
	return nil
}

// flush submits everything recorded so far and waits for it.
func (f *frame) flush(ctx context.Context) error {
	enc := f.enc
	f.enc = nil
	f.restore(enc)
	return f.dev.submit(ctx, enc)
}

func (f *frame) discard() {
	if f.enc != nil {
		f.enc.DiscardEncoding()
		f.enc.Destroy()
		f.enc = nil
	}
}

func (f *frame) release() {
	for _, bg := range f.bindGroups {
		f.dev.device.DestroyBindGroup(bg)
	}
	for _, b := range f.owned {
		f.dev.device.DestroyBuffer(b)
	}
	f.bindGroups, f.owned = nil, nil
}

// clearTransients zero fills transient buffers and clears transient images.
func (f *frame) clearTransients() {
	for _, b := range f.buffers {
		if b != nil && f.isOwned(b.raw) {
			f.enc.ClearBuffer(b.raw, 0, b.size)
		}
	}
	for i, t := range f.clearImages {
		c := f.clearColors[i]
		if c == [4]float32{} {
			f.enc.ClearBuffer(t.raw, 0, t.size())
			continue
		}
		if err := f.stage(t.raw, 0, solidTexels(uint64(t.desc.Width)*uint64(t.desc.Height), c)); err != nil {
			slogger().Warn("wgpu: clear image", "image", t.desc.Label, "err", err)
		}
	}
	for _, b := range f.owned {
		f.state[b] = gputypes.BufferUsageCopyDst
	}
}

func (f *frame) isOwned(raw hal.Buffer) bool {
	for _, b := range f.owned {
		if b == raw {
			return true
		}
	}
	return false
}

// use is one buffer access of a command.
type use struct {
	buf   hal.Buffer
	usage gputypes.BufferUsage
}

// transition records the barriers needed before the given accesses.
func (f *frame) transition(uses ...use) {
	barriers := make([]hal.BufferBarrier, 0, len(uses))
	for _, u := range uses {
		old, ok := f.state[u.buf]
		if !ok {
			old = gputypes.BufferUsageStorage
		}
		barriers = append(barriers, hal.BufferBarrier{
			Buffer: u.buf,
			Usage:  hal.BufferUsageTransition{OldUsage: old, NewUsage: u.usage},
		})
		f.state[u.buf] = u.usage
	}
	f.enc.TransitionBuffers(barriers)
}

// restore returns every touched buffer to storage usage before submission.
func (f *frame) restore(enc hal.CommandEncoder) {
	var barriers []hal.BufferBarrier
	for buf, usage := range f.state {
		if usage == gputypes.BufferUsageStorage {
			continue
		}
		barriers = append(barriers, hal.BufferBarrier{
			Buffer: buf,
			Usage:  hal.BufferUsageTransition{OldUsage: usage, NewUsage: gputypes.BufferUsageStorage},
		})
		f.state[buf] = gputypes.BufferUsageStorage
	}
	if len(barriers) > 0 {
		enc.TransitionBuffers(barriers)
	}
}

// stage records a copy of data into dst through a frame-owned staging buffer.
func (f *frame) stage(dst hal.Buffer, offset uint64, data []byte) error {
	staging, err := f.dev.mapWrite("upload staging", gputypes.BufferUsageCopySrc, data)
	if err != nil {
		return err
	}
	f.owned = append(f.owned, staging)
	f.transition(use{dst, gputypes.BufferUsageCopyDst})
	f.enc.CopyBufferToBuffer(staging, dst, []hal.BufferCopy{{DstOffset: offset, Size: uint64(len(data))}})
	return nil
}

func (f *frame) run(ctx context.Context, p *graph.Pass) error {
	switch p.Kind {
	case graph.PassCompute:
		return f.compute(p)
	case graph.PassCopy:
		op := p.Copy
		src, dst := f.buffers[op.Src.ID()].raw, f.buffers[op.Dst.ID()].raw
		f.transition(use{src, gputypes.BufferUsageCopySrc}, use{dst, gputypes.BufferUsageCopyDst})
		f.enc.CopyBufferToBuffer(src, dst, []hal.BufferCopy{{SrcOffset: op.SrcOffset, DstOffset: op.DstOffset, Size: op.Size}})
		return nil
	case graph.PassUpload:
		if len(p.Upload.Data) == 0 {
			return nil
		}
		return f.stage(f.buffers[p.Upload.Dst.ID()].raw, p.Upload.Offset, p.Upload.Data)
	case graph.PassRaster:
		return f.raster(p)
	case graph.PassHost:
		return f.host(ctx, p)
	default:
		return fmt.Errorf("unsupported pass kind %v", p.Kind)
	}
}

func (f *frame) compute(p *graph.Pass) error {
	op := p.Compute
	prog := program(op.Params.Kernel())
	if prog < 0 || prog >= program(kernel.Count) {
		return fmt.Errorf("unsupported kernel %v", op.Params.Kernel())
	}
	if want := len(shaderSources[prog].storage); len(p.Bindings) != want {
		return fmt.Errorf("%v expects %d bindings, got %d", op.Params.Kernel(), want, len(p.Bindings))
	}
	if op.Groups.IsZero() {
		return nil
	}
	resources := make([]hal.Buffer, len(p.Bindings))
	for i, b := range p.Bindings {
		if b.Buffer != nil {
			resources[i] = f.buffers[b.Buffer.ID()].raw
		} else {
			resources[i] = f.textures[b.Image.ID()].raw
		}
	}
	return f.dispatch(p.Name, prog, op.Params.Bytes(), op.Groups, resources)
}

// dispatch records one compute dispatch. resources follow the storage
// bindings of prog.
func (f *frame) dispatch(label string, prog program, params []byte, groups kernel.GroupCount, resources []hal.Buffer) error {
	pl, err := f.dev.pipeline(prog)
	if err != nil {
		return err
	}
	if uint64(len(params)) < pl.src.minParam {
		params = append(params, make([]byte, pl.src.minParam-uint64(len(params)))...)
	}
	uniform, err := f.dev.mapWrite(label+" params", gputypes.BufferUsageUniform, params)
	if err != nil {
		return err
	}
	f.owned = append(f.owned, uniform)

	entries := []gputypes.BindGroupEntry{{
		Binding:  0,
		Resource: gputypes.BufferBinding{Buffer: uniform.NativeHandle(), Size: uint64(len(params))},
	}}
	uses := make([]use, 0, len(resources))
	for i, raw := range resources {
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(i + 1),
			Resource: gputypes.BufferBinding{Buffer: raw.NativeHandle()},
		})
		uses = append(uses, use{raw, gputypes.BufferUsageStorage})
	}
	bg, err := f.dev.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   label,
		Layout:  pl.bindLayout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("bind group: %w", err)
	}
	f.bindGroups = append(f.bindGroups, bg)

	f.transition(uses...)
	cp := f.enc.BeginComputePass(&hal.ComputePassDescriptor{Label: label})
	cp.SetPipeline(pl.compute)
	cp.SetBindGroup(0, bg, nil)
	cp.Dispatch(groups.X, groups.Y, groups.Z)
	cp.End()
	return nil
}

// raster resamples the source rectangle into the destination rectangle with
// the blit program.
func (f *frame) raster(p *graph.Pass) error {
	op := p.Raster
	src := f.textures[op.Src.ID()]
	dst := f.textures[op.Dst.ID()]
	srcBounds := image.Rect(0, 0, int(src.desc.Width), int(src.desc.Height))
	dstBounds := image.Rect(0, 0, int(dst.desc.Width), int(dst.desc.Height))
	sr := op.SrcRect
	if sr.Empty() {
		sr = srcBounds
	}
	dr := op.DstRect
	if dr.Empty() {
		dr = dstBounds
	}
	if !sr.In(srcBounds) || !dr.In(dstBounds) {
		return fmt.Errorf("raster rectangles %v -> %v outside images", sr, dr)
	}
	groups := kernel.GroupCountFor(uint32(dr.Dx()), uint32(dr.Dy()), 1, kernel.ImageTile)
	return f.dispatch(p.Name, programBlit, blitParams(src.desc, dst.desc, sr, dr), groups, []hal.Buffer{src.raw, dst.raw})
}

// blitParams serializes the blit uniform block: four u32 extents followed
// by the source and destination rectangles as vec4<u32>.
func blitParams(src, dst graph.ImageDesc, sr, dr image.Rectangle) []byte {
	words := []uint32{
		src.Width, src.Height, dst.Width, dst.Height,
		uint32(sr.Min.X), uint32(sr.Min.Y), uint32(sr.Max.X), uint32(sr.Max.Y),
		uint32(dr.Min.X), uint32(dr.Min.Y), uint32(dr.Max.X), uint32(dr.Max.Y),
	}
	buf := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	return buf
}

// host submits the recorded work, runs the host function against the
// completed buffers and resumes recording.
func (f *frame) host(ctx context.Context, p *graph.Pass) error {
	if err := f.flush(ctx); err != nil {
		return err
	}
	if err := p.Host(hostContext{f}); err != nil {
		return err
	}
	return f.begin()
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
	pb := h.f.buffers[b.ID()]
	raw := make([]byte, align4(pb.desc.Size))
	if err := h.f.dev.readRaw(pb.raw, pb.size, 0, raw); err != nil {
		return nil, err
	}
	return tensor.BytesFloat32(raw), nil
}

// WriteFloats implements graph.HostContext.
func (h hostContext) WriteFloats(b *graph.Buffer, data []float32) error {
	if b == nil || b.ID() >= len(h.f.buffers) {
		return graph.ErrNilResource
	}
	pb := h.f.buffers[b.ID()]
	if uint64(len(data))*4 > pb.size {
		return fmt.Errorf("%w: %d floats into %s", graph.ErrOutOfRange, len(data), b)
	}
	return h.f.dev.writeRaw(pb.raw, 0, tensor.Float32Bytes(data))
}
