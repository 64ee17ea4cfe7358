// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"context"
	"errors"
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/styletransfer/backend"
	"github.com/gogpu/styletransfer/graph"
	"github.com/gogpu/styletransfer/internal/parallel"
)

// ErrClosed is returned by operations on a closed device.
var ErrClosed = errors.New("software: device closed")

func init() {
	backend.Register(backend.BackendSoftware, func() (graph.Device, error) {
		return New(), nil
	})
}

// Option configures a Device.
type Option func(*Device)

// WithWorkers sets the worker count of the dispatch pool.
// Zero or negative uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(d *Device) {
		d.workers = n
	}
}

// Device executes frame graphs on the CPU.
type Device struct {
	workers int
	pool    *parallel.Pool
	closed  bool
}

var _ graph.Device = (*Device)(nil)

// New creates a software device.
func New(opts ...Option) *Device {
	d := &Device{}
	for _, opt := range opts {
		opt(d)
	}
	d.pool = parallel.NewPool(d.workers)
	return d
}

// Name implements graph.Device.
func (d *Device) Name() string { return backend.BackendSoftware }

// CreateBuffer implements graph.Device.
func (d *Device) CreateBuffer(desc graph.BufferDesc) (graph.PooledBuffer, error) {
	if d.closed {
		return nil, ErrClosed
	}
	return newBuffer(desc), nil
}

// CreateImage implements graph.Device.
func (d *Device) CreateImage(desc graph.ImageDesc) (graph.PooledImage, error) {
	if d.closed {
		return nil, ErrClosed
	}
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("software: image %q has empty extent %dx%d", desc.Label, desc.Width, desc.Height)
	}
	return newTexture(desc), nil
}

// ReleaseBuffer implements graph.Device.
func (d *Device) ReleaseBuffer(graph.PooledBuffer) {}

// ReleaseImage implements graph.Device.
func (d *Device) ReleaseImage(graph.PooledImage) {}

// WriteBuffer implements graph.Device.
func (d *Device) WriteBuffer(p graph.PooledBuffer, offset uint64, data []byte) error {
	b, err := asBuffer(p)
	if err != nil {
		return err
	}
	return b.write(offset, data)
}

// ReadBuffer implements graph.Device.
func (d *Device) ReadBuffer(p graph.PooledBuffer, offset uint64, dst []byte) error {
	b, err := asBuffer(p)
	if err != nil {
		return err
	}
	return b.read(offset, dst)
}

// WriteImage implements graph.Device.
func (d *Device) WriteImage(p graph.PooledImage, img image.Image) error {
	t, err := asTexture(p)
	if err != nil {
		return err
	}
	if img.Bounds().Dx() != int(t.desc.Width) || img.Bounds().Dy() != int(t.desc.Height) {
		return fmt.Errorf("software: image %v does not match %dx%d", img.Bounds(), t.desc.Width, t.desc.Height)
	}
	xdraw.Draw(t.img, t.img.Bounds(), img, img.Bounds().Min, xdraw.Src)
	return nil
}

// ReadImage implements graph.Device.
func (d *Device) ReadImage(p graph.PooledImage) (*image.RGBA64, error) {
	t, err := asTexture(p)
	if err != nil {
		return nil, err
	}
	out := image.NewRGBA64(t.img.Bounds())
	copy(out.Pix, t.img.Pix)
	return out, nil
}

// Close implements graph.Device.
func (d *Device) Close() {
	if d.closed {
		return
	}
	d.closed = true
	d.pool.Close()
}

func asBuffer(p graph.PooledBuffer) (*buffer, error) {
	b, ok := p.(*buffer)
	if !ok || b == nil {
		return nil, fmt.Errorf("software: %w: buffer %T", graph.ErrForeignResource, p)
	}
	return b, nil
}

func asTexture(p graph.PooledImage) (*texture, error) {
	t, ok := p.(*texture)
	if !ok || t == nil {
		return nil, fmt.Errorf("software: %w: image %T", graph.ErrForeignResource, p)
	}
	return t, nil
}

// Execute implements graph.Device.
func (d *Device) Execute(ctx context.Context, g *graph.Graph) error {
	if d.closed {
		return ErrClosed
	}
	f, err := d.bind(g)
	if err != nil {
		return err
	}
	for _, p := range g.Passes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f.run(p); err != nil {
			return fmt.Errorf("software: pass %q: %w", p.Name, err)
		}
	}
	return nil
}
