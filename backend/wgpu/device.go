// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/vulkan" // registers the Vulkan HAL backend
	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/styletransfer/backend"
	"github.com/gogpu/styletransfer/graph"
)

var (
	// ErrClosed is returned by operations on a closed device.
	ErrClosed = errors.New("wgpu: device closed")

	// ErrNoAdapter is returned when no GPU adapter is available.
	ErrNoAdapter = errors.New("wgpu: no GPU adapter available")

	// ErrNoHALAccess is returned by NewFromProvider when the provider does
	// not expose its HAL device and queue.
	ErrNoHALAccess = errors.New("wgpu: provider does not expose HAL device")

	// ErrTimeout is returned when a submission does not complete in time.
	ErrTimeout = errors.New("wgpu: submission timed out")
)

// DefaultWaitTimeout bounds how long a submission may run.
const DefaultWaitTimeout = 10 * time.Second

func init() {
	backend.Register(backend.BackendWGPU, func() (graph.Device, error) {
		d, err := New()
		if err != nil {
			return nil, err
		}
		return d, nil
	})
}

// Option configures a Device created by New.
type Option func(*Device)

// WithHALBackend selects the HAL backend. The default is Vulkan.
// The backend must be registered with hal.RegisterBackend, usually by a
// blank import of its package.
func WithHALBackend(b gputypes.Backend) Option {
	return func(d *Device) {
		d.halBackend = b
	}
}

// WithWaitTimeout bounds how long the device waits for a submission.
func WithWaitTimeout(timeout time.Duration) Option {
	return func(d *Device) {
		if timeout > 0 {
			d.waitTimeout = timeout
		}
	}
}

// Device executes frame graphs on a HAL device.
type Device struct {
	halBackend  gputypes.Backend
	waitTimeout time.Duration

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	adapter  string

	// external is set when the device belongs to a host application and
	// must not be destroyed by Close.
	external bool

	pipelines [programCount]*pipeline
	closed    bool
}

var _ graph.Device = (*Device)(nil)

// New opens the preferred adapter of the selected HAL backend.
// Discrete GPUs are preferred over integrated ones.
func New(opts ...Option) (*Device, error) {
	d := &Device{
		halBackend:  gputypes.BackendVulkan,
		waitTimeout: DefaultWaitTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}

	api, ok := hal.GetBackend(d.halBackend)
	if !ok {
		return nil, fmt.Errorf("wgpu: HAL backend %v not registered", d.halBackend)
	}
	instance, err := api.CreateInstance(&hal.InstanceDescriptor{
		Backends: gputypes.BackendsAll,
		Flags:    gputypes.InstanceFlagsNone,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}

	adapter := selectAdapter(instance.EnumerateAdapters(nil))
	if adapter == nil {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	open, err := adapter.Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: open adapter %q: %w", adapter.Info.Name, err)
	}

	d.instance = instance
	d.device = open.Device
	d.queue = open.Queue
	d.adapter = adapter.Info.Name
	slogger().Info("wgpu: device opened", "adapter", d.adapter, "type", adapter.Info.DeviceType)
	return d, nil
}

// selectAdapter picks a discrete GPU, then an integrated one, then whatever
// the backend enumerated first.
func selectAdapter(adapters []hal.ExposedAdapter) *hal.ExposedAdapter {
	for _, want := range []gputypes.DeviceType{gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU} {
		for i := range adapters {
			if adapters[i].Info.DeviceType == want {
				return &adapters[i]
			}
		}
	}
	if len(adapters) > 0 {
		return &adapters[0]
	}
	return nil
}

// halProvider is implemented by device providers that expose their HAL
// objects.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// NewFromProvider records onto the device of a host application.
// Close releases only the resources created by this package.
func NewFromProvider(p gpucontext.DeviceProvider, opts ...Option) (*Device, error) {
	hp, ok := p.(halProvider)
	if !ok {
		return nil, ErrNoHALAccess
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, ErrNoHALAccess
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, ErrNoHALAccess
	}

	d := &Device{
		waitTimeout: DefaultWaitTimeout,
		device:      device,
		queue:       queue,
		adapter:     p.AdapterInfo().Name,
		external:    true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Name implements graph.Device.
func (d *Device) Name() string { return backend.BackendWGPU }

// Adapter returns the name of the adapter the device runs on.
func (d *Device) Adapter() string { return d.adapter }

// CreateBuffer implements graph.Device.
func (d *Device) CreateBuffer(desc graph.BufferDesc) (graph.PooledBuffer, error) {
	if d.closed {
		return nil, ErrClosed
	}
	b, err := d.newBuffer(desc)
	if err != nil {
		return nil, fmt.Errorf("wgpu: create buffer %q: %w", desc.Label, err)
	}
	if err := d.clearRaw(b.raw, b.size); err != nil {
		d.device.DestroyBuffer(b.raw)
		return nil, err
	}
	return b, nil
}

// CreateImage implements graph.Device.
func (d *Device) CreateImage(desc graph.ImageDesc) (graph.PooledImage, error) {
	if d.closed {
		return nil, ErrClosed
	}
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("wgpu: image %q has empty extent %dx%d", desc.Label, desc.Width, desc.Height)
	}
	t, err := d.newTexture(desc)
	if err != nil {
		return nil, fmt.Errorf("wgpu: create image %q: %w", desc.Label, err)
	}
	if err := d.clearRaw(t.raw, t.size()); err != nil {
		d.device.DestroyBuffer(t.raw)
		return nil, err
	}
	return t, nil
}

// ReleaseBuffer implements graph.Device.
func (d *Device) ReleaseBuffer(p graph.PooledBuffer) {
	if b, ok := p.(*buffer); ok && b != nil && b.raw != nil && !d.closed {
		d.device.DestroyBuffer(b.raw)
		b.raw = nil
	}
}

// ReleaseImage implements graph.Device.
func (d *Device) ReleaseImage(p graph.PooledImage) {
	if t, ok := p.(*texture); ok && t != nil && t.raw != nil && !d.closed {
		d.device.DestroyBuffer(t.raw)
		t.raw = nil
	}
}

// WriteBuffer implements graph.Device.
func (d *Device) WriteBuffer(p graph.PooledBuffer, offset uint64, data []byte) error {
	if d.closed {
		return ErrClosed
	}
	b, err := asBuffer(p)
	if err != nil {
		return err
	}
	if offset%4 != 0 || len(data)%4 != 0 {
		return fmt.Errorf("wgpu: write %d bytes at %d: %w", len(data), offset, graph.ErrMisaligned)
	}
	if offset+uint64(len(data)) > b.desc.Size {
		return fmt.Errorf("wgpu: write %d bytes at %d into %d: %w", len(data), offset, b.desc.Size, graph.ErrOutOfRange)
	}
	return d.writeRaw(b.raw, offset, data)
}

// ReadBuffer implements graph.Device.
func (d *Device) ReadBuffer(p graph.PooledBuffer, offset uint64, dst []byte) error {
	if d.closed {
		return ErrClosed
	}
	b, err := asBuffer(p)
	if err != nil {
		return err
	}
	if offset+uint64(len(dst)) > b.desc.Size {
		return fmt.Errorf("wgpu: read %d bytes at %d from %d: %w", len(dst), offset, b.desc.Size, graph.ErrOutOfRange)
	}
	return d.readRaw(b.raw, b.size, offset, dst)
}

// WriteImage implements graph.Device.
func (d *Device) WriteImage(p graph.PooledImage, img image.Image) error {
	if d.closed {
		return ErrClosed
	}
	t, err := asTexture(p)
	if err != nil {
		return err
	}
	if img.Bounds().Dx() != int(t.desc.Width) || img.Bounds().Dy() != int(t.desc.Height) {
		return fmt.Errorf("wgpu: image %v does not match %dx%d", img.Bounds(), t.desc.Width, t.desc.Height)
	}
	rgba := image.NewRGBA64(image.Rect(0, 0, int(t.desc.Width), int(t.desc.Height)))
	xdraw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, xdraw.Src)
	return d.writeRaw(t.raw, 0, texelsFromImage(rgba))
}

// ReadImage implements graph.Device.
func (d *Device) ReadImage(p graph.PooledImage) (*image.RGBA64, error) {
	if d.closed {
		return nil, ErrClosed
	}
	t, err := asTexture(p)
	if err != nil {
		return nil, err
	}
	data := make([]byte, t.size())
	if err := d.readRaw(t.raw, t.size(), 0, data); err != nil {
		return nil, err
	}
	return imageFromTexels(int(t.desc.Width), int(t.desc.Height), data), nil
}

// Close implements graph.Device. A device created by NewFromProvider keeps
// the host's device and queue alive.
func (d *Device) Close() {
	if d.closed {
		return
	}
	d.closed = true
	if err := d.device.WaitIdle(); err != nil {
		slogger().Warn("wgpu: wait idle on close", "err", err)
	}
	d.destroyPipelines()
	if d.external {
		return
	}
	d.device.Destroy()
	if d.instance != nil {
		d.instance.Destroy()
	}
}

func asBuffer(p graph.PooledBuffer) (*buffer, error) {
	b, ok := p.(*buffer)
	if !ok || b == nil || b.raw == nil {
		return nil, fmt.Errorf("wgpu: %w: buffer %T", graph.ErrForeignResource, p)
	}
	return b, nil
}

func asTexture(p graph.PooledImage) (*texture, error) {
	t, ok := p.(*texture)
	if !ok || t == nil || t.raw == nil {
		return nil, fmt.Errorf("wgpu: %w: image %T", graph.ErrForeignResource, p)
	}
	return t, nil
}
