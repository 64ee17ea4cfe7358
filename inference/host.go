// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package inference

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/styletransfer/graph"
	"github.com/gogpu/styletransfer/tensor"
)

// HostNetwork is a Network described by a Manifest. Its tensors live on a
// graph.Device; Run records a host pass that reads the inputs back, runs
// the manifest's operator and writes the outputs.
//
// HostNetwork is safe for concurrent use.
type HostNetwork struct {
	device graph.Device

	mu         sync.Mutex
	manifest   *Manifest
	op         Operator
	deviceType DeviceType
	contexts   map[ContextHandle]*hostContext
	next       ContextHandle
}

type hostContext struct {
	inputs  []*tensor.Tensor
	outputs []*tensor.Tensor
}

var _ Network = (*HostNetwork)(nil)

// NewHostNetwork creates an unloaded network whose tensors are allocated
// on dev.
func NewHostNetwork(dev graph.Device) *HostNetwork {
	return &HostNetwork{device: dev, contexts: make(map[ContextHandle]*hostContext)}
}

// Name implements Network.
func (n *HostNetwork) Name() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.manifest == nil {
		return "<unloaded>"
	}
	return n.manifest.Name
}

// Load implements Network. path is a YAML manifest.
func (n *HostNetwork) Load(path string) error {
	m, err := ReadManifest(path)
	if err != nil {
		return err
	}
	return n.LoadManifest(m)
}

// LoadManifest loads an already parsed manifest. A network with live
// contexts cannot be reloaded.
func (n *HostNetwork) LoadManifest(m *Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	op, _ := lookupOperator(m.Operator)
	dt, _ := ParseDeviceType(m.Device)

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.contexts) > 0 {
		return fmt.Errorf("inference: reload %s with %d live contexts", m.Name, len(n.contexts))
	}
	n.manifest = m
	n.op = op
	n.deviceType = dt
	slogger().Info("network loaded", "network", m.Name, "operator", m.Operator,
		"inputs", len(m.Inputs), "outputs", len(m.Outputs), "device", dt)
	return nil
}

// Manifest returns the loaded manifest, or nil.
func (n *HostNetwork) Manifest() *Manifest {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.manifest
}

// IsLoaded implements Network.
func (n *HostNetwork) IsLoaded() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.manifest != nil
}

// SetDeviceType implements Network.
func (n *HostNetwork) SetDeviceType(dt DeviceType) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.contexts) > 0 {
		return fmt.Errorf("inference: change device type with %d live contexts", len(n.contexts))
	}
	n.deviceType = dt
	return nil
}

// DeviceType implements Network.
func (n *HostNetwork) DeviceType() DeviceType {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.deviceType
}

// Inputs implements Network.
func (n *HostNetwork) Inputs() []TensorDesc {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.manifest == nil {
		return nil
	}
	return append([]TensorDesc(nil), n.manifest.Inputs...)
}

// Outputs implements Network.
func (n *HostNetwork) Outputs() []TensorDesc {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.manifest == nil {
		return nil
	}
	return append([]TensorDesc(nil), n.manifest.Outputs...)
}

// CreateInferenceContext implements Network.
func (n *HostNetwork) CreateInferenceContext() (ContextHandle, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.manifest == nil {
		return NoContext, ErrNotLoaded
	}
	if len(n.contexts) >= n.manifest.MaxContexts {
		return NoContext, fmt.Errorf("%s: all %d contexts in use", n.manifest.Name, n.manifest.MaxContexts)
	}

	c := &hostContext{}
	var err error
	if c.inputs, err = n.allocate(n.manifest.Inputs); err == nil {
		c.outputs, err = n.allocate(n.manifest.Outputs)
	}
	if err != nil {
		n.release(c)
		return NoContext, err
	}

	h := n.next
	n.next++
	n.contexts[h] = c
	return h, nil
}

func (n *HostNetwork) allocate(descs []TensorDesc) ([]*tensor.Tensor, error) {
	out := make([]*tensor.Tensor, 0, len(descs))
	for _, d := range descs {
		buf, err := n.device.CreateBuffer(graph.BufferDesc{
			Label: n.manifest.Name + "/" + d.Name,
			Size:  tensor.BufferSize(d.Shape),
			Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return out, fmt.Errorf("allocate %s: %w", d.Name, err)
		}
		t, err := tensor.New(d.Name, d.Shape, buf)
		if err != nil {
			n.device.ReleaseBuffer(buf)
			return out, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (n *HostNetwork) release(c *hostContext) {
	for _, t := range append(append([]*tensor.Tensor(nil), c.inputs...), c.outputs...) {
		n.device.ReleaseBuffer(t.Storage())
	}
}

// DestroyInferenceContext implements Network.
func (n *HostNetwork) DestroyInferenceContext(h ContextHandle) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.contexts[h]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownContext, h)
	}
	delete(n.contexts, h)
	n.release(c)
	return nil
}

// InputTensorForContext implements Network.
func (n *HostNetwork) InputTensorForContext(h ContextHandle, index int) (*tensor.Tensor, error) {
	return n.tensorFor(h, index, true)
}

// OutputTensorForContext implements Network.
func (n *HostNetwork) OutputTensorForContext(h ContextHandle, index int) (*tensor.Tensor, error) {
	return n.tensorFor(h, index, false)
}

func (n *HostNetwork) tensorFor(h ContextHandle, index int, input bool) (*tensor.Tensor, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.contexts[h]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownContext, h)
	}
	list := c.outputs
	if input {
		list = c.inputs
	}
	if index < 0 || index >= len(list) {
		return nil, fmt.Errorf("%w: index %d of %d", ErrNoSuchTensor, index, len(list))
	}
	return list[index], nil
}

// Run implements Network.
func (n *HostNetwork) Run(b graph.Builder, h ContextHandle) error {
	n.mu.Lock()
	c, ok := n.contexts[h]
	m, op := n.manifest, n.op
	n.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownContext, h)
	}

	ins := make([]*graph.Buffer, len(c.inputs))
	outs := make([]*graph.Buffer, len(c.outputs))
	bindings := make([]graph.Binding, 0, len(ins)+len(outs))
	for i, t := range c.inputs {
		ins[i] = t.Register(b)
		bindings = append(bindings, graph.ReadBuffer(ins[i]))
	}
	for i, t := range c.outputs {
		outs[i] = t.Register(b)
		bindings = append(bindings, graph.WriteBuffer(outs[i]))
	}

	run := func(hc graph.HostContext) error {
		in := make([]HostTensor, len(ins))
		for i, buf := range ins {
			data, err := hc.ReadFloats(buf)
			if err != nil {
				return err
			}
			in[i] = HostTensor{TensorDesc: m.Inputs[i], Data: data}
		}
		out := make([]HostTensor, len(outs))
		for i := range outs {
			out[i] = HostTensor{TensorDesc: m.Outputs[i], Data: make([]float32, m.Outputs[i].Shape.Volume())}
		}
		if err := op.Run(m, in, out); err != nil {
			return fmt.Errorf("%s: %w", m.Operator, err)
		}
		var errs []error
		for i, buf := range outs {
			errs = append(errs, hc.WriteFloats(buf, out[i].Data))
		}
		return errors.Join(errs...)
	}
	return b.AddHostPass(fmt.Sprintf("Inference(%s#%d)", m.Name, h), run, bindings...)
}

// Close destroys every context.
func (n *HostNetwork) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for h, c := range n.contexts {
		n.release(c)
		delete(n.contexts, h)
	}
}
