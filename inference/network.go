// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package inference

import (
	"errors"
	"fmt"

	"github.com/gogpu/styletransfer/graph"
	"github.com/gogpu/styletransfer/tensor"
)

// Well-known tensor names.
const (
	// InputStyleParams is the transfer network input holding style encodings.
	InputStyleParams = "style_params"

	// InputWeights is the optional transfer network input weighting the
	// stylization per pixel.
	InputWeights = "weights"
)

var (
	// ErrNotLoaded is returned when a network has no model loaded.
	ErrNotLoaded = errors.New("inference: network not loaded")

	// ErrContextUnavailable is returned when no inference context can be created.
	ErrContextUnavailable = errors.New("inference: context unavailable")

	// ErrForeignContext is returned when a handle was not created by the
	// manager asked to destroy it.
	ErrForeignContext = errors.New("inference: context not owned by this manager")

	// ErrUnknownContext is returned for a handle the network does not know.
	ErrUnknownContext = errors.New("inference: unknown context")

	// ErrNoSuchTensor is returned for an out of range tensor index or an
	// unknown tensor name.
	ErrNoSuchTensor = errors.New("inference: no such tensor")

	// ErrCPUDevice is returned when a network is configured for the CPU.
	ErrCPUDevice = errors.New("inference: network must run on the GPU device type")
)

// DeviceType selects where a network executes.
type DeviceType int

const (
	// DeviceGPU runs the network on the frame-graph device.
	DeviceGPU DeviceType = iota

	// DeviceCPU runs the network outside the frame graph.
	DeviceCPU
)

// String returns the device type name.
func (d DeviceType) String() string {
	switch d {
	case DeviceGPU:
		return "gpu"
	case DeviceCPU:
		return "cpu"
	default:
		return fmt.Sprintf("DeviceType(%d)", int(d))
	}
}

// ParseDeviceType parses "gpu" or "cpu". Empty selects the GPU.
func ParseDeviceType(s string) (DeviceType, error) {
	switch s {
	case "", "gpu", "GPU":
		return DeviceGPU, nil
	case "cpu", "CPU":
		return DeviceCPU, nil
	}
	return DeviceGPU, fmt.Errorf("inference: unknown device type %q", s)
}

// ContextHandle identifies one inference context of a network.
type ContextHandle int32

// NoContext is the handle of no context.
const NoContext ContextHandle = -1

// Valid reports whether h names a context.
func (h ContextHandle) Valid() bool { return h >= 0 }

// TensorDesc is a declared network tensor.
type TensorDesc struct {
	Name  string       `mapstructure:"name" yaml:"name"`
	Shape tensor.Shape `mapstructure:"shape" yaml:"shape"`
}

// Network is an inference engine model.
//
// Tensors returned for a context stay valid until the context is destroyed.
// Run records the inference into b; it does not execute it.
type Network interface {
	Name() string
	Load(path string) error
	IsLoaded() bool

	SetDeviceType(DeviceType) error
	DeviceType() DeviceType

	Inputs() []TensorDesc
	Outputs() []TensorDesc

	CreateInferenceContext() (ContextHandle, error)
	DestroyInferenceContext(h ContextHandle) error

	InputTensorForContext(h ContextHandle, index int) (*tensor.Tensor, error)
	OutputTensorForContext(h ContextHandle, index int) (*tensor.Tensor, error)

	Run(b graph.Builder, h ContextHandle) error
}

// InputIndex returns the index of the input named name.
func InputIndex(n Network, name string) (int, error) {
	return indexOf(n.Inputs(), name)
}

// OutputIndex returns the index of the output named name.
func OutputIndex(n Network, name string) (int, error) {
	return indexOf(n.Outputs(), name)
}

// HasInput reports whether n declares an input named name.
func HasInput(n Network, name string) bool {
	_, err := InputIndex(n, name)
	return err == nil
}

func indexOf(descs []TensorDesc, name string) (int, error) {
	for i, d := range descs {
		if d.Name == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrNoSuchTensor, name)
}

// RequireGPU reports ErrCPUDevice when n is configured for the CPU.
// Stylization records inference into the frame graph, which only a GPU
// device type network supports.
func RequireGPU(n Network) error {
	if n.DeviceType() != DeviceGPU {
		return fmt.Errorf("%w: %s is %s", ErrCPUDevice, n.Name(), n.DeviceType())
	}
	return nil
}
