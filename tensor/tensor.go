// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package tensor describes inference tensors: a name, an N-dimensional
// shape, and the pooled device buffer that stores the elements as 32-bit
// floats.
package tensor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/styletransfer/graph"
)

// ElementSize is the byte size of one tensor element.
const ElementSize = 4

var (
	// ErrByteSize is returned when a buffer does not hold exactly
	// volume*ElementSize bytes.
	ErrByteSize = errors.New("tensor: buffer size does not match shape")

	// ErrShape is returned for a shape with a negative dimension.
	ErrShape = errors.New("tensor: invalid shape")
)

// Shape is a tensor shape, outermost dimension first.
type Shape []int64

// Volume returns the number of elements. An empty shape has volume 0.
func (s Shape) Volume() int64 {
	if len(s) == 0 {
		return 0
	}
	v := int64(1)
	for _, d := range s {
		v *= d
	}
	return v
}

// Dim returns dimension i, or 0 when the shape has fewer dimensions.
func (s Shape) Dim(i int) int64 {
	if i < 0 || i >= len(s) {
		return 0
	}
	return s[i]
}

// Equal reports whether two shapes are identical.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Validate reports ErrShape for a negative dimension.
func (s Shape) Validate() error {
	for i, d := range s {
		if d < 0 {
			return fmt.Errorf("%w: dimension %d is %d", ErrShape, i, d)
		}
	}
	return nil
}

// String formats the shape as [d0 d1 ...].
func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = fmt.Sprint(d)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// BufferSize returns the byte size of a buffer storing shape s.
func BufferSize(s Shape) uint64 {
	v := s.Volume()
	if v <= 0 {
		return 0
	}
	return uint64(v) * ElementSize
}

// Tensor is a named tensor backed by pooled device memory.
type Tensor struct {
	name    string
	shape   Shape
	storage graph.PooledBuffer
}

// New binds a shape to its storage. The storage must hold exactly
// volume*ElementSize bytes.
func New(name string, shape Shape, storage graph.PooledBuffer) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("tensor %q: %w", name, err)
	}
	if storage == nil {
		return nil, fmt.Errorf("tensor %q: nil storage", name)
	}
	if got, want := storage.Desc().Size, BufferSize(shape); got != want {
		return nil, fmt.Errorf("%w: tensor %q shape %v needs %d bytes, buffer has %d",
			ErrByteSize, name, shape, want, got)
	}
	return &Tensor{name: name, shape: append(Shape(nil), shape...), storage: storage}, nil
}

// Name returns the tensor name.
func (t *Tensor) Name() string { return t.name }

// Shape returns a copy of the shape.
func (t *Tensor) Shape() Shape { return append(Shape(nil), t.shape...) }

// Dim returns dimension i.
func (t *Tensor) Dim(i int) int64 { return t.shape.Dim(i) }

// Volume returns the element count.
func (t *Tensor) Volume() int64 { return t.shape.Volume() }

// NumBytes returns the byte size of the tensor.
func (t *Tensor) NumBytes() uint64 { return BufferSize(t.shape) }

// Storage returns the pooled buffer backing the tensor.
func (t *Tensor) Storage() graph.PooledBuffer { return t.storage }

// Register returns the tensor's buffer handle in b.
func (t *Tensor) Register(b graph.Builder) *graph.Buffer {
	return b.RegisterExternalBuffer(t.storage)
}

// String returns name and shape.
func (t *Tensor) String() string {
	return fmt.Sprintf("%s%v", t.name, t.shape)
}

// ImageDims returns the height, width and channel dimensions of an
// image-like [1, H, W, C] tensor, saturated to uint32.
func (t *Tensor) ImageDims() (height, width, channels uint32) {
	return Uint32(t.Dim(1)), Uint32(t.Dim(2)), Uint32(t.Dim(3))
}
