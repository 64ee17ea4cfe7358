// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package graph

import (
	"context"
	"image"
)

// Graph is a recorded, immutable pass list ready for execution.
type Graph struct {
	Buffers []*Buffer
	Images  []*Image
	Passes  []*Pass
}

// Device allocates pooled resources and executes graphs.
//
// Execute runs passes strictly in recording order. Transient resources are
// allocated before the first pass and released after the last one.
// Implementations are not required to be safe for concurrent use; the
// render thread serializes access.
type Device interface {
	// Name returns the backend name.
	Name() string

	// CreateBuffer allocates a pooled buffer, zero filled.
	CreateBuffer(desc BufferDesc) (PooledBuffer, error)

	// CreateImage allocates a pooled image cleared to transparent black.
	CreateImage(desc ImageDesc) (PooledImage, error)

	// ReleaseBuffer frees a pooled buffer. Nil is ignored.
	ReleaseBuffer(b PooledBuffer)

	// ReleaseImage frees a pooled image. Nil is ignored.
	ReleaseImage(i PooledImage)

	// WriteBuffer copies data into b at offset.
	WriteBuffer(b PooledBuffer, offset uint64, data []byte) error

	// ReadBuffer copies len(dst) bytes from b at offset into dst.
	ReadBuffer(b PooledBuffer, offset uint64, dst []byte) error

	// WriteImage converts img to the pooled image format and stores it.
	// img must have the pooled image's extent.
	WriteImage(i PooledImage, img image.Image) error

	// ReadImage returns a copy of the pooled image.
	ReadImage(i PooledImage) (*image.RGBA64, error)

	// Execute runs g.
	Execute(ctx context.Context, g *Graph) error

	// Close releases the device.
	Close()
}
