// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package graph

import "errors"

var (
	// ErrNilResource is returned when a pass binds a nil resource.
	ErrNilResource = errors.New("graph: nil resource")

	// ErrForeignResource is returned when a pass binds a handle created by
	// another recorder.
	ErrForeignResource = errors.New("graph: resource belongs to another graph")

	// ErrAliasedBinding is returned when a pass reads and writes the same resource.
	ErrAliasedBinding = errors.New("graph: resource both read and written by one pass")

	// ErrOutOfRange is returned when a copy or upload exceeds a buffer.
	ErrOutOfRange = errors.New("graph: range exceeds buffer size")

	// ErrMisaligned is returned when a copy or upload is not 4-byte aligned.
	ErrMisaligned = errors.New("graph: range not 4-byte aligned")

	// ErrInvalidPass is returned for a pass missing its operation.
	ErrInvalidPass = errors.New("graph: invalid pass")

	// ErrNoDevice is returned by Execute on a recorder without a device.
	ErrNoDevice = errors.New("graph: no device")

	// ErrAlreadyExecuted is returned when a recorder is executed twice.
	ErrAlreadyExecuted = errors.New("graph: already executed")
)
