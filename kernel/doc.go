// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package kernel describes the compute kernels used to move data between
// images and tensors: their identifiers, thread-group tiles, uniform
// parameter blocks, and a per-invocation CPU reference for each one.
//
// The CPU reference functions mirror the WGSL shaders in backend/wgpu
// invocation for invocation, so the software device and the GPU device
// produce the same tensors for the same inputs.
//
// # Tensor layout
//
// Image-like tensors have logical shape [1, H, W, C] and are stored row
// major: element (row, col, c) lives at (row*W + col)*C + c. Dispatches are
// sized over tensor dimensions 1 and 2 in that order, so invocation x walks
// rows and invocation y walks columns.
package kernel
