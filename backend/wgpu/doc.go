// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu executes frame graphs on the GPU through the gogpu/wgpu HAL.
//
// Tensors are storage buffers of f32. Images are storage buffers of
// vec4<f32> in row-major order, so every kernel, including the bilinear
// rescaling copy used for raster passes, is a compute dispatch. The kernels
// are written in WGSL and compiled to SPIR-V with naga once per process.
//
// Host passes split the submission: recorded work is submitted and waited
// on, the Go callback runs against read-back buffers, and recording resumes
// in a fresh command encoder.
//
// A Device either owns its HAL instance (New) or records onto a device
// shared by a host application (NewFromProvider).
package wgpu
