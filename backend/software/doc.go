// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package software is a CPU frame-graph device.
//
// Kernels run the reference implementations from package kernel, one
// workgroup per pool task. Buffers are float32 slices and images are
// *image.RGBA64. Raster passes use golang.org/x/image/draw bilinear
// scaling.
//
// Importing the package registers the "software" backend.
package software
