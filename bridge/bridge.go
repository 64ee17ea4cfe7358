// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package bridge records the compute passes that move data between images
// and inference tensors, and between tensors.
//
// Every function validates its inputs before recording anything; on error
// the builder is left untouched.
package bridge

import (
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/styletransfer/graph"
	"github.com/gogpu/styletransfer/kernel"
	"github.com/gogpu/styletransfer/tensor"
)

var (
	// ErrInvalidImage is returned for a nil or empty image.
	ErrInvalidImage = errors.New("bridge: invalid image")

	// ErrTensorShape is returned for a tensor that is not shaped [1, H, W, C].
	ErrTensorShape = errors.New("bridge: tensor is not image shaped")

	// ErrChannelCount is returned when the tensor channel count does not
	// match the channel mode.
	ErrChannelCount = errors.New("bridge: channel count does not match mode")

	// ErrVolumeMismatch is returned when interpolated tensors differ in size.
	ErrVolumeMismatch = errors.New("bridge: tensor element counts differ")
)

// OutputUsage is added to the usage of every image TensorToPixels creates.
const OutputUsage = gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageStorageBinding

func imageShaped(t *tensor.Tensor) error {
	if t == nil {
		return fmt.Errorf("%w: nil tensor", ErrTensorShape)
	}
	s := t.Shape()
	if len(s) != 4 || s[0] != 1 || s[1] <= 0 || s[2] <= 0 || s[3] <= 0 {
		return fmt.Errorf("%w: %v", ErrTensorShape, t)
	}
	return nil
}

// PixelsToTensor records a pass that resamples src into dst, a [1, H, W, C]
// tensor. C must be 3 for ChannelRGB and 1 for ChannelGrayscale.
//
// Sampling is bilinear with clamp addressing at
// UV = (col/W, row/H) + (0.5/srcWidth, 0.5/srcHeight).
func PixelsToTensor(b graph.Builder, src *graph.Image, dst *tensor.Tensor, mode kernel.ChannelMode) error {
	if !src.IsValid() {
		return fmt.Errorf("%w: pixels to tensor source", ErrInvalidImage)
	}
	if err := imageShaped(dst); err != nil {
		return err
	}
	if got, want := dst.Dim(3), mode.Channels(); got != want {
		return fmt.Errorf("%w: tensor %v has %d channels, %s needs %d", ErrChannelCount, dst, got, mode, want)
	}

	rows, cols, channels := dst.ImageDims()
	params := kernel.PixelsToTensorParams{
		TensorVolume: tensor.Uint32(dst.Volume()),
		Rows:         rows,
		Cols:         cols,
		Channels:     channels,
		Mode:         mode,
		SourceWidth:  src.Width(),
		SourceHeight: src.Height(),
		HalfPixelU:   0.5 / float32(src.Width()),
		HalfPixelV:   0.5 / float32(src.Height()),
	}
	groups := kernel.GroupCountFor(rows, cols, 1, kernel.ImageTile)

	return b.AddComputePass(fmt.Sprintf("PixelsToTensor(%s, %s)", dst.Name(), mode), params, groups,
		graph.ReadImage(src), graph.WriteBuffer(dst.Register(b)))
}

// TensorToPixels records a pass that writes src, a [1, H, W, C] tensor, into
// a new transient image of extent W x H. The image takes its format and
// usage from base, gains OutputUsage, and is cleared to transparent black
// before the pass.
func TensorToPixels(b graph.Builder, src *tensor.Tensor, base graph.ImageDesc) (*graph.Image, error) {
	if err := imageShaped(src); err != nil {
		return nil, err
	}

	height, width, channels := src.ImageDims()
	desc := base
	desc.Label = "TensorToPixels(" + src.Name() + ")"
	desc.Width = width
	desc.Height = height
	desc.Usage |= OutputUsage
	desc.Clear = true
	desc.ClearColor = [4]float32{}

	params := kernel.TensorToPixelsParams{
		TensorVolume:  tensor.Uint32(src.Volume()),
		TextureWidth:  width,
		TextureHeight: height,
		Channels:      channels,
	}
	groups := kernel.GroupCountFor(height, width, 1, kernel.ImageTile)

	in := src.Register(b)
	out := b.CreateTransientImage(desc)
	if err := b.AddComputePass(desc.Label, params, groups, graph.ReadBuffer(in), graph.WriteImage(out)); err != nil {
		return nil, err
	}
	return out, nil
}

// Interpolate records dst[i] = a[i] + alpha*(bt[i]-a[i]) over all elements.
// The three tensors must have equal element counts. Alpha is not clamped.
func Interpolate(b graph.Builder, dst, a, bt *tensor.Tensor, alpha float32) error {
	if dst == nil || a == nil || bt == nil {
		return fmt.Errorf("%w: nil tensor", ErrVolumeMismatch)
	}
	if dst.Volume() != a.Volume() || dst.Volume() != bt.Volume() {
		return fmt.Errorf("%w: dst %v, a %v, b %v", ErrVolumeMismatch, dst, a, bt)
	}
	return InterpolateBuffers(b, dst.Register(b), a.Register(b), bt.Register(b), alpha)
}

// InterpolateBuffers is Interpolate over graph buffers of float32 elements.
// All three buffers must have the same size.
func InterpolateBuffers(b graph.Builder, dst, a, bb *graph.Buffer, alpha float32) error {
	if dst == nil || a == nil || bb == nil {
		return fmt.Errorf("%w: nil buffer", ErrVolumeMismatch)
	}
	if dst.Size() != a.Size() || dst.Size() != bb.Size() {
		return fmt.Errorf("%w: %s, %s, %s", ErrVolumeMismatch, dst, a, bb)
	}
	n := tensor.Uint32(int64(dst.Size() / tensor.ElementSize))
	params := kernel.InterpolateParams{Alpha: alpha, TensorVolume: n}
	groups := kernel.GroupCountFor(n, 1, 1, kernel.InterpolateTile)
	return b.AddComputePass("Interpolate", params, groups,
		graph.ReadBuffer(a), graph.ReadBuffer(bb), graph.WriteBuffer(dst))
}

// RescalingCopy records a bilinear copy of srcRect in src onto dstRect in
// dst. Empty rectangles select the whole image.
func RescalingCopy(b graph.Builder, src *graph.Image, srcRect image.Rectangle, dst *graph.Image, dstRect image.Rectangle) error {
	if !src.IsValid() || !dst.IsValid() {
		return fmt.Errorf("%w: rescaling copy", ErrInvalidImage)
	}
	return b.AddRasterPass("RescalingCopy", graph.RasterOp{
		Src:     src,
		Dst:     dst,
		SrcRect: srcRect,
		DstRect: dstRect,
	})
}
