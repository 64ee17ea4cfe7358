// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernel

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ID identifies a compute kernel.
type ID int

const (
	// PixelsToTensor resamples an image into an image-like tensor.
	PixelsToTensor ID = iota

	// TensorToPixels writes an image-like tensor into an image.
	TensorToPixels

	// Interpolate linearly blends two tensors into a third.
	Interpolate

	// Count is the number of kernels.
	Count
)

// String returns the kernel name used for pass labels and shader lookup.
func (id ID) String() string {
	switch id {
	case PixelsToTensor:
		return "pixels_to_tensor"
	case TensorToPixels:
		return "tensor_to_pixels"
	case Interpolate:
		return "interpolate"
	default:
		return fmt.Sprintf("Unknown(%d)", int(id))
	}
}

// Tile is the thread-group size of a kernel.
type Tile struct {
	X, Y, Z uint32
}

// Thread-group tiles. These match @workgroup_size in the WGSL sources.
var (
	// ImageTile is used by PixelsToTensor and TensorToPixels.
	ImageTile = Tile{X: 8, Y: 8, Z: 1}

	// InterpolateTile is used by Interpolate.
	InterpolateTile = Tile{X: 64, Y: 1, Z: 1}
)

// TileFor returns the thread-group tile of a kernel.
func TileFor(id ID) Tile {
	if id == Interpolate {
		return InterpolateTile
	}
	return ImageTile
}

// GroupCount is the number of thread groups of a dispatch.
type GroupCount struct {
	X, Y, Z uint32
}

// Total returns the number of thread groups.
func (g GroupCount) Total() uint64 {
	return uint64(g.X) * uint64(g.Y) * uint64(g.Z)
}

// IsZero reports whether the dispatch runs no thread groups.
func (g GroupCount) IsZero() bool {
	return g.X == 0 || g.Y == 0 || g.Z == 0
}

// GroupCountFor returns the ceiling division of a thread count by a tile,
// per dimension. A zero thread count in any dimension yields zero groups.
func GroupCountFor(x, y, z uint32, tile Tile) GroupCount {
	return GroupCount{
		X: divCeil(x, tile.X),
		Y: divCeil(y, tile.Y),
		Z: divCeil(z, tile.Z),
	}
}

func divCeil(n, d uint32) uint32 {
	if n == 0 || d == 0 {
		return 0
	}
	return uint32((uint64(n) + uint64(d) - 1) / uint64(d))
}

// ChannelMode selects how PixelsToTensor maps texels to tensor channels.
type ChannelMode uint32

const (
	// ChannelRGB writes red, green and blue into three tensor channels.
	ChannelRGB ChannelMode = iota

	// ChannelGrayscale writes the red channel into a single tensor channel.
	// Masks (shadow, weighting) are single channel textures stored in red.
	ChannelGrayscale
)

// Channels returns the tensor channel count the mode expects.
func (m ChannelMode) Channels() int64 {
	if m == ChannelGrayscale {
		return 1
	}
	return 3
}

// String returns the mode name.
func (m ChannelMode) String() string {
	switch m {
	case ChannelRGB:
		return "rgb"
	case ChannelGrayscale:
		return "grayscale"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// Params is the uniform parameter block of one kernel dispatch.
type Params interface {
	// Kernel returns the kernel the parameters belong to.
	Kernel() ID

	// Bytes serializes the block in the little-endian layout of the WGSL
	// Params struct, padded to 16 bytes.
	Bytes() []byte
}

// PixelsToTensorParams configures a PixelsToTensor dispatch.
// Bindings: source image (read), destination tensor buffer (write).
type PixelsToTensorParams struct {
	// TensorVolume is the element count of the destination tensor.
	TensorVolume uint32

	// Rows and Cols are tensor dimensions 1 and 2.
	Rows uint32
	Cols uint32

	// Channels is tensor dimension 3.
	Channels uint32

	// Mode selects the channel mapping.
	Mode ChannelMode

	// SourceWidth and SourceHeight are the sampled image extent.
	SourceWidth  uint32
	SourceHeight uint32

	// HalfPixelU and HalfPixelV are 0.5/SourceWidth and 0.5/SourceHeight.
	HalfPixelU float32
	HalfPixelV float32
}

// Kernel implements Params.
func (PixelsToTensorParams) Kernel() ID { return PixelsToTensor }

// Bytes implements Params. Layout: 7 u32 then 2 f32, padded to 48 bytes.
func (p PixelsToTensorParams) Bytes() []byte {
	buf := make([]byte, 48)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], p.TensorVolume)
	le.PutUint32(buf[4:8], p.Rows)
	le.PutUint32(buf[8:12], p.Cols)
	le.PutUint32(buf[12:16], p.Channels)
	le.PutUint32(buf[16:20], uint32(p.Mode))
	le.PutUint32(buf[20:24], p.SourceWidth)
	le.PutUint32(buf[24:28], p.SourceHeight)
	le.PutUint32(buf[28:32], math.Float32bits(p.HalfPixelU))
	le.PutUint32(buf[32:36], math.Float32bits(p.HalfPixelV))
	return buf
}

// TensorToPixelsParams configures a TensorToPixels dispatch.
// Bindings: source tensor buffer (read), destination image (write).
type TensorToPixelsParams struct {
	TensorVolume  uint32
	TextureWidth  uint32
	TextureHeight uint32
	Channels      uint32
}

// Kernel implements Params.
func (TensorToPixelsParams) Kernel() ID { return TensorToPixels }

// Bytes implements Params. Layout: 4 u32.
func (p TensorToPixelsParams) Bytes() []byte {
	buf := make([]byte, 16)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], p.TensorVolume)
	le.PutUint32(buf[4:8], p.TextureWidth)
	le.PutUint32(buf[8:12], p.TextureHeight)
	le.PutUint32(buf[12:16], p.Channels)
	return buf
}

// InterpolateParams configures an Interpolate dispatch.
// Bindings: tensor a (read), tensor b (read), destination tensor (write).
type InterpolateParams struct {
	Alpha        float32
	TensorVolume uint32
}

// Kernel implements Params.
func (InterpolateParams) Kernel() ID { return Interpolate }

// Bytes implements Params. Layout: f32, u32, padded to 16 bytes.
func (p InterpolateParams) Bytes() []byte {
	buf := make([]byte, 16)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], math.Float32bits(p.Alpha))
	le.PutUint32(buf[4:8], p.TensorVolume)
	return buf
}
