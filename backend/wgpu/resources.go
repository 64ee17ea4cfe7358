// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"encoding/binary"
	"image"
	"image/color"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/styletransfer/graph"
)

// texelBytes is the size of one vec4<f32> image texel.
const texelBytes = 16

// storageUsage is added to every buffer so that kernels, copies and clears
// may touch it.
const storageUsage = gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst

// buffer is a device buffer.
type buffer struct {
	desc graph.BufferDesc
	raw  hal.Buffer
	size uint64
}

// Desc implements graph.PooledBuffer.
func (b *buffer) Desc() graph.BufferDesc { return b.desc }

// texture is an image stored as a row-major vec4<f32> storage buffer.
type texture struct {
	desc graph.ImageDesc
	raw  hal.Buffer
}

// Desc implements graph.PooledImage.
func (t *texture) Desc() graph.ImageDesc { return t.desc }

func (t *texture) size() uint64 {
	return uint64(t.desc.Width) * uint64(t.desc.Height) * texelBytes
}

// align4 rounds n up to a multiple of 4.
func align4(n uint64) uint64 { return (n + 3) &^ 3 }

func (d *Device) newBuffer(desc graph.BufferDesc) (*buffer, error) {
	size := align4(desc.Size)
	if size == 0 {
		size = 4
	}
	raw, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  size,
		Usage: desc.Usage | storageUsage,
	})
	if err != nil {
		return nil, err
	}
	return &buffer{desc: desc, raw: raw, size: size}, nil
}

func (d *Device) newTexture(desc graph.ImageDesc) (*texture, error) {
	t := &texture{desc: desc}
	raw, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  t.size(),
		Usage: storageUsage,
	})
	if err != nil {
		return nil, err
	}
	t.raw = raw
	return t, nil
}

// texelsFromImage converts img to vec4<f32> texels in [0, 1].
func texelsFromImage(img *image.RGBA64) []byte {
	b := img.Bounds()
	out := make([]byte, b.Dx()*b.Dy()*texelBytes)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.RGBA64At(x, y)
			for _, v := range [4]uint16{c.R, c.G, c.B, c.A} {
				binary.LittleEndian.PutUint32(out[i:], math.Float32bits(float32(v)/0xffff))
				i += 4
			}
		}
	}
	return out
}

// imageFromTexels converts vec4<f32> texels back to 16-bit channels.
func imageFromTexels(width, height int, data []byte) *image.RGBA64 {
	img := image.NewRGBA64(image.Rect(0, 0, width, height))
	i := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var ch [4]uint16
			for c := range ch {
				ch[c] = unorm16(math.Float32frombits(binary.LittleEndian.Uint32(data[i:])))
				i += 4
			}
			img.SetRGBA64(x, y, color.RGBA64{R: ch[0], G: ch[1], B: ch[2], A: ch[3]})
		}
	}
	return img
}

// solidTexels returns n texels of color v.
func solidTexels(n uint64, v [4]float32) []byte {
	out := make([]byte, n*texelBytes)
	for i := uint64(0); i < n; i++ {
		for c := 0; c < 4; c++ {
			binary.LittleEndian.PutUint32(out[i*texelBytes+uint64(c)*4:], math.Float32bits(v[c]))
		}
	}
	return out
}

func unorm16(v float32) uint16 {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 0xffff
	}
	return uint16(v*0xffff + 0.5)
}
