// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/gogpu/styletransfer/graph"
)

// buffer is device buffer memory. Elements are 32-bit words stored as float32.
type buffer struct {
	desc graph.BufferDesc
	data []float32
}

func newBuffer(desc graph.BufferDesc) *buffer {
	return &buffer{desc: desc, data: make([]float32, (desc.Size+3)/4)}
}

// Desc implements graph.PooledBuffer.
func (b *buffer) Desc() graph.BufferDesc { return b.desc }

func (b *buffer) write(offset uint64, src []byte) error {
	if offset%4 != 0 || len(src)%4 != 0 {
		return fmt.Errorf("software: write %d bytes at %d: %w", len(src), offset, graph.ErrMisaligned)
	}
	if offset+uint64(len(src)) > b.desc.Size {
		return fmt.Errorf("software: write %d bytes at %d into %d: %w", len(src), offset, b.desc.Size, graph.ErrOutOfRange)
	}
	base := offset / 4
	for i := 0; i < len(src)/4; i++ {
		b.data[base+uint64(i)] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return nil
}

func (b *buffer) read(offset uint64, dst []byte) error {
	if offset+uint64(len(dst)) > b.desc.Size {
		return fmt.Errorf("software: read %d bytes at %d from %d: %w", len(dst), offset, b.desc.Size, graph.ErrOutOfRange)
	}
	var word [4]byte
	for i := range dst {
		pos := offset + uint64(i)
		binary.LittleEndian.PutUint32(word[:], math.Float32bits(b.data[pos/4]))
		dst[i] = word[pos%4]
	}
	return nil
}

// texture is device image memory.
type texture struct {
	desc graph.ImageDesc
	img  *image.RGBA64
}

func newTexture(desc graph.ImageDesc) *texture {
	return &texture{
		desc: desc,
		img:  image.NewRGBA64(image.Rect(0, 0, int(desc.Width), int(desc.Height))),
	}
}

// Desc implements graph.PooledImage.
func (t *texture) Desc() graph.ImageDesc { return t.desc }

// Size implements kernel.Texels.
func (t *texture) Size() (int, int) { return int(t.desc.Width), int(t.desc.Height) }

// Texel implements kernel.Texels.
func (t *texture) Texel(x, y int) [4]float32 {
	c := t.img.RGBA64At(x, y)
	return [4]float32{
		float32(c.R) / 0xffff,
		float32(c.G) / 0xffff,
		float32(c.B) / 0xffff,
		float32(c.A) / 0xffff,
	}
}

// SetTexel implements kernel.TexelWriter.
func (t *texture) SetTexel(x, y int, v [4]float32) {
	t.img.SetRGBA64(x, y, color.RGBA64{
		R: unorm16(v[0]),
		G: unorm16(v[1]),
		B: unorm16(v[2]),
		A: unorm16(v[3]),
	})
}

func (t *texture) clear(v [4]float32) {
	c := color.RGBA64{R: unorm16(v[0]), G: unorm16(v[1]), B: unorm16(v[2]), A: unorm16(v[3])}
	b := t.img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			t.img.SetRGBA64(x, y, c)
		}
	}
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
