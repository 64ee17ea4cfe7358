// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernel

import "math"

// Texels is an image the reference kernels sample from.
// Channels are normalized to [0, 1].
type Texels interface {
	Size() (width, height int)
	Texel(x, y int) [4]float32
}

// TexelWriter is an image the reference kernels write to.
type TexelWriter interface {
	Size() (width, height int)
	SetTexel(x, y int, v [4]float32)
}

// SampleBilinear samples src at normalized coordinates (u, v) with bilinear
// filtering and clamp-to-edge addressing. Texel centers sit at half-integer
// positions, as with a GPU linear sampler.
func SampleBilinear(src Texels, u, v float32) [4]float32 {
	w, h := src.Size()
	if w <= 0 || h <= 0 {
		return [4]float32{}
	}

	x := u*float32(w) - 0.5
	y := v*float32(h) - 0.5
	x0f := float32(math.Floor(float64(x)))
	y0f := float32(math.Floor(float64(y)))
	fx := x - x0f
	fy := y - y0f

	x0 := clampInt(int(x0f), 0, w-1)
	x1 := clampInt(int(x0f)+1, 0, w-1)
	y0 := clampInt(int(y0f), 0, h-1)
	y1 := clampInt(int(y0f)+1, 0, h-1)

	t00 := src.Texel(x0, y0)
	t10 := src.Texel(x1, y0)
	t01 := src.Texel(x0, y1)
	t11 := src.Texel(x1, y1)

	var out [4]float32
	for c := 0; c < 4; c++ {
		top := t00[c] + fx*(t10[c]-t00[c])
		bottom := t01[c] + fx*(t11[c]-t01[c])
		out[c] = top + fy*(bottom-top)
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RunPixelsToTensor executes one PixelsToTensor invocation.
// Invocation (row, col) writes tensor elements (row*Cols + col)*Channels + c.
func RunPixelsToTensor(p PixelsToTensorParams, src Texels, dst []float32, row, col uint32) {
	if row >= p.Rows || col >= p.Cols {
		return
	}
	base := (uint64(row)*uint64(p.Cols) + uint64(col)) * uint64(p.Channels)
	if base+uint64(p.Channels) > uint64(p.TensorVolume) || base+uint64(p.Channels) > uint64(len(dst)) {
		return
	}

	u := float32(col)/float32(p.Cols) + p.HalfPixelU
	v := float32(row)/float32(p.Rows) + p.HalfPixelV
	t := SampleBilinear(src, u, v)

	if p.Mode == ChannelGrayscale {
		dst[base] = t[0]
		return
	}
	n := p.Channels
	if n > 3 {
		n = 3
	}
	for c := uint32(0); c < n; c++ {
		dst[base+uint64(c)] = t[c]
	}
}

// RunTensorToPixels executes one TensorToPixels invocation.
// Invocation (row, col) writes the pixel at x = col, y = row. Single channel
// tensors are replicated to gray; alpha is always 1.
func RunTensorToPixels(p TensorToPixelsParams, src []float32, dst TexelWriter, row, col uint32) {
	if row >= p.TextureHeight || col >= p.TextureWidth || p.Channels == 0 {
		return
	}
	base := (uint64(row)*uint64(p.TextureWidth) + uint64(col)) * uint64(p.Channels)
	if base+uint64(p.Channels) > uint64(p.TensorVolume) || base+uint64(p.Channels) > uint64(len(src)) {
		return
	}

	px := [4]float32{0, 0, 0, 1}
	if p.Channels == 1 {
		g := src[base]
		px[0], px[1], px[2] = g, g, g
	} else {
		n := p.Channels
		if n > 3 {
			n = 3
		}
		for c := uint32(0); c < n; c++ {
			px[c] = src[base+uint64(c)]
		}
	}
	dst.SetTexel(int(col), int(row), px)
}

// RunInterpolate executes one Interpolate invocation.
// Alpha 1 selects b exactly; a + (b-a) may round away from b.
func RunInterpolate(p InterpolateParams, dst, a, b []float32, i uint32) {
	if i >= p.TensorVolume || int(i) >= len(dst) || int(i) >= len(a) || int(i) >= len(b) {
		return
	}
	if p.Alpha == 1 {
		dst[i] = b[i]
		return
	}
	dst[i] = a[i] + p.Alpha*(b[i]-a[i])
}

// ForEachInvocation calls fn for every invocation of thread group
// (gx, gy, gz) of the given tile.
func ForEachInvocation(tile Tile, gx, gy, gz uint32, fn func(x, y, z uint32)) {
	for lz := uint32(0); lz < tile.Z; lz++ {
		for ly := uint32(0); ly < tile.Y; ly++ {
			for lx := uint32(0); lx < tile.X; lx++ {
				fn(gx*tile.X+lx, gy*tile.Y+ly, gz*tile.Z+lz)
			}
		}
	}
}
