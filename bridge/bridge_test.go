// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package bridge_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/styletransfer/backend/software"
	"github.com/gogpu/styletransfer/bridge"
	"github.com/gogpu/styletransfer/graph"
	"github.com/gogpu/styletransfer/kernel"
	"github.com/gogpu/styletransfer/tensor"
)

const tolerance = 1.0 / 255

func newDevice(t *testing.T) *software.Device {
	t.Helper()
	d := software.New(software.WithWorkers(4))
	t.Cleanup(d.Close)
	return d
}

func newTensor(t *testing.T, d graph.Device, name string, shape tensor.Shape) *tensor.Tensor {
	t.Helper()
	buf, err := d.CreateBuffer(graph.BufferDesc{Label: name, Size: tensor.BufferSize(shape), Usage: gputypes.BufferUsageStorage})
	if err != nil {
		t.Fatal(err)
	}
	tn, err := tensor.New(name, shape, buf)
	if err != nil {
		t.Fatal(err)
	}
	return tn
}

func uploadFloats(t *testing.T, d graph.Device, tn *tensor.Tensor, v []float32) {
	t.Helper()
	if err := d.WriteBuffer(tn.Storage(), 0, tensor.Float32Bytes(v)); err != nil {
		t.Fatal(err)
	}
}

func readFloats(t *testing.T, d graph.Device, tn *tensor.Tensor) []float32 {
	t.Helper()
	raw := make([]byte, tn.NumBytes())
	if err := d.ReadBuffer(tn.Storage(), 0, raw); err != nil {
		t.Fatal(err)
	}
	return tensor.BytesFloat32(raw)
}

func newImage(t *testing.T, d graph.Device, w, h int, fill func(x, y int) color.Color) graph.PooledImage {
	t.Helper()
	p, err := d.CreateImage(graph.ImageDesc{
		Width: uint32(w), Height: uint32(h),
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  gputypes.TextureUsageTextureBinding,
	})
	if err != nil {
		t.Fatal(err)
	}
	img := image.NewRGBA64(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill(x, y))
		}
	}
	if err := d.WriteImage(p, img); err != nil {
		t.Fatal(err)
	}
	return p
}

func execute(t *testing.T, rec *graph.Recorder) {
	t.Helper()
	if err := rec.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func near(a, b float32) bool { return math.Abs(float64(a-b)) <= tolerance }

func TestPixelsToTensorUniformColor(t *testing.T) {
	d := newDevice(t)
	want := [3]float32{0.8, 0.2, 0.4}
	uniform := color.RGBA64{R: uint16(want[0] * 0xffff), G: uint16(want[1] * 0xffff), B: uint16(want[2] * 0xffff), A: 0xffff}

	sizes := []struct{ srcW, srcH, dstH, dstW int }{
		{4, 4, 4, 4},
		{640, 360, 9, 16},
		{5, 3, 17, 11},
		{1, 1, 8, 8},
		{33, 70, 1, 1},
	}
	for _, sz := range sizes {
		src := newImage(t, d, sz.srcW, sz.srcH, func(int, int) color.Color { return uniform })
		dst := newTensor(t, d, "content", tensor.Shape{1, int64(sz.dstH), int64(sz.dstW), 3})

		rec := graph.NewRecorder(d)
		if err := bridge.PixelsToTensor(rec, rec.RegisterExternalImage(src), dst, kernel.ChannelRGB); err != nil {
			t.Fatal(err)
		}
		execute(t, rec)

		for i, v := range readFloats(t, d, dst) {
			if !near(v, want[i%3]) {
				t.Fatalf("%dx%d -> %dx%d: element %d = %v, want %v", sz.srcW, sz.srcH, sz.dstW, sz.dstH, i, v, want[i%3])
			}
		}
	}
}

func TestPixelsToTensorDispatchSize(t *testing.T) {
	d := newDevice(t)
	src := newImage(t, d, 4, 4, func(int, int) color.Color { return color.White })
	dst := newTensor(t, d, "content", tensor.Shape{1, 17, 9, 3})

	rec := graph.NewRecorder(d)
	if err := bridge.PixelsToTensor(rec, rec.RegisterExternalImage(src), dst, kernel.ChannelRGB); err != nil {
		t.Fatal(err)
	}
	p := rec.Passes()[0]
	if want := (kernel.GroupCount{X: 3, Y: 2, Z: 1}); p.Compute.Groups != want {
		t.Errorf("groups = %+v, want %+v", p.Compute.Groups, want)
	}
	params := p.Compute.Params.(kernel.PixelsToTensorParams)
	if params.HalfPixelU != 0.125 || params.HalfPixelV != 0.125 {
		t.Errorf("half pixel = (%v, %v), want 0.125", params.HalfPixelU, params.HalfPixelV)
	}
}

func TestPixelsToTensorGrayscaleMask(t *testing.T) {
	d := newDevice(t)
	src := newImage(t, d, 2, 2, func(x, _ int) color.Color {
		if x == 0 {
			return color.RGBA{0, 255, 255, 255}
		}
		return color.RGBA{255, 0, 0, 255}
	})
	dst := newTensor(t, d, "weights", tensor.Shape{1, 2, 2, 1})

	rec := graph.NewRecorder(d)
	if err := bridge.PixelsToTensor(rec, rec.RegisterExternalImage(src), dst, kernel.ChannelGrayscale); err != nil {
		t.Fatal(err)
	}
	execute(t, rec)

	got := readFloats(t, d, dst)
	want := []float32{0, 1, 0, 1}
	for i := range want {
		if !near(got[i], want[i]) {
			t.Fatalf("mask = %v, want %v", got, want)
		}
	}
}

func TestPixelsToTensorRejectsBadInputs(t *testing.T) {
	d := newDevice(t)
	src := newImage(t, d, 2, 2, func(int, int) color.Color { return color.White })

	tests := []struct {
		name  string
		shape tensor.Shape
		mode  kernel.ChannelMode
		want  error
	}{
		{"rgb needs 3", tensor.Shape{1, 2, 2, 4}, kernel.ChannelRGB, bridge.ErrChannelCount},
		{"gray needs 1", tensor.Shape{1, 2, 2, 3}, kernel.ChannelGrayscale, bridge.ErrChannelCount},
		{"rank", tensor.Shape{1, 12}, kernel.ChannelRGB, bridge.ErrTensorShape},
		{"batch", tensor.Shape{2, 2, 2, 3}, kernel.ChannelRGB, bridge.ErrTensorShape},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := graph.NewRecorder(d)
			err := bridge.PixelsToTensor(rec, rec.RegisterExternalImage(src), newTensor(t, d, "x", tt.shape), tt.mode)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if len(rec.Passes()) != 0 {
				t.Error("pass recorded despite error")
			}
		})
	}

	rec := graph.NewRecorder(d)
	err := bridge.PixelsToTensor(rec, nil, newTensor(t, d, "x", tensor.Shape{1, 2, 2, 3}), kernel.ChannelRGB)
	if !errors.Is(err, bridge.ErrInvalidImage) {
		t.Errorf("nil image err = %v", err)
	}
}

func TestTensorToPixelsAxisMapping(t *testing.T) {
	d := newDevice(t)
	const h, w = 2, 3
	src := newTensor(t, d, "output", tensor.Shape{1, h, w, 3})
	values := make([]float32, h*w*3)
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			base := (row*w + col) * 3
			values[base] = float32(col) / 4
			values[base+1] = float32(row) / 4
			values[base+2] = 1
		}
	}
	uploadFloats(t, d, src, values)

	target, err := d.CreateImage(graph.ImageDesc{Width: w, Height: h})
	if err != nil {
		t.Fatal(err)
	}
	rec := graph.NewRecorder(d)
	out, err := bridge.TensorToPixels(rec, src, graph.ImageDesc{Format: gputypes.TextureFormatRGBA8Unorm, Usage: gputypes.TextureUsageTextureBinding})
	if err != nil {
		t.Fatal(err)
	}
	if out.Width() != w || out.Height() != h {
		t.Fatalf("output extent = %dx%d, want %dx%d", out.Width(), out.Height(), w, h)
	}
	desc := out.Desc()
	if !desc.HasUsage(bridge.OutputUsage|gputypes.TextureUsageTextureBinding) || !desc.Clear {
		t.Errorf("output desc = %+v", desc)
	}
	p := rec.Passes()[0]
	if want := (kernel.GroupCount{X: 1, Y: 1, Z: 1}); p.Compute.Groups != want {
		t.Errorf("groups = %+v", p.Compute.Groups)
	}
	if err := bridge.RescalingCopy(rec, out, image.Rectangle{}, rec.RegisterExternalImage(target), image.Rectangle{}); err != nil {
		t.Fatal(err)
	}
	execute(t, rec)

	img, _ := d.ReadImage(target)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.RGBA64At(x, y)
			r, g := float32(c.R)/0xffff, float32(c.G)/0xffff
			if !near(r, float32(x)/4) || !near(g, float32(y)/4) || c.A != 0xffff {
				t.Errorf("pixel(%d,%d) = (%v, %v, a=%d), want (%v, %v)", x, y, r, g, c.A, float32(x)/4, float32(y)/4)
			}
		}
	}
}

func TestTensorToPixelsRejectsNonImageTensor(t *testing.T) {
	d := newDevice(t)
	rec := graph.NewRecorder(d)
	if _, err := bridge.TensorToPixels(rec, newTensor(t, d, "enc", tensor.Shape{1, 6}), graph.ImageDesc{}); !errors.Is(err, bridge.ErrTensorShape) {
		t.Errorf("err = %v, want ErrTensorShape", err)
	}
	if len(rec.Passes()) != 0 {
		t.Error("pass recorded despite error")
	}
}

func TestInterpolate(t *testing.T) {
	d := newDevice(t)
	const n = 130
	a := newTensor(t, d, "a", tensor.Shape{1, n})
	b := newTensor(t, d, "b", tensor.Shape{1, n})
	av, bv := make([]float32, n), make([]float32, n)
	for i := range av {
		av[i] = float32(i) * 0.5
		bv[i] = float32(n-i) * 0.25
	}
	uploadFloats(t, d, a, av)
	uploadFloats(t, d, b, bv)

	for _, alpha := range []float32{0, 0.3, 1, -0.5, 1.5} {
		dst := newTensor(t, d, "dst", tensor.Shape{1, n})
		rec := graph.NewRecorder(d)
		if err := bridge.Interpolate(rec, dst, a, b, alpha); err != nil {
			t.Fatal(err)
		}
		if g := rec.Passes()[0].Compute.Groups; g.X != 3 {
			t.Errorf("groups = %+v, want 3 along x", g)
		}
		execute(t, rec)

		got := readFloats(t, d, dst)
		for i := range got {
			want := av[i] + alpha*(bv[i]-av[i])
			if math.Abs(float64(got[i]-want)) > 1e-4 {
				t.Fatalf("alpha %v: dst[%d] = %v, want %v", alpha, i, got[i], want)
			}
		}
		switch alpha {
		case 0:
			for i := range got {
				if got[i] != av[i] {
					t.Fatal("alpha 0 must reproduce a")
				}
			}
		case 1:
			for i := range got {
				if got[i] != bv[i] {
					t.Fatal("alpha 1 must reproduce b")
				}
			}
		}
	}
}

func TestInterpolateVolumeMismatch(t *testing.T) {
	d := newDevice(t)
	rec := graph.NewRecorder(d)
	err := bridge.Interpolate(rec,
		newTensor(t, d, "dst", tensor.Shape{1, 4}),
		newTensor(t, d, "a", tensor.Shape{1, 4}),
		newTensor(t, d, "b", tensor.Shape{1, 5}), 0.5)
	if !errors.Is(err, bridge.ErrVolumeMismatch) {
		t.Errorf("err = %v, want ErrVolumeMismatch", err)
	}
	if len(rec.Passes()) != 0 {
		t.Error("pass recorded despite error")
	}
}

func TestInterpolateRejectsAliasing(t *testing.T) {
	d := newDevice(t)
	a := newTensor(t, d, "a", tensor.Shape{1, 4})
	b := newTensor(t, d, "b", tensor.Shape{1, 4})
	rec := graph.NewRecorder(d)
	if err := bridge.Interpolate(rec, a, a, b, 0.5); !errors.Is(err, graph.ErrAliasedBinding) {
		t.Errorf("err = %v, want ErrAliasedBinding", err)
	}
}
