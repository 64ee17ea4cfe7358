// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package style_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"path/filepath"
	"testing"

	"github.com/gogpu/styletransfer/backend/software"
	"github.com/gogpu/styletransfer/graph"
	"github.com/gogpu/styletransfer/inference"
	"github.com/gogpu/styletransfer/style"
	"github.com/gogpu/styletransfer/tensor"
)

type fixture struct {
	dev        *software.Device
	pipeline   *style.Pipeline
	transfer   inference.ContextHandle
	prediction [2]inference.ContextHandle
}

func newFixture(t *testing.T, styleShape tensor.Shape) *fixture {
	t.Helper()
	dev := software.New(software.WithWorkers(2))
	t.Cleanup(dev.Close)

	pred := inference.NewHostNetwork(dev)
	if err := pred.LoadManifest(&inference.Manifest{
		Name:     "prediction",
		Operator: inference.OperatorColorStats,
		Inputs:   []inference.TensorDesc{{Name: "style", Shape: tensor.Shape{1, 4, 4, 3}}},
		Outputs:  []inference.TensorDesc{{Name: "encoding", Shape: tensor.Shape{1, 6}}},
	}); err != nil {
		t.Fatal(err)
	}
	xfer := inference.NewHostNetwork(dev)
	if err := xfer.LoadManifest(&inference.Manifest{
		Name:     "transfer",
		Operator: inference.OperatorIdentity,
		Inputs: []inference.TensorDesc{
			{Name: "content", Shape: tensor.Shape{1, 2, 2, 3}},
			{Name: inference.InputStyleParams, Shape: styleShape},
		},
		Outputs: []inference.TensorDesc{{Name: "stylized", Shape: tensor.Shape{1, 2, 2, 3}}},
	}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pred.Close)
	t.Cleanup(xfer.Close)

	f := &fixture{dev: dev, pipeline: &style.Pipeline{Prediction: pred, Transfer: xfer}}
	var err error
	if f.transfer, err = xfer.CreateInferenceContext(); err != nil {
		t.Fatal(err)
	}
	for i := range f.prediction {
		if f.prediction[i], err = pred.CreateInferenceContext(); err != nil {
			t.Fatal(err)
		}
	}
	return f
}

func (f *fixture) styleImage(t *testing.T, c color.Color) graph.PooledImage {
	t.Helper()
	p, err := f.dev.CreateImage(graph.ImageDesc{Width: 8, Height: 8})
	if err != nil {
		t.Fatal(err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < len(img.Pix); i += 4 {
		r, g, b, a := c.RGBA()
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = uint8(r>>8), uint8(g>>8), uint8(b>>8), uint8(a>>8)
	}
	if err := f.dev.WriteImage(p, img); err != nil {
		t.Fatal(err)
	}
	return p
}

func (f *fixture) update(t *testing.T, img graph.PooledImage, slot, pred int) {
	t.Helper()
	rec := graph.NewRecorder(f.dev)
	if err := f.pipeline.RecordUpdate(rec, rec.RegisterExternalImage(img), slot, f.prediction[pred], f.transfer); err != nil {
		t.Fatal(err)
	}
	if err := rec.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) styleParams(t *testing.T) []float32 {
	t.Helper()
	in, err := f.pipeline.StyleInput(f.transfer)
	if err != nil {
		t.Fatal(err)
	}
	raw := make([]byte, in.NumBytes())
	if err := f.dev.ReadBuffer(in.Storage(), 0, raw); err != nil {
		t.Fatal(err)
	}
	return tensor.BytesFloat32(raw)
}

func closeTo(t *testing.T, what string, got, want []float32) {
	t.Helper()
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-3 {
			t.Fatalf("%s = %v, want %v", what, got, want)
		}
	}
}

func TestUpdateStyleSlotIsolation(t *testing.T) {
	f := newFixture(t, tensor.Shape{2, 6})
	red := f.styleImage(t, color.RGBA{255, 0, 0, 255})
	blue := f.styleImage(t, color.RGBA{0, 0, 255, 255})

	f.update(t, red, 0, 0)
	closeTo(t, "after slot 0", f.styleParams(t), []float32{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})

	f.update(t, blue, 1, 1)
	closeTo(t, "after slot 1", f.styleParams(t), []float32{1, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0})

	// Rewriting slot 0 leaves slot 1 intact.
	f.update(t, blue, 0, 0)
	closeTo(t, "after slot 0 rewrite", f.styleParams(t), []float32{0, 0, 1, 0, 0, 0, 0, 0, 1, 0, 0, 0})
}

func TestUpdateStyleRecordsInOrder(t *testing.T) {
	f := newFixture(t, tensor.Shape{1, 6})
	rec := graph.NewRecorder(f.dev)
	img := rec.RegisterExternalImage(f.styleImage(t, color.White))
	if err := f.pipeline.RecordUpdate(rec, img, 0, f.prediction[0], f.transfer); err != nil {
		t.Fatal(err)
	}
	kinds := []graph.PassKind{graph.PassCompute, graph.PassHost, graph.PassCopy}
	passes := rec.Passes()
	if len(passes) != len(kinds) {
		t.Fatalf("recorded %d passes, want %d", len(passes), len(kinds))
	}
	for i, p := range passes {
		if p.Kind != kinds[i] || p.Scope != style.ScopeUpdate {
			t.Errorf("pass %d = %s in %q", i, p.Kind, p.Scope)
		}
	}
}

func TestUpdateStylePreconditions(t *testing.T) {
	tests := []struct {
		name       string
		styleShape tensor.Shape
		slot       int
		noTransfer bool
		want       error
	}{
		{"size mismatch", tensor.Shape{1, 7}, 0, false, style.ErrSizeMismatch},
		{"slot past input", tensor.Shape{1, 6}, 1, false, style.ErrSlotRange},
		{"negative slot", tensor.Shape{2, 6}, -1, false, style.ErrSlotRange},
		{"slot past max", tensor.Shape{3, 6}, 2, false, style.ErrSlotRange},
		{"no transfer context", tensor.Shape{1, 6}, 0, true, style.ErrInvalidContext},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.styleShape)
			transfer := f.transfer
			if tt.noTransfer {
				transfer = inference.NoContext
			}
			rec := graph.NewRecorder(f.dev)
			img := rec.RegisterExternalImage(f.styleImage(t, color.White))
			err := f.pipeline.RecordUpdate(rec, img, tt.slot, f.prediction[0], transfer)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if len(rec.Passes()) != 0 {
				t.Errorf("%d passes recorded despite error", len(rec.Passes()))
			}
		})
	}
}

func TestUploadRawEncoding(t *testing.T) {
	f := newFixture(t, tensor.Shape{1, 6})

	rec := graph.NewRecorder(f.dev)
	err := f.pipeline.RecordUpload(rec, f.transfer, make([]byte, 20))
	if !errors.Is(err, style.ErrSizeMismatch) {
		t.Fatalf("err = %v, want ErrSizeMismatch", err)
	}
	if len(rec.Passes()) != 0 {
		t.Fatal("upload recorded despite size mismatch")
	}

	want := []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}
	if err := f.pipeline.RecordUpload(rec, f.transfer, tensor.Float32Bytes(want)); err != nil {
		t.Fatal(err)
	}
	if err := rec.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	closeTo(t, "style params", f.styleParams(t), want)
}

func TestInterpolateStyles(t *testing.T) {
	for _, shape := range []tensor.Shape{{1, 6}, {2, 6}} {
		f := newFixture(t, shape)
		f.update(t, f.styleImage(t, color.RGBA{255, 0, 0, 255}), 0, 0)
		f.update(t, f.styleImage(t, color.RGBA{0, 0, 255, 255}), int(shape.Volume()/6-1), 1)

		var slots style.Slots
		for _, h := range f.prediction {
			if _, err := slots.Add(h); err != nil {
				t.Fatal(err)
			}
		}

		rec := graph.NewRecorder(f.dev)
		if err := f.pipeline.RecordInterpolate(rec, f.transfer, &slots, f.prediction[0], f.prediction[1], 0.25); err != nil {
			t.Fatal(err)
		}
		if err := rec.Execute(context.Background()); err != nil {
			t.Fatal(err)
		}
		// Interpolation reads prediction outputs, so slot 0 blends red and
		// blue even though slot 0 of the style input was overwritten.
		closeTo(t, "interpolated", f.styleParams(t)[:6], []float32{0.75, 0, 0.25, 0, 0, 0})
	}
}

func TestInterpolateStylesUntracked(t *testing.T) {
	f := newFixture(t, tensor.Shape{1, 6})
	var slots style.Slots
	if _, err := slots.Add(f.prediction[0]); err != nil {
		t.Fatal(err)
	}
	rec := graph.NewRecorder(f.dev)
	err := f.pipeline.RecordInterpolate(rec, f.transfer, &slots, f.prediction[0], f.prediction[1], 0.5)
	if !errors.Is(err, style.ErrUntrackedSlot) {
		t.Errorf("err = %v, want ErrUntrackedSlot", err)
	}
	if len(rec.Passes()) != 0 {
		t.Error("passes recorded despite error")
	}
}

func TestSlots(t *testing.T) {
	var s style.Slots
	a, err := s.Add(3)
	if err != nil || a.Index != 0 {
		t.Fatalf("Add(3) = %+v, %v", a, err)
	}
	b, _ := s.Add(5)
	if b.Index != 1 {
		t.Errorf("second slot index = %d", b.Index)
	}
	if _, err := s.Add(7); !errors.Is(err, style.ErrSlotRange) {
		t.Errorf("third Add err = %v", err)
	}
	if _, err := s.Add(inference.NoContext); !errors.Is(err, style.ErrInvalidContext) {
		t.Errorf("Add(NoContext) err = %v", err)
	}
	s.Remove(3)
	c, _ := s.Add(7)
	if c.Index != 0 {
		t.Errorf("freed slot not reused: %+v", c)
	}
	if s.Len() != 2 {
		t.Errorf("Len = %d", s.Len())
	}
	s.Clear()
	if len(s.All()) != 0 {
		t.Error("Clear left slots")
	}
}

func TestEncodingFiles(t *testing.T) {
	values := []float32{0.5, -1, 2, 0.25}
	for _, name := range []string{"style.bin", "style.f16"} {
		path := filepath.Join(t.TempDir(), name)
		if err := style.WriteEncodingFile(path, values); err != nil {
			t.Fatal(err)
		}
		raw, err := style.ReadEncodingFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if len(raw) != len(values)*4 {
			t.Fatalf("%s: %d bytes, want %d", name, len(raw), len(values)*4)
		}
		closeTo(t, name, tensor.BytesFloat32(raw), values)
	}
}
