// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package graph

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/styletransfer/kernel"
)

type fakePooledBuffer struct{ desc BufferDesc }

func (f *fakePooledBuffer) Desc() BufferDesc { return f.desc }

type fakePooledImage struct{ desc ImageDesc }

func (f *fakePooledImage) Desc() ImageDesc { return f.desc }

type countingDevice struct {
	executed []*Graph
}

func (d *countingDevice) Name() string { return "counting" }
func (d *countingDevice) CreateBuffer(BufferDesc) (PooledBuffer, error) { return nil, nil }
func (d *countingDevice) CreateImage(ImageDesc) (PooledImage, error) { return nil, nil }
func (d *countingDevice) ReleaseBuffer(PooledBuffer) {}
func (d *countingDevice) ReleaseImage(PooledImage) {}
func (d *countingDevice) WriteBuffer(PooledBuffer, uint64, []byte) error {
	return nil
}
func (d *countingDevice) ReadBuffer(PooledBuffer, uint64, []byte) error { return nil }
func (d *countingDevice) WriteImage(PooledImage, image.Image) error { return nil }
func (d *countingDevice) ReadImage(PooledImage) (*image.RGBA64, error) { return nil, nil }
func (d *countingDevice) Close() {}
func (d *countingDevice) Execute(_ context.Context, g *Graph) error {
	d.executed = append(d.executed, g)
	return nil
}

func TestRegisterExternalIsIdempotent(t *testing.T) {
	rec := NewRecorder(nil)
	pb := &fakePooledBuffer{desc: BufferDesc{Label: "t", Size: 16}}
	a := rec.RegisterExternalBuffer(pb)
	b := rec.RegisterExternalBuffer(pb)
	if a != b {
		t.Fatal("registering the same buffer twice returned different handles")
	}
	if !a.IsExternal() || a.Size() != 16 {
		t.Errorf("handle = %v", a)
	}

	pi := &fakePooledImage{desc: ImageDesc{Width: 2, Height: 3}}
	if rec.RegisterExternalImage(pi) != rec.RegisterExternalImage(pi) {
		t.Fatal("registering the same image twice returned different handles")
	}
	if rec.RegisterExternalBuffer(nil) != nil {
		t.Error("nil pooled buffer must register as nil")
	}
}

func TestComputePassRejectsAliasing(t *testing.T) {
	rec := NewRecorder(nil)
	buf := rec.CreateTransientBuffer(BufferDesc{Size: 64})
	params := kernel.InterpolateParams{TensorVolume: 16}
	groups := kernel.GroupCount{X: 1, Y: 1, Z: 1}

	err := rec.AddComputePass("alias", params, groups, ReadBuffer(buf), WriteBuffer(buf))
	if !errors.Is(err, ErrAliasedBinding) {
		t.Fatalf("err = %v, want ErrAliasedBinding", err)
	}
	if len(rec.Passes()) != 0 {
		t.Fatal("rejected pass was recorded")
	}

	// Two reads of one resource are fine.
	other := rec.CreateTransientBuffer(BufferDesc{Size: 64})
	if err := rec.AddComputePass("ok", params, groups, ReadBuffer(buf), ReadBuffer(buf), WriteBuffer(other)); err != nil {
		t.Fatalf("AddComputePass: %v", err)
	}
}

func TestBindingValidation(t *testing.T) {
	rec := NewRecorder(nil)
	foreign := NewRecorder(nil).CreateTransientBuffer(BufferDesc{Size: 4})
	params := kernel.InterpolateParams{}
	tests := []struct {
		name     string
		bindings []Binding
		want     error
	}{
		{"nil buffer", []Binding{ReadBuffer(nil)}, ErrNilResource},
		{"nil image", []Binding{WriteImage(nil)}, ErrNilResource},
		{"foreign", []Binding{ReadBuffer(foreign)}, ErrForeignResource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rec.AddComputePass(tt.name, params, kernel.GroupCount{}, tt.bindings...)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if err := rec.AddComputePass("nil params", nil, kernel.GroupCount{}); !errors.Is(err, ErrInvalidPass) {
		t.Errorf("nil params err = %v", err)
	}
	if err := rec.AddHostPass("nil fn", nil); !errors.Is(err, ErrInvalidPass) {
		t.Errorf("nil host fn err = %v", err)
	}
}

func TestCopyPassRange(t *testing.T) {
	rec := NewRecorder(nil)
	src := rec.CreateTransientBuffer(BufferDesc{Size: 32})
	dst := rec.CreateTransientBuffer(BufferDesc{Size: 64})

	tests := []struct {
		name string
		op   CopyOp
		want error
	}{
		{"fits", CopyOp{Src: src, Dst: dst, DstOffset: 32, Size: 32}, nil},
		{"dst overflow", CopyOp{Src: src, Dst: dst, DstOffset: 36, Size: 32}, ErrOutOfRange},
		{"src overflow", CopyOp{Src: src, Dst: dst, SrcOffset: 4, Size: 32}, ErrOutOfRange},
		{"misaligned", CopyOp{Src: src, Dst: dst, Size: 6}, ErrMisaligned},
		{"self", CopyOp{Src: src, Dst: src, Size: 4}, ErrAliasedBinding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rec.AddCopyPass(tt.name, tt.op)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestUploadPassCopiesData(t *testing.T) {
	rec := NewRecorder(nil)
	dst := rec.CreateTransientBuffer(BufferDesc{Size: 8})
	data := []byte{1, 2, 3, 4}
	if err := rec.AddUploadPass("up", dst, 4, data); err != nil {
		t.Fatal(err)
	}
	data[0] = 9
	if got := rec.Passes()[0].Upload.Data[0]; got != 1 {
		t.Errorf("upload data aliases caller slice: %d", got)
	}
	if err := rec.AddUploadPass("big", dst, 4, make([]byte, 8)); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("oversized upload err = %v", err)
	}
}

func TestScopes(t *testing.T) {
	rec := NewRecorder(nil)
	dst := rec.CreateTransientBuffer(BufferDesc{Size: 4})
	rec.BeginScope("Stylize")
	rec.BeginScope("Transfer")
	_ = rec.AddUploadPass("a", dst, 0, make([]byte, 4))
	rec.EndScope()
	_ = rec.AddUploadPass("b", dst, 0, make([]byte, 4))
	rec.EndScope()
	rec.EndScope()
	_ = rec.AddUploadPass("c", dst, 0, make([]byte, 4))

	want := []string{"Stylize/Transfer", "Stylize", ""}
	for i, p := range rec.Passes() {
		if p.Scope != want[i] {
			t.Errorf("pass %q scope = %q, want %q", p.Name, p.Scope, want[i])
		}
	}
}

func TestExecute(t *testing.T) {
	if err := NewRecorder(nil).Execute(context.Background()); err != nil {
		t.Errorf("empty recording without device: err = %v, want nil", err)
	}
	noDev := NewRecorder(nil)
	if err := noDev.AddUploadPass("upload", noDev.CreateTransientBuffer(BufferDesc{Size: 4}), 0, make([]byte, 4)); err != nil {
		t.Fatal(err)
	}
	if err := noDev.Execute(context.Background()); !errors.Is(err, ErrNoDevice) {
		t.Errorf("err = %v, want ErrNoDevice", err)
	}

	dev := &countingDevice{}
	rec := NewRecorder(dev)
	if err := rec.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(dev.executed) != 0 {
		t.Error("empty graph reached the device")
	}
	if err := rec.Execute(context.Background()); !errors.Is(err, ErrAlreadyExecuted) {
		t.Errorf("second Execute err = %v", err)
	}

	rec = NewRecorder(dev)
	img := rec.CreateTransientImage(ImageDesc{Width: 1, Height: 1, Usage: gputypes.TextureUsageTextureBinding})
	out := rec.CreateTransientImage(ImageDesc{Width: 2, Height: 2})
	if err := rec.AddRasterPass("blit", RasterOp{Src: img, Dst: out}); err != nil {
		t.Fatal(err)
	}
	if err := rec.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(dev.executed) != 1 || len(dev.executed[0].Passes) != 1 || len(dev.executed[0].Images) != 2 {
		t.Errorf("executed = %+v", dev.executed)
	}
	if !rec.Passes()[0].WritesImage(out) {
		t.Error("raster pass must write its destination")
	}
}
