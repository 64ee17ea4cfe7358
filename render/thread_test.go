// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"context"
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/styletransfer/backend/software"
	"github.com/gogpu/styletransfer/graph"
	"github.com/gogpu/styletransfer/tensor"
)

func TestThreadRunsInOrder(t *testing.T) {
	th := NewThread(nil)
	defer th.Close()

	var order []int
	for i := range 10 {
		err := th.Enqueue("step", func(context.Context, *graph.Recorder) error {
			order = append(order, i)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	if err := th.Flush(); err != nil {
		t.Fatal(err)
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v", order)
		}
	}
	if len(order) != 10 {
		t.Fatalf("ran %d commands, want 10", len(order))
	}
}

func TestThreadFlushJoinsAndResetsErrors(t *testing.T) {
	th := NewThread(nil)
	defer th.Close()

	errA := errors.New("a")
	errB := errors.New("b")
	_ = th.Enqueue("a", func(context.Context, *graph.Recorder) error { return errA })
	_ = th.Enqueue("ok", func(context.Context, *graph.Recorder) error { return nil })
	_ = th.Enqueue("b", func(context.Context, *graph.Recorder) error { return errB })

	err := th.Flush()
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("Flush() = %v, want both errors", err)
	}
	if err := th.Flush(); err != nil {
		t.Errorf("second Flush() = %v, want nil", err)
	}
}

func TestThreadExecutesRecordedPasses(t *testing.T) {
	dev := software.New(software.WithWorkers(2))
	defer dev.Close()
	th := NewThread(dev)
	defer th.Close()

	pooled, err := dev.CreateBuffer(graph.BufferDesc{Size: 8, Usage: gputypes.BufferUsageStorage})
	if err != nil {
		t.Fatal(err)
	}
	err = th.Do("upload", func(_ context.Context, b *graph.Recorder) error {
		buf := b.RegisterExternalBuffer(pooled)
		return b.AddUploadPass("Upload", buf, 0, tensor.Float32Bytes([]float32{1, 2}))
	})
	if err != nil {
		t.Fatal(err)
	}

	got := make([]byte, 8)
	if err := dev.ReadBuffer(pooled, 0, got); err != nil {
		t.Fatal(err)
	}
	if v := tensor.BytesFloat32(got); v[0] != 1 || v[1] != 2 {
		t.Errorf("buffer = %v, want [1 2]", v)
	}
}

func TestThreadDoReturnsOwnError(t *testing.T) {
	th := NewThread(nil)
	defer th.Close()

	want := errors.New("boom")
	if err := th.Do("fail", func(context.Context, *graph.Recorder) error { return want }); !errors.Is(err, want) {
		t.Errorf("Do() = %v, want %v", err, want)
	}
	if err := th.Flush(); err != nil {
		t.Errorf("Flush() after Do = %v, want nil", err)
	}
}

func TestThreadClose(t *testing.T) {
	th := NewThread(nil)
	ran := false
	_ = th.Enqueue("last", func(context.Context, *graph.Recorder) error {
		ran = true
		return nil
	})
	if err := th.Close(); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Error("Close did not drain pending commands")
	}
	if err := th.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if err := th.Enqueue("late", func(context.Context, *graph.Recorder) error { return nil }); !errors.Is(err, ErrThreadClosed) {
		t.Errorf("Enqueue after Close = %v, want ErrThreadClosed", err)
	}
	if err := th.Flush(); !errors.Is(err, ErrThreadClosed) {
		t.Errorf("Flush after Close = %v, want ErrThreadClosed", err)
	}
}

func TestThreadWithoutDevice(t *testing.T) {
	th := NewThread(nil)
	defer th.Close()

	if err := th.Do("empty", func(context.Context, *graph.Recorder) error { return nil }); err != nil {
		t.Errorf("empty command without device: %v", err)
	}
	err := th.Do("upload", func(_ context.Context, b *graph.Recorder) error {
		buf := b.CreateTransientBuffer(graph.BufferDesc{Size: 4, Usage: gputypes.BufferUsageStorage})
		return b.AddUploadPass("Upload", buf, 0, make([]byte, 4))
	})
	if !errors.Is(err, graph.ErrNoDevice) {
		t.Errorf("Do() = %v, want ErrNoDevice", err)
	}
}
