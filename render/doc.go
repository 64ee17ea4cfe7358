// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package render provides the rendering timeline: a single goroutine that
// executes recorded frame graphs in submission order.
//
// Control code enqueues commands and brackets every mutation of state that
// the rendering timeline also reads with Flush:
//
//	t := render.NewThread(dev)
//	defer t.Close()
//
//	t.Enqueue("UpdateStyle", func(ctx context.Context, b *graph.Recorder) error {
//	    return pipeline.RecordUpdate(b, img, 0, pred, transfer)
//	})
//	if err := t.Flush(); err != nil {
//	    return err
//	}
//
// Each command receives a fresh graph.Recorder bound to the thread's device.
// The recorder is executed after the command returns, so passes run in the
// order the command recorded them.
//
// # Device Sharing
//
// A host application that already owns a GPU device passes it as a
// DeviceHandle (gpucontext.DeviceProvider) to the wgpu backend, which then
// records onto the shared device instead of creating its own.
package render
