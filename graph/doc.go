// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package graph is a minimal frame graph: passes are recorded against
// graph-local resource handles through a [Builder] and later executed, in
// recording order, by a [Device].
//
// Resources are either transient (allocated for the lifetime of one
// executed graph) or external (pooled device memory that outlives it, such
// as inference tensors and scene color). External resources are registered
// into each graph that uses them.
//
// A pass declares every resource it touches with an access mode. The
// recorder rejects a pass that reads and writes the same resource, so a
// kernel never observes its own output.
//
// Basic usage:
//
//	rec := graph.NewRecorder(device)
//	out := rec.CreateTransientImage(graph.ImageDesc{Width: 64, Height: 64, ...})
//	if err := rec.AddComputePass("Blit", params, groups, graph.Read(src), graph.Write(out)); err != nil {
//		return err
//	}
//	err := rec.Execute(ctx)
package graph
