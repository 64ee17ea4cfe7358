// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package inference defines the inference engine contract the stylizer
// drives, the context lifecycle around it, and HostNetwork, a small
// manifest-driven engine whose operators run on the host between device
// passes.
//
// # Contexts
//
// A network executes in inference contexts, each with its own input and
// output tensors. Contexts are created and destroyed through a
// [ContextManager], which tracks the handles it issued:
//
//	m := inference.NewContextManager(net)
//	h, err := m.Create()
//	if err != nil {
//		return err // h is NoContext
//	}
//	defer m.Destroy(&h) // h becomes NoContext
//
// # Liveness
//
// Sessions keep an [Observer] of their network and check it every frame, so
// unloading a network through its [Owner] turns stylization into a
// passthrough instead of a use after release.
package inference
