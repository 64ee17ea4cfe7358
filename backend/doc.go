// Package backend selects the frame-graph device that executes
// stylization graphs.
//
// Devices are registered via init() functions and selected at runtime.
// Import the device packages you want available:
//
//	import (
//		_ "github.com/gogpu/styletransfer/backend/software"
//		_ "github.com/gogpu/styletransfer/backend/wgpu"
//	)
//
// # Device Selection
//
// Use OpenDefault() to open the best available device, or Open() to request
// one by name:
//
//	dev, err := backend.OpenDefault()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
// # Available Backends
//
// - "software": CPU execution of the kernels (always available)
// - "wgpu": Vulkan compute via gogpu/wgpu, kernels compiled from WGSL by naga
package backend
