// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"

	"github.com/gogpu/styletransfer/kernel"
)

//go:embed shaders/pixels_to_tensor.wgsl
var pixelsToTensorWGSL string

//go:embed shaders/tensor_to_pixels.wgsl
var tensorToPixelsWGSL string

//go:embed shaders/interpolate.wgsl
var interpolateWGSL string

//go:embed shaders/blit.wgsl
var blitWGSL string

// program indexes the compute programs. The kernel IDs come first, followed
// by programs internal to this backend.
type program int

const (
	programBlit program = program(kernel.Count) + iota
	programCount
)

const (
	readOnly  = gputypes.BufferBindingTypeReadOnlyStorage
	readWrite = gputypes.BufferBindingTypeStorage
)

// shaderSource describes a compute program. Binding 0 is always the uniform
// parameter block; storage bindings follow in pass binding order.
type shaderSource struct {
	label    string
	wgsl     string
	storage  []gputypes.BufferBindingType
	tile     kernel.Tile
	minParam uint64
}

var shaderSources = [programCount]shaderSource{
	program(kernel.PixelsToTensor): {
		label: "pixels_to_tensor", wgsl: pixelsToTensorWGSL,
		storage: []gputypes.BufferBindingType{readOnly, readWrite},
		tile:    kernel.ImageTile, minParam: 48,
	},
	program(kernel.TensorToPixels): {
		label: "tensor_to_pixels", wgsl: tensorToPixelsWGSL,
		storage: []gputypes.BufferBindingType{readOnly, readWrite},
		tile:    kernel.ImageTile, minParam: 16,
	},
	program(kernel.Interpolate): {
		label: "interpolate", wgsl: interpolateWGSL,
		storage: []gputypes.BufferBindingType{readOnly, readOnly, readWrite},
		tile:    kernel.InterpolateTile, minParam: 16,
	},
	programBlit: {
		label: "blit", wgsl: blitWGSL,
		storage: []gputypes.BufferBindingType{readOnly, readWrite},
		tile:    kernel.ImageTile, minParam: 48,
	},
}

// compiledShaders compiles every program once per process.
var compiledShaders = sync.OnceValues(func() ([programCount][]uint32, error) {
	var out [programCount][]uint32
	for i, src := range shaderSources {
		code, err := compileWGSL(src.wgsl)
		if err != nil {
			return out, fmt.Errorf("wgpu: compile %s: %w", src.label, err)
		}
		out[i] = code
	}
	return out, nil
})

// compileWGSL compiles WGSL to SPIR-V words.
func compileWGSL(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, err
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("SPIR-V length %d is not a multiple of 4", len(spirvBytes))
	}
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	return code, nil
}
