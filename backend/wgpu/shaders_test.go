// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"strings"
	"testing"

	"github.com/gogpu/styletransfer/kernel"
)

const spirvMagic = 0x07230203

func TestShaderSourcesPresent(t *testing.T) {
	for i, src := range shaderSources {
		if src.wgsl == "" {
			t.Errorf("program %d (%s): empty WGSL source", i, src.label)
		}
		if !strings.Contains(src.wgsl, "fn main") {
			t.Errorf("program %s: no main entry point", src.label)
		}
		if src.minParam%16 != 0 {
			t.Errorf("program %s: uniform size %d not 16-byte aligned", src.label, src.minParam)
		}
	}
}

func TestShaderLabelsMatchKernels(t *testing.T) {
	for id := kernel.ID(0); id < kernel.Count; id++ {
		if got := shaderSources[program(id)].label; got != id.String() {
			t.Errorf("program %d label = %q, want %q", id, got, id.String())
		}
	}
}

func TestShaderTilesMatchKernels(t *testing.T) {
	for id := kernel.ID(0); id < kernel.Count; id++ {
		if got, want := shaderSources[program(id)].tile, kernel.TileFor(id); got != want {
			t.Errorf("%v tile = %v, want %v", id, got, want)
		}
	}
}

func TestCompileShaders(t *testing.T) {
	for _, src := range shaderSources {
		t.Run(src.label, func(t *testing.T) {
			code, err := compileWGSL(src.wgsl)
			if err != nil {
				if strings.Contains(err.Error(), "not yet implemented") || strings.Contains(err.Error(), "not supported") {
					t.Skipf("naga limitation: %v", err)
				}
				t.Fatalf("compile: %v", err)
			}
			if len(code) < 5 {
				t.Fatalf("SPIR-V too short: %d words", len(code))
			}
			if code[0] != spirvMagic {
				t.Errorf("magic = %#x, want %#x", code[0], spirvMagic)
			}
		})
	}
}

func TestBlitParamsLayout(t *testing.T) {
	// 4 u32 extents followed by two vec4<u32> rectangles.
	if got := len(blitParams(testImageDesc(4, 2), testImageDesc(8, 8), rect(0, 0, 4, 2), rect(1, 1, 5, 5))); got != 48 {
		t.Errorf("blit params = %d bytes, want 48", got)
	}
}
