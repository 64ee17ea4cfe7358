// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// pipeline is a compiled compute program with its layouts.
type pipeline struct {
	src            *shaderSource
	module         hal.ShaderModule
	bindLayout     hal.BindGroupLayout
	pipelineLayout hal.PipelineLayout
	compute        hal.ComputePipeline
}

// pipeline returns the compute pipeline of prog, creating it on first use.
func (d *Device) pipeline(prog program) (*pipeline, error) {
	if prog < 0 || prog >= programCount {
		return nil, fmt.Errorf("wgpu: unknown program %d", prog)
	}
	if p := d.pipelines[prog]; p != nil {
		return p, nil
	}
	code, err := compiledShaders()
	if err != nil {
		return nil, err
	}
	p, err := d.createPipeline(&shaderSources[prog], code[prog])
	if err != nil {
		return nil, err
	}
	d.pipelines[prog] = p
	slogger().Debug("wgpu: pipeline created", "program", p.src.label)
	return p, nil
}

func (d *Device) createPipeline(src *shaderSource, spirv []uint32) (*pipeline, error) {
	p := &pipeline{src: src}
	var err error

	p.module, err = d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  src.label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: %s shader module: %w", src.label, err)
	}

	entries := []gputypes.BindGroupLayoutEntry{{
		Binding:    0,
		Visibility: gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	}}
	for i, t := range src.storage {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i + 1),
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: t},
		})
	}
	p.bindLayout, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   src.label,
		Entries: entries,
	})
	if err != nil {
		p.destroy(d.device)
		return nil, fmt.Errorf("wgpu: %s bind group layout: %w", src.label, err)
	}

	p.pipelineLayout, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            src.label,
		BindGroupLayouts: []hal.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		p.destroy(d.device)
		return nil, fmt.Errorf("wgpu: %s pipeline layout: %w", src.label, err)
	}

	p.compute, err = d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  src.label,
		Layout: p.pipelineLayout,
		Compute: hal.ComputeState{
			Module:     p.module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		p.destroy(d.device)
		return nil, fmt.Errorf("wgpu: %s compute pipeline: %w", src.label, err)
	}
	return p, nil
}

func (p *pipeline) destroy(dev hal.Device) {
	if p.compute != nil {
		dev.DestroyComputePipeline(p.compute)
	}
	if p.pipelineLayout != nil {
		dev.DestroyPipelineLayout(p.pipelineLayout)
	}
	if p.bindLayout != nil {
		dev.DestroyBindGroupLayout(p.bindLayout)
	}
	if p.module != nil {
		dev.DestroyShaderModule(p.module)
	}
}

func (d *Device) destroyPipelines() {
	for i, p := range d.pipelines {
		if p != nil {
			p.destroy(d.device)
			d.pipelines[i] = nil
		}
	}
}
