// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package postprocess hosts the post-process chain of a renderer: an
// ordered list of stages after each of which registered extensions may
// replace the scene color.
//
// Extensions publish a table of stage callbacks once, at registration.
// Each frame, the pipeline asks every extension whether it is active for
// the view and invokes the active callbacks in stage order.
package postprocess

import (
	"fmt"
	"image"
	"sync"

	"github.com/gogpu/styletransfer/graph"
)

// Stage is a post-process stage after which extensions run.
type Stage int

const (
	StageMotionBlur Stage = iota
	StageTonemap
	StageFXAA
	StageVisualizeDepthOfField
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageMotionBlur:
		return "MotionBlur"
	case StageTonemap:
		return "Tonemap"
	case StageFXAA:
		return "FXAA"
	case StageVisualizeDepthOfField:
		return "VisualizeDepthOfField"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// DefaultStages is the stage order of NewPipeline without arguments.
var DefaultStages = []Stage{StageMotionBlur, StageTonemap, StageFXAA}

// Scope restricts an extension to a viewport and, optionally, a world.
// Empty fields match anything.
type Scope struct {
	Viewport string
	World    string
}

// Matches reports whether a view with scope v is covered by s.
func (s Scope) Matches(v Scope) bool {
	if s.Viewport != "" && s.Viewport != v.Viewport {
		return false
	}
	if s.World != "" && s.World != v.World {
		return false
	}
	return true
}

// View identifies the view being rendered.
type View struct {
	Scope Scope
	Frame uint64
}

// Texture is an image plus the rectangle of it the view covers.
// An empty ViewRect means the whole image.
type Texture struct {
	Image    *graph.Image
	ViewRect image.Rectangle
}

// IsValid reports whether the texture has an image.
func (t Texture) IsValid() bool { return t.Image.IsValid() }

// Rect returns the view rectangle, defaulting to the full image.
func (t Texture) Rect() image.Rectangle {
	if t.ViewRect.Empty() && t.Image != nil {
		return image.Rect(0, 0, int(t.Image.Width()), int(t.Image.Height()))
	}
	return t.ViewRect
}

// Inputs is what a stage callback receives.
type Inputs struct {
	// SceneColor is the output of the previous stage.
	SceneColor Texture

	// Mask is an optional single channel weighting image. Nil when absent.
	Mask *graph.Image

	// OverrideOutput is set only for the last callback of the chain: the
	// callback should write the final output there and return it.
	OverrideOutput Texture
}

// HasOverride reports whether an override output target was supplied.
func (in Inputs) HasOverride() bool { return in.OverrideOutput.IsValid() }

// Callback runs after a stage and returns the new scene color.
type Callback func(b graph.Builder, view View, in Inputs) Texture

// Extension is a post-process participant.
type Extension interface {
	// IsActiveThisFrame is called once per frame before any callback.
	IsActiveThisFrame(view View) bool

	// SubscribeToPass returns the callback to run after stage, if any.
	SubscribeToPass(stage Stage) (Callback, bool)
}

type registration struct {
	ext   Extension
	table map[Stage]Callback
}

// Pipeline runs the stage chain.
//
// Pipeline is safe for concurrent use.
type Pipeline struct {
	stages []Stage

	mu   sync.RWMutex
	regs []*registration
}

// NewPipeline creates a pipeline with the given stage order, or
// DefaultStages when none are given.
func NewPipeline(stages ...Stage) *Pipeline {
	if len(stages) == 0 {
		stages = DefaultStages
	}
	return &Pipeline{stages: append([]Stage(nil), stages...)}
}

// Stages returns the stage order.
func (p *Pipeline) Stages() []Stage { return append([]Stage(nil), p.stages...) }

// Register resolves the extension's stage table and adds it to the chain.
// The returned function removes it again.
func (p *Pipeline) Register(ext Extension) (unregister func()) {
	reg := &registration{ext: ext, table: make(map[Stage]Callback)}
	for _, s := range p.stages {
		if cb, ok := ext.SubscribeToPass(s); ok && cb != nil {
			reg.table[s] = cb
		}
	}

	p.mu.Lock()
	p.regs = append(p.regs, reg)
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			for i, r := range p.regs {
				if r == reg {
					p.regs = append(p.regs[:i], p.regs[i+1:]...)
					return
				}
			}
		})
	}
}

// Registered returns the number of registered extensions.
func (p *Pipeline) Registered() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.regs)
}

// Frame is the per-frame input of Render.
type Frame struct {
	View       View
	SceneColor Texture
	Mask       *graph.Image

	// FinalOutput, when valid, receives the result of the chain.
	FinalOutput Texture
}

// Render records the post-process chain for one frame and returns the final
// texture. When the chain does not end in FinalOutput, a rescaling copy
// into it is recorded.
func (p *Pipeline) Render(b graph.Builder, f Frame) (Texture, error) {
	type call struct {
		stage Stage
		cb    Callback
	}

	p.mu.RLock()
	regs := append([]*registration(nil), p.regs...)
	p.mu.RUnlock()

	active := make([]*registration, 0, len(regs))
	for _, r := range regs {
		if r.ext.IsActiveThisFrame(f.View) {
			active = append(active, r)
		}
	}
	var calls []call
	for _, s := range p.stages {
		for _, r := range active {
			if cb, ok := r.table[s]; ok {
				calls = append(calls, call{stage: s, cb: cb})
			}
		}
	}

	current := f.SceneColor
	for i, c := range calls {
		in := Inputs{SceneColor: current, Mask: f.Mask}
		if i == len(calls)-1 {
			in.OverrideOutput = f.FinalOutput
		}
		b.BeginScope(c.stage.String())
		current = c.cb(b, f.View, in)
		b.EndScope()
	}

	if !f.FinalOutput.IsValid() || current.Image == f.FinalOutput.Image {
		return current, nil
	}
	if !current.IsValid() {
		return current, fmt.Errorf("postprocess: chain produced no image")
	}
	err := b.AddRasterPass("FinalOutput", graph.RasterOp{
		Src:     current.Image,
		Dst:     f.FinalOutput.Image,
		SrcRect: current.ViewRect,
		DstRect: f.FinalOutput.ViewRect,
	})
	if err != nil {
		return current, err
	}
	return f.FinalOutput, nil
}
