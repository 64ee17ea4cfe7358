// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package capture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/gogpu/styletransfer/graph"
)

// TraceExt is the file extension of trace files.
const TraceExt = ".trace.zst"

// TraceProvider writes each capture as a zstd-compressed JSON-lines file:
// one header record followed by one record per pass.
type TraceProvider struct {
	dir string

	mu    sync.Mutex
	paths []string
}

// NewTraceProvider returns a provider writing into dir, which is created
// on first use.
func NewTraceProvider(dir string) *TraceProvider {
	return &TraceProvider{dir: dir}
}

// Name implements Provider.
func (p *TraceProvider) Name() string { return "trace" }

// Paths returns the files written so far.
func (p *TraceProvider) Paths() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.paths...)
}

// BeginCapture implements Provider.
func (p *TraceProvider) BeginCapture(label string) (Capture, error) {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	return &trace{
		p: p,
		header: TraceHeader{
			ID:    uuid.NewString(),
			Label: label,
			Start: time.Now(),
		},
	}, nil
}

// TraceHeader is the first record of a trace file.
type TraceHeader struct {
	ID       string        `json:"id"`
	Label    string        `json:"label"`
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration"`
	Passes   int           `json:"passes"`
	Error    string        `json:"error,omitempty"`
}

// TracePass is a pass record of a trace file.
type TracePass struct {
	Name   string    `json:"name"`
	Scope  string    `json:"scope,omitempty"`
	Kind   string    `json:"kind"`
	Kernel string    `json:"kernel,omitempty"`
	Groups [3]uint32 `json:"groups,omitempty"`
	Bytes  uint64    `json:"bytes,omitempty"`
	Reads  []string  `json:"reads,omitempty"`
	Writes []string  `json:"writes,omitempty"`
}

func tracePass(p *graph.Pass) TracePass {
	tp := TracePass{Name: p.Name, Scope: p.Scope, Kind: p.Kind.String()}
	switch p.Kind {
	case graph.PassCompute:
		tp.Kernel = p.Compute.Params.Kernel().String()
		g := p.Compute.Groups
		tp.Groups = [3]uint32{g.X, g.Y, g.Z}
	case graph.PassCopy:
		tp.Bytes = p.Copy.Size
	case graph.PassUpload:
		tp.Bytes = uint64(len(p.Upload.Data))
	}
	for _, b := range p.Bindings {
		var name string
		if b.Buffer != nil {
			name = b.Buffer.String()
		} else {
			name = b.Image.String()
		}
		if b.Access == graph.AccessWrite {
			tp.Writes = append(tp.Writes, name)
		} else {
			tp.Reads = append(tp.Reads, name)
		}
	}
	return tp
}

type trace struct {
	p      *TraceProvider
	header TraceHeader
	passes []TracePass
}

func (t *trace) AddPasses(passes []*graph.Pass) {
	for _, p := range passes {
		t.passes = append(t.passes, tracePass(p))
	}
}

func (t *trace) End(err error) error {
	t.header.Duration = time.Since(t.header.Start)
	t.header.Passes = len(t.passes)
	if err != nil {
		t.header.Error = err.Error()
	}

	path := filepath.Join(t.p.dir, fileName(t.header.Label)+"-"+t.header.ID+TraceExt)
	if err := t.write(path); err != nil {
		return fmt.Errorf("capture: %s: %w", path, err)
	}
	t.p.mu.Lock()
	t.p.paths = append(t.p.paths, path)
	t.p.mu.Unlock()
	return nil
}

func (t *trace) write(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	enc := json.NewEncoder(zw)
	if err := enc.Encode(t.header); err != nil {
		zw.Close()
		return err
	}
	for _, p := range t.passes {
		if err := enc.Encode(p); err != nil {
			zw.Close()
			return err
		}
	}
	return zw.Close()
}

// ReadTrace decodes a trace file.
func ReadTrace(path string) (TraceHeader, []TracePass, error) {
	var header TraceHeader
	f, err := os.Open(path)
	if err != nil {
		return header, nil, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return header, nil, err
	}
	defer zr.Close()

	dec := json.NewDecoder(zr)
	if err := dec.Decode(&header); err != nil {
		return header, nil, fmt.Errorf("capture: %s: header: %w", path, err)
	}
	passes := make([]TracePass, 0, header.Passes)
	for dec.More() {
		var p TracePass
		if err := dec.Decode(&p); err != nil {
			return header, passes, fmt.Errorf("capture: %s: %w", path, err)
		}
		passes = append(passes, p)
	}
	return header, passes, nil
}

func fileName(label string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, label)
}
