// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package capture brackets graph recordings with render capture providers.
//
// A provider is an optional, process-wide feature (a GPU debugger bridge,
// a trace writer). Code that wants its work captured calls Begin before
// recording and End after the recording has executed; when no provider is
// registered both are no-ops.
package capture

import (
	"errors"
	"sort"
	"sync"

	"github.com/gogpu/styletransfer/graph"
)

// Capture is one open capture.
type Capture interface {
	// AddPasses records passes into the capture.
	AddPasses(passes []*graph.Pass)

	// End closes the capture. err is the outcome of the captured work.
	End(err error) error
}

// Provider opens captures.
type Provider interface {
	Name() string
	BeginCapture(label string) (Capture, error)
}

var (
	mu        sync.RWMutex
	providers = make(map[string]Provider)
)

// Register adds a provider, replacing one with the same name.
func Register(p Provider) {
	mu.Lock()
	defer mu.Unlock()
	providers[p.Name()] = p
}

// Unregister removes the named provider.
func Unregister(name string) {
	mu.Lock()
	defer mu.Unlock()
	delete(providers, name)
}

// Available reports whether any provider is registered.
func Available() bool {
	mu.RLock()
	defer mu.RUnlock()
	return len(providers) > 0
}

// Providers returns the registered provider names, sorted.
func Providers() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Begin opens a capture on every registered provider. The returned capture
// is never nil. Providers that fail to begin are skipped and their errors
// joined into the returned error.
func Begin(label string) (Capture, error) {
	mu.RLock()
	ps := make([]Provider, 0, len(providers))
	for _, p := range providers {
		ps = append(ps, p)
	}
	mu.RUnlock()
	sort.Slice(ps, func(i, j int) bool { return ps[i].Name() < ps[j].Name() })

	var (
		caps multi
		errs []error
	)
	for _, p := range ps {
		c, err := p.BeginCapture(label)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		caps = append(caps, c)
	}
	if len(caps) == 0 {
		return nop{}, errors.Join(errs...)
	}
	return caps, errors.Join(errs...)
}

type nop struct{}

func (nop) AddPasses([]*graph.Pass) {}
func (nop) End(error) error         { return nil }

type multi []Capture

func (m multi) AddPasses(passes []*graph.Pass) {
	for _, c := range m {
		c.AddPasses(passes)
	}
}

func (m multi) End(err error) error {
	var errs []error
	for _, c := range m {
		if e := c.End(err); e != nil {
			errs = append(errs, e)
		}
	}
	return errors.Join(errs...)
}
