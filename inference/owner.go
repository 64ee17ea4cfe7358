// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package inference

import (
	"sync/atomic"
	"weak"
)

type holder struct {
	network Network
	alive   atomic.Bool
}

// Owner holds the strong reference to a loaded network.
type Owner struct {
	h *holder
}

// NewOwner takes ownership of n.
func NewOwner(n Network) *Owner {
	h := &holder{network: n}
	h.alive.Store(true)
	return &Owner{h: h}
}

// Network returns the owned network, or nil after Release.
func (o *Owner) Network() Network {
	if o == nil || o.h == nil {
		return nil
	}
	return o.h.network
}

// Observer returns a weak observer of the owned network.
func (o *Owner) Observer() Observer {
	if o == nil || o.h == nil {
		return Observer{}
	}
	return Observer{p: weak.Make(o.h)}
}

// Release drops the strong reference. Observers report the network gone
// from this point on.
func (o *Owner) Release() {
	if o == nil || o.h == nil {
		return
	}
	o.h.alive.Store(false)
	o.h = nil
}

// Observer is a weak reference to a network held by an Owner.
// The zero Observer observes nothing.
type Observer struct {
	p weak.Pointer[holder]
}

// Get returns the network while its owner still holds it.
func (ob Observer) Get() (Network, bool) {
	h := ob.p.Value()
	if h == nil || !h.alive.Load() {
		return nil, false
	}
	return h.network, true
}

// Alive reports whether the observed network is still owned.
func (ob Observer) Alive() bool {
	_, ok := ob.Get()
	return ok
}
