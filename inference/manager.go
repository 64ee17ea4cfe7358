// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package inference

import (
	"errors"
	"fmt"
	"sync"
)

// ContextManager creates and destroys the inference contexts of one
// network and remembers which handles it issued.
//
// ContextManager is safe for concurrent use.
type ContextManager struct {
	network Network

	mu      sync.Mutex
	live    map[ContextHandle]struct{}
	pending int
	limit   int
}

// NewContextManager creates a manager for n.
func NewContextManager(n Network) *ContextManager {
	return &ContextManager{network: n, live: make(map[ContextHandle]struct{})}
}

// Network returns the managed network.
func (m *ContextManager) Network() Network { return m.network }

// SetLimit caps the number of live contexts below the network's own limit.
// Zero or less removes the cap.
func (m *ContextManager) SetLimit(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limit = max(n, 0)
}

// Create creates a context. On failure it returns NoContext and an error
// wrapping ErrContextUnavailable.
func (m *ContextManager) Create() (ContextHandle, error) {
	if m.network == nil || !m.network.IsLoaded() {
		return NoContext, fmt.Errorf("%w: %w", ErrContextUnavailable, ErrNotLoaded)
	}

	// Creations in flight count against the limit.
	m.mu.Lock()
	if m.limit > 0 && len(m.live)+m.pending >= m.limit {
		limit := m.limit
		m.mu.Unlock()
		return NoContext, fmt.Errorf("%w: %s: limit of %d contexts reached", ErrContextUnavailable, m.network.Name(), limit)
	}
	m.pending++
	m.mu.Unlock()

	h, err := m.network.CreateInferenceContext()

	m.mu.Lock()
	m.pending--
	if err == nil && h.Valid() {
		m.live[h] = struct{}{}
	}
	m.mu.Unlock()

	if err != nil || !h.Valid() {
		if err == nil {
			err = fmt.Errorf("invalid handle %d", h)
		}
		return NoContext, fmt.Errorf("%w: %s: %w", ErrContextUnavailable, m.network.Name(), err)
	}

	slogger().Debug("inference context created", "network", m.network.Name(), "context", h)
	return h, nil
}

// Destroy destroys *h and sets it to NoContext. Destroying NoContext is a
// no-op. A handle this manager did not create is left untouched and
// reported as ErrForeignContext.
func (m *ContextManager) Destroy(h *ContextHandle) error {
	if h == nil || *h == NoContext {
		return nil
	}

	m.mu.Lock()
	_, ok := m.live[*h]
	if ok {
		delete(m.live, *h)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %d", ErrForeignContext, *h)
	}
	err := m.network.DestroyInferenceContext(*h)
	slogger().Debug("inference context destroyed", "network", m.network.Name(), "context", *h)
	*h = NoContext
	return err
}

// Owns reports whether h was created by m and not yet destroyed.
func (m *ContextManager) Owns(h ContextHandle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.live[h]
	return ok
}

// Live returns the number of contexts m created and has not destroyed.
func (m *ContextManager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// DestroyAll destroys every live context.
func (m *ContextManager) DestroyAll() error {
	m.mu.Lock()
	handles := make([]ContextHandle, 0, len(m.live))
	for h := range m.live {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := m.Destroy(&h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
