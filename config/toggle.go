package config

import (
	"sync"
)

// Toggle is an observed boolean, the runtime switch for stylization.
type Toggle struct {
	mu    sync.Mutex
	value bool
	subs  []*subscription
}

type subscription struct {
	fn func(bool)
}

// NewToggle returns a toggle with the given initial value.
func NewToggle(initial bool) *Toggle {
	return &Toggle{value: initial}
}

// Enabled returns the current value.
func (t *Toggle) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value
}

// Set changes the value. Subscribers are notified, in subscription order,
// only when the value actually changes. Notification happens on the calling
// goroutine after the toggle lock is released.
func (t *Toggle) Set(v bool) {
	t.mu.Lock()
	if t.value == v {
		t.mu.Unlock()
		return
	}
	t.value = v
	subs := append([]*subscription(nil), t.subs...)
	t.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
}

// Subscribe registers fn for value changes. The returned function removes
// the subscription.
func (t *Toggle) Subscribe(fn func(bool)) (cancel func()) {
	s := &subscription{fn: fn}
	t.mu.Lock()
	t.subs = append(t.subs, s)
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, o := range t.subs {
			if o == s {
				t.subs = append(t.subs[:i], t.subs[i+1:]...)
				return
			}
		}
	}
}

var defaultToggle = sync.OnceValue(func() *Toggle { return NewToggle(Enabled) })

// DefaultToggle returns the process-wide toggle, initialized from
// STYLETRANSFER_ENABLED. Library code receives a toggle explicitly; this one
// exists for the command line tool.
func DefaultToggle() *Toggle { return defaultToggle() }
