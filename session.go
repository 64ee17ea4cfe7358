package styletransfer

import (
	"github.com/gogpu/styletransfer/inference"
	"github.com/gogpu/styletransfer/postprocess"
	"github.com/gogpu/styletransfer/style"
)

// Session is one stylization session: a transfer context, the style slots
// conditioning it and the extension stylizing frames with it.
type Session struct {
	id       string
	scope    postprocess.Scope
	transfer *contextRef
	slots    style.Slots

	ext        *Extension
	unregister func()
}

// ID returns the unique session identifier.
func (s *Session) ID() string { return s.id }

// Scope returns the views the session stylizes.
func (s *Session) Scope() postprocess.Scope { return s.scope }

// TransferContext returns the transfer network context, or
// inference.NoContext once the session has stopped.
func (s *Session) TransferContext() inference.ContextHandle { return s.transfer.Load() }

// Slots returns the style slots in insertion order.
func (s *Session) Slots() []style.Slot { return s.slots.All() }

// Extension returns the per-frame extension, nil until the session has
// started.
func (s *Session) Extension() *Extension { return s.ext }
