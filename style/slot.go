// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package style

import (
	"fmt"

	"github.com/gogpu/styletransfer/inference"
)

// MaxSlots is the number of style slots a session tracks.
const MaxSlots = 2

// Slot pairs a style-prediction context with the region of the transfer
// network's style input it writes: bytes [Index*n, (Index+1)*n) where n is
// the encoding size.
type Slot struct {
	Index   int
	Context inference.ContextHandle
}

// Slots tracks the active style slots of a session.
// The zero value is empty and ready to use.
type Slots struct {
	slots []Slot
}

// Add tracks ctx in the lowest free slot index.
func (s *Slots) Add(ctx inference.ContextHandle) (Slot, error) {
	if !ctx.Valid() {
		return Slot{}, fmt.Errorf("%w: %d", ErrInvalidContext, ctx)
	}
	if _, ok := s.Find(ctx); ok {
		return Slot{}, fmt.Errorf("style: context %d already tracked", ctx)
	}
	for idx := 0; idx < MaxSlots; idx++ {
		if !s.used(idx) {
			slot := Slot{Index: idx, Context: ctx}
			s.slots = append(s.slots, slot)
			return slot, nil
		}
	}
	return Slot{}, fmt.Errorf("%w: all %d slots in use", ErrSlotRange, MaxSlots)
}

func (s *Slots) used(idx int) bool {
	for _, sl := range s.slots {
		if sl.Index == idx {
			return true
		}
	}
	return false
}

// Remove stops tracking ctx.
func (s *Slots) Remove(ctx inference.ContextHandle) bool {
	for i, sl := range s.slots {
		if sl.Context == ctx {
			s.slots = append(s.slots[:i], s.slots[i+1:]...)
			return true
		}
	}
	return false
}

// Find returns the slot of ctx.
func (s *Slots) Find(ctx inference.ContextHandle) (Slot, bool) {
	for _, sl := range s.slots {
		if sl.Context == ctx {
			return sl, true
		}
	}
	return Slot{}, false
}

// All returns the tracked slots in insertion order.
func (s *Slots) All() []Slot {
	return append([]Slot(nil), s.slots...)
}

// Len returns the number of tracked slots.
func (s *Slots) Len() int { return len(s.slots) }

// Clear forgets every slot.
func (s *Slots) Clear() { s.slots = nil }
