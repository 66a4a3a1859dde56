package runtime

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Instance slots are typed state attached to one Runtime, keyed by type.
// Extensions use them to persist state across host calls (timer storage is
// the main user).
//
// Install order matters: an extension that reads a slot must be installed
// after the extension that sets it. Slots implementing io.Closer are closed
// in reverse install order when the Runtime closes.

type slotKey[T any] struct{}

type slots struct {
	mu     sync.Mutex // Close may run outside the loop goroutine
	values map[any]any
	order  []any
}

func newSlots() *slots {
	return &slots{values: make(map[any]any)}
}

func (s *slots) set(key, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.values[key]; !exists {
		s.order = append(s.order, key)
	}
	s.values[key] = value
}

func (s *slots) get(key any) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[key]
	return v, ok
}

// close closes every io.Closer slot in reverse install order and empties
// the set.
func (s *slots) close() error {
	s.mu.Lock()
	order, values := s.order, s.values
	s.order, s.values = nil, make(map[any]any)
	s.mu.Unlock()

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		c, ok := values[order[i]].(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close slot %T: %w", c, err))
		}
	}
	return errors.Join(errs...)
}

// SetSlot stores v as the Runtime's T slot, replacing any previous value.
// A replaced value is not closed.
func SetSlot[T any](a *Access, v T) {
	a.check()
	a.rt.slots.set(slotKey[T]{}, v)
}

// GetSlot returns the Runtime's T slot.
func GetSlot[T any](a *Access) (T, bool) {
	a.check()

	v, ok := a.rt.slots.get(slotKey[T]{})
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// MustSlot returns the Runtime's T slot and panics with an InvariantError if
// it was never set. A missing slot means an extension was not installed.
func MustSlot[T any](a *Access) T {
	v, ok := GetSlot[T](a)
	if !ok {
		var zero T
		panic(invariant("instance slot %T not set", zero))
	}
	return v
}
