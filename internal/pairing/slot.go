package pairing

import (
	"context"
	"errors"
	"sync"
)

// ErrSlotClosed is returned by Wait when the attempt became moot before a
// value was delivered.
var ErrSlotClosed = errors.New("pairing slot closed")

// Slot is a write-once, read-many result cell.
type Slot[T any] struct {
	mu       sync.Mutex
	done     chan struct{}
	value    T
	resolved bool
	closed   bool
}

// NewSlot creates an unresolved slot.
func NewSlot[T any]() *Slot[T] {
	return &Slot[T]{done: make(chan struct{})}
}

// Resolve stores v if the slot is still open. Only the first call wins.
func (s *Slot[T]) Resolve(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolved || s.closed {
		return false
	}
	s.value = v
	s.resolved = true
	close(s.done)
	return true
}

// Close abandons the slot. Pending and future waiters get ErrSlotClosed
// unless a value was already resolved.
func (s *Slot[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolved || s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

// Resolved reports whether a value has been stored.
func (s *Slot[T]) Resolved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolved
}

// Wait blocks until the slot is resolved or closed, or ctx is done. Callers
// bound the wait with a context deadline.
func (s *Slot[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-s.done:
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.resolved {
		var zero T
		return zero, ErrSlotClosed
	}
	return s.value, nil
}
