package util

import (
	"context"
	"sync"
)

// AtomicEvent holds the most recent value sent to it. Senders never block;
// a reader that falls behind only ever sees the latest value.
type AtomicEvent[T any] struct {
	mu     sync.Mutex    // Protects access to 'value'
	value  T             // The latest value
	notify chan struct{} // Buffered channel of size 1 for notification
}

func NewAtomicEvent[T any]() *AtomicEvent[T] {
	return &AtomicEvent[T]{
		notify: make(chan struct{}, 1),
	}
}

// Send replaces the stored value and flags a pending notification.
func (ae *AtomicEvent[T]) Send(value T) {
	ae.mu.Lock()
	defer ae.mu.Unlock()

	ae.value = value
	select {
	case ae.notify <- struct{}{}:
	default:
		// notification already pending
	}
}

// Channel returns the notification channel for use in select statements.
func (ae *AtomicEvent[T]) Channel() <-chan struct{} {
	return ae.notify
}

// Value returns the latest value without consuming a notification.
func (ae *AtomicEvent[T]) Value() T {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	return ae.value
}

// Wait blocks until a notification is pending or ctx is done. ok is false
// when ctx ended first.
func (ae *AtomicEvent[T]) Wait(ctx context.Context) (value T, ok bool) {
	select {
	case <-ctx.Done():
		return value, false
	case <-ae.notify:
		return ae.Value(), true
	}
}

// HasPending checks if a notification is waiting to be consumed.
func (ae *AtomicEvent[T]) HasPending() bool {
	return len(ae.notify) > 0
}
