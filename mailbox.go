package trafficlight

import (
	"context"
	"sync"
)

// Mailbox is a single-slot, latest-value channel.
// Send overwrites any value not yet received; Receive blocks until a value is
// present and takes it. A Mailbox never holds more than one pending value, so
// a slow receiver skips stale values instead of draining a backlog.
//
// The zero value is not ready for use; construct via NewMailbox.
type Mailbox[T any] struct {
	mu   sync.Mutex
	cond *sync.Cond
	slot T
	full bool
}

func NewMailbox[T any]() *Mailbox[T] {
	m := &Mailbox[T]{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Send stores v, discarding any pending value, and wakes at most one receiver.
// It never blocks on receivers.
func (m *Mailbox[T]) Send(v T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slot = v
	m.full = true
	m.cond.Signal()
}

// Receive blocks until a value is available and takes it.
func (m *Mailbox[T]) Receive() T {
	m.mu.Lock()
	defer m.mu.Unlock()
	for !m.full {
		m.cond.Wait()
	}
	return m.take()
}

// TryReceive takes the pending value without blocking.
// ok is false when the mailbox is empty.
func (m *Mailbox[T]) TryReceive() (v T, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.full {
		return v, false
	}
	return m.take(), true
}

// ReceiveContext blocks until a value is available or ctx is done.
// A pending value is returned even if ctx is already done.
func (m *Mailbox[T]) ReceiveContext(ctx context.Context) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.full {
		return m.take(), nil
	}
	// cond.Wait cannot select on ctx, so a watcher broadcasts on cancellation.
	stop := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		m.cond.Broadcast()
		m.mu.Unlock()
	})
	defer stop()
	for !m.full {
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, err
		}
		m.cond.Wait()
	}
	return m.take(), nil
}

// take must be called with mu held and the slot full.
func (m *Mailbox[T]) take() T {
	v := m.slot
	var zero T
	m.slot = zero
	m.full = false
	return v
}
