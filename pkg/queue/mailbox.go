package queue

import (
	"context"
	"sync"
)

// Mailbox is an unbounded FIFO with a single consumer. Push never blocks.
type Mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{}
}

func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{
		notify: make(chan struct{}, 1),
	}
}

func (m *Mailbox[T]) Push(item T) {
	m.mu.Lock()
	m.items = append(m.items, item)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// TryPop returns the oldest item without waiting.
func (m *Mailbox[T]) TryPop() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero T
	if len(m.items) == 0 {
		return zero, false
	}
	item := m.items[0]
	m.items[0] = zero
	m.items = m.items[1:]
	if len(m.items) == 0 {
		// release the backing array once drained
		m.items = nil
	}
	return item, true
}

// Pop blocks until an item is available or ctx is done.
func (m *Mailbox[T]) Pop(ctx context.Context) (T, error) {
	for {
		if item, ok := m.TryPop(); ok {
			return item, nil
		}
		select {
		case <-m.notify:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
