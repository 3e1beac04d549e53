// Package mailbox is an unbounded multi-producer, single-consumer queue.
package mailbox

import "sync"

type Mailbox[T any] struct {
	mu    sync.Mutex
	items []T
}

// Push appends v. Safe from any goroutine.
func (m *Mailbox[T]) Push(v T) {
	m.mu.Lock()
	m.items = append(m.items, v)
	m.mu.Unlock()
}

// Drain returns everything queued so far, oldest first, and empties the box.
func (m *Mailbox[T]) Drain() []T {
	m.mu.Lock()
	items := m.items
	m.items = nil
	m.mu.Unlock()
	return items
}

func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
