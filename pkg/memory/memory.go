// Package memory keeps the most recent items an agent has seen.
package memory

import (
	"math/rand/v2"
	"sync"
)

// Memory is a bounded FIFO: once full, storing an item evicts the oldest.
type Memory[T any] struct {
	items    []T
	capacity int
	mu       sync.RWMutex
}

func NewMemory[T any](capacity int) *Memory[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Memory[T]{
		items:    make([]T, 0, capacity),
		capacity: capacity,
	}
}

// GetAll returns a copy of every stored item, oldest first
func (m *Memory[T]) GetAll() []T {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]T, len(m.items))
	copy(out, m.items)
	return out
}

func (m *Memory[T]) Store(item T) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.items) == m.capacity {
		copy(m.items, m.items[1:])
		m.items = m.items[:len(m.items)-1]
	}
	m.items = append(m.items, item)
}

func (m *Memory[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *Memory[T]) Capacity() int { return m.capacity }

// Sample draws n items uniformly with replacement. It returns nil when the
// memory is empty.
func (m *Memory[T]) Sample(rng *rand.Rand, n int) []T {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.items) == 0 || n <= 0 {
		return nil
	}
	out := make([]T, n)
	for i := range out {
		out[i] = m.items[rng.IntN(len(m.items))]
	}
	return out
}

// Last returns up to n of the most recent items, oldest first.
func (m *Memory[T]) Last(n int) []T {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if n > len(m.items) {
		n = len(m.items)
	}
	out := make([]T, n)
	copy(out, m.items[len(m.items)-n:])
	return out
}

func (m *Memory[T]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = m.items[:0]
}
