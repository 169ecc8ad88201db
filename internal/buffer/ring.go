// Package buffer provides a bounded ring used to keep recent activity.
package buffer

import (
	"sync"
)

// Ring is a thread-safe circular buffer that keeps the most recent items up
// to a fixed capacity. When full, the oldest item is discarded.
type Ring[T any] struct {
	items    []T
	start    int
	size     int
	capacity int
	mu       sync.RWMutex
}

// NewRing creates a ring with the given capacity. A capacity <= 0 defaults to 1.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends an item, evicting the oldest one when the ring is full.
func (r *Ring[T]) Push(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size < r.capacity {
		r.items[(r.start+r.size)%r.capacity] = item
		r.size++
		return
	}
	r.items[r.start] = item
	r.start = (r.start + 1) % r.capacity
}

// Items returns a copy of the buffered items, oldest first.
func (r *Ring[T]) Items() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.start+i)%r.capacity]
	}
	return out
}

// Clear removes all items.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.start = 0
	r.size = 0
}

// Len returns the number of buffered items.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Cap returns the capacity of the ring.
func (r *Ring[T]) Cap() int {
	return r.capacity
}
