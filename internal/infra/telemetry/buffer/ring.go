// Package buffer provides the bounded FIFO storage shared by the kernel components.
package buffer

import "sync"

// Ring stores the most recent values in a fixed-size ring.
// When full, Add overwrites the oldest value.
type Ring[T any] struct {
	mu      sync.Mutex
	items   []T
	size    int
	next    int
	evicted uint64
}

// NewRing constructs a ring buffer with the provided capacity.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{
		items: make([]T, capacity),
	}
}

// Add inserts a value, evicting the oldest one when the ring is full.
func (b *Ring[T]) Add(value T) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.items[b.next] = value
	b.next = (b.next + 1) % len(b.items)
	if b.size < len(b.items) {
		b.size++
	} else {
		b.evicted++
	}
	b.mu.Unlock()
}

// Len returns the number of buffered values.
func (b *Ring[T]) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *Ring[T]) Cap() int {
	if b == nil {
		return 0
	}
	return len(b.items)
}

// Evicted returns how many values were dropped on overflow since the last Reset.
func (b *Ring[T]) Evicted() uint64 {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.evicted
}

// Reset drops every buffered value.
func (b *Ring[T]) Reset() {
	if b == nil {
		return
	}
	b.mu.Lock()
	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.size = 0
	b.next = 0
	b.evicted = 0
	b.mu.Unlock()
}

// Snapshot returns the buffered values in insertion order.
func (b *Ring[T]) Snapshot() []T {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ordered()
}

// Tail returns the newest n values in insertion order. n <= 0 returns everything.
func (b *Ring[T]) Tail(n int) []T {
	all := b.Snapshot()
	if n > 0 && len(all) > n {
		return all[len(all)-n:]
	}
	return all
}

// Filter returns the newest limit values accepted by keep, in insertion order.
// limit <= 0 returns every match.
func (b *Ring[T]) Filter(keep func(T) bool, limit int) []T {
	all := b.Snapshot()
	out := make([]T, 0, len(all))
	for _, value := range all {
		if keep == nil || keep(value) {
			out = append(out, value)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (b *Ring[T]) ordered() []T {
	if b.size == 0 {
		return nil
	}
	out := make([]T, 0, b.size)
	if b.size < len(b.items) {
		out = append(out, b.items[:b.size]...)
		return out
	}
	out = append(out, b.items[b.next:]...)
	out = append(out, b.items[:b.next]...)
	return out
}
