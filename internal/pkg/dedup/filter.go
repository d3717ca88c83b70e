// Package dedup recognises provider retries of already-processed deliveries.
package dedup

import (
	"context"
	"sync"
)

// DefaultCapacity is how many recent ids the ring filter remembers.
const DefaultCapacity = 1000

// Filter reports whether an id was seen before and records it if not.
type Filter interface {
	IsDuplicate(ctx context.Context, id string) (bool, error)
}

// RingFilter remembers the last capacity ids in insertion order. When full,
// the oldest id is evicted, so any id among the last capacity insertions is
// always detected.
type RingFilter struct {
	mu   sync.Mutex
	seen map[string]struct{}
	ring []string
	next int
	size int
}

func NewRingFilter(capacity int) *RingFilter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RingFilter{
		seen: make(map[string]struct{}, capacity),
		ring: make([]string, capacity),
	}
}

func (f *RingFilter) IsDuplicate(_ context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.seen[id]; ok {
		return true, nil
	}

	if f.size == len(f.ring) {
		delete(f.seen, f.ring[f.next])
	} else {
		f.size++
	}
	f.ring[f.next] = id
	f.next = (f.next + 1) % len(f.ring)
	f.seen[id] = struct{}{}
	return false, nil
}

// Len returns the number of remembered ids.
func (f *RingFilter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size
}
