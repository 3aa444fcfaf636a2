package channel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrFull            = errors.New("channel full")
	ErrTimeout         = errors.New("receive timed out")
	ErrInvalidCapacity = errors.New("channel capacity must be positive")
)

// Stats holds cumulative channel counters
type Stats struct {
	Sent     uint64 `json:"sent"`
	Dropped  uint64 `json:"dropped"`
	Received uint64 `json:"received"`
	Cleared  uint64 `json:"cleared"`
}

// Bounded is a fixed-capacity FIFO shared by one producer and one consumer.
// A full channel rejects new items instead of blocking the sender.
type Bounded[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	size   int
	notify chan struct{}

	sent     atomic.Uint64
	dropped  atomic.Uint64
	received atomic.Uint64
	cleared  atomic.Uint64
}

// New creates a bounded channel holding at most capacity items
func New[T any](capacity int) (*Bounded[T], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &Bounded[T]{
		items:  make([]T, capacity),
		notify: make(chan struct{}),
	}, nil
}

// TrySend enqueues v without blocking. It returns false when the channel is
// full; the value is then dropped.
func (b *Bounded[T]) TrySend(v T) bool {
	b.mu.Lock()
	if b.size == len(b.items) {
		b.mu.Unlock()
		b.dropped.Add(1)
		return false
	}

	b.items[(b.head+b.size)%len(b.items)] = v
	b.size++
	b.wakeLocked()
	b.mu.Unlock()

	b.sent.Add(1)
	return true
}

// Receive removes and returns the oldest item, waiting up to timeout for one
// to arrive. A non-positive timeout polls once.
func (b *Bounded[T]) Receive(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T
	var timer *time.Timer

	for {
		b.mu.Lock()
		if b.size > 0 {
			v := b.popLocked()
			b.mu.Unlock()
			b.received.Add(1)
			return v, nil
		}
		wait := b.notify
		b.mu.Unlock()

		if timeout <= 0 {
			return zero, ErrTimeout
		}
		if timer == nil {
			timer = time.NewTimer(timeout)
			defer timer.Stop()
		}

		select {
		case <-wait:
			// An item arrived; another receiver may still win it.
		case <-timer.C:
			return zero, ErrTimeout
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Clear drops every queued item and returns how many were removed
func (b *Bounded[T]) Clear() int {
	var zero T

	b.mu.Lock()
	n := b.size
	for i := 0; i < b.size; i++ {
		b.items[(b.head+i)%len(b.items)] = zero
	}
	b.head = 0
	b.size = 0
	b.mu.Unlock()

	b.cleared.Add(uint64(n))
	return n
}

// Len returns the number of queued items
func (b *Bounded[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Cap returns the channel capacity
func (b *Bounded[T]) Cap() int {
	return len(b.items)
}

// Items returns a copy of the queued items in delivery order
func (b *Bounded[T]) Items() []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]T, 0, b.size)
	for i := 0; i < b.size; i++ {
		out = append(out, b.items[(b.head+i)%len(b.items)])
	}
	return out
}

// Stats returns a copy of the cumulative counters
func (b *Bounded[T]) Stats() Stats {
	return Stats{
		Sent:     b.sent.Load(),
		Dropped:  b.dropped.Load(),
		Received: b.received.Load(),
		Cleared:  b.cleared.Load(),
	}
}

func (b *Bounded[T]) popLocked() T {
	var zero T
	v := b.items[b.head]
	b.items[b.head] = zero
	b.head = (b.head + 1) % len(b.items)
	b.size--
	return v
}

// wakeLocked releases every receiver parked on the current notify channel
func (b *Bounded[T]) wakeLocked() {
	close(b.notify)
	b.notify = make(chan struct{})
}
