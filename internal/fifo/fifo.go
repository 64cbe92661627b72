// Package fifo provides an unbounded first-in first-out queue with a single
// blocking consumer.
package fifo

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO. Push never blocks. Pop blocks until an item is
// available, the queue is closed and drained, or the context is done.
//
// Any number of goroutines may Push; Pop is meant for a single consumer.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	closed bool
	ready  chan struct{}
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{ready: make(chan struct{}, 1)}
}

// Push appends v. It returns false if the queue is closed.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	q.signal()
	return true
}

// Pop removes and returns the oldest item. ok is false once the queue is
// closed and empty, or when ctx is done.
func (q *Queue[T]) Pop(ctx context.Context) (v T, ok bool) {
	for {
		q.mu.Lock()
		if q.head < len(q.items) {
			v = q.items[q.head]
			var zero T
			q.items[q.head] = zero
			q.head++
			if q.head == len(q.items) {
				q.items = q.items[:0]
				q.head = 0
			}
			q.mu.Unlock()
			return v, true
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return v, false
		}

		select {
		case <-q.ready:
		case <-ctx.Done():
			return v, false
		}
	}
}

// Close stops accepting items. Items already queued can still be popped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.signal()
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
