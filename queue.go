package msgstream

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// errQueueClosed is returned by queue operations after close.
var errQueueClosed = errors.New("queue closed")

// queue is an unbounded FIFO. push never blocks; pop blocks until an item
// is available, the context ends or the queue is closed.
type queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool

	ready chan struct{} // holds at most one wake-up token
	done  chan struct{} // closed by close
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// push appends item. It fails only after close.
func (q *queue[T]) push(item T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errQueueClosed
	}
	q.items = append(q.items, item)
	q.mu.Unlock()

	q.signal()
	return nil
}

// pop removes and returns the oldest item.
func (q *queue[T]) pop(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return zero, errQueueClosed
		}
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()

			// hand the token on so a second waiter sees the remaining items
			if more {
				q.signal()
			}
			return item, nil
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-q.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// len returns the number of queued items.
func (q *queue[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// close discards queued items and fails current and future waiters.
// Safe to call multiple times.
func (q *queue[T]) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	close(q.done)
}

func (q *queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
