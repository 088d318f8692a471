// ABOUTME: Unbounded thread-safe FIFO queue feeding acquired events into dispatch
// ABOUTME: Put never blocks producers; Get blocks until an item, cancellation, or close

package queue

import (
	"context"
	"sync"

	"github.com/candourhq/courier/internal/event"
)

// Queue is an unbounded FIFO of events. Producers (polling loop, webhook
// handler) call Put, which never blocks. The dispatcher calls Get, which
// blocks until an item is available or the queue shuts down.
//
// A buffered signal channel of size one coalesces wakeups so that any number
// of Puts cost at most one pending signal.
type Queue struct {
	mu     sync.Mutex
	items  []*event.Event
	closed bool
	signal chan struct{}
	done   chan struct{}
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{
		items:  make([]*event.Event, 0, 64),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Put appends an event to the back of the queue. Returns false if the queue
// has been closed; the event is dropped in that case.
func (q *Queue) Put(ev *event.Event) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// Get removes and returns the front event, blocking until one is available.
// Returns (nil, false) when ctx is cancelled, or when the queue is closed
// and fully drained. Remaining items are still delivered after Close so that
// already-acknowledged events are not lost.
func (q *Queue) Get(ctx context.Context) (*event.Event, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			ev := q.items[0]
			q.items[0] = nil
			if len(q.items) == 1 {
				q.items = q.items[:0]
			} else {
				q.items = q.items[1:]
			}
			q.mu.Unlock()
			return ev, true
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return nil, false
		}

		select {
		case <-ctx.Done():
			return nil, false
		case <-q.done:
			// Re-check: items enqueued just before Close are drained first.
		case <-q.signal:
		}
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close marks the queue as shut down. Subsequent Puts are rejected; pending
// Gets drain remaining items and then return (nil, false). Safe to call
// multiple times.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}
