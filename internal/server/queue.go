package server

import (
	"context"
	"sync"
)

// eventQueue is an unbounded FIFO of event handlers drained by one
// goroutine. push never blocks.
type eventQueue struct {
	mu    sync.Mutex
	items []func()
	ready chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{ready: make(chan struct{}, 1)}
}

func (q *eventQueue) push(fn func()) {
	q.mu.Lock()
	q.items = append(q.items, fn)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *eventQueue) pop() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	fn := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return fn, true
}

func (q *eventQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// run applies queued handlers in order until ctx is cancelled. Handlers
// still queued at that point are dropped.
func (q *eventQueue) run(ctx context.Context) {
	for {
		for ctx.Err() == nil {
			fn, ok := q.pop()
			if !ok {
				break
			}
			fn()
		}
		select {
		case <-q.ready:
		case <-ctx.Done():
			return
		}
	}
}
