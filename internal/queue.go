package internal

import (
	"context"
	"fmt"
	"sync"

	"github.com/eapache/queue"
)

const defaultRecvQueueSize = 128

// queueItem is one callback-delivered event. A nil err means msg is set.
type queueItem struct {
	msg Message
	err error
}

// eventQueue is the single hand-off point between callback context and
// poll context on the browser backend: a bounded FIFO holding message,
// error and close events in strict arrival order, never by event class.
//
// The browser offers no cooperative backpressure for inbound traffic, so
// the bound is hard: an event arriving past the cap marks the queue
// overflowed, already-queued events still drain in order, and every pop
// after that reports an abnormal closure.
type eventQueue struct {
	mu       sync.Mutex
	items    *queue.Queue
	capacity int
	overflow bool

	// notify carries at most one wakeup token; pop revalidates under the
	// lock, so collapsed tokens are safe with a single consumer.
	notify chan struct{}
}

func newEventQueue(capacity int) *eventQueue {
	if capacity <= 0 {
		capacity = defaultRecvQueueSize
	}
	return &eventQueue{
		items:    queue.New(),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// push appends an event in arrival order. False reports overflow: the
// event was dropped and the queue is now poisoned.
func (q *eventQueue) push(it queueItem) bool {
	q.mu.Lock()
	if q.overflow {
		q.mu.Unlock()
		return false
	}
	if q.items.Length() >= q.capacity {
		q.overflow = true
		q.mu.Unlock()
		q.wake()
		return false
	}
	q.items.Add(it)
	q.mu.Unlock()
	q.wake()
	return true
}

// pop blocks until an event is available or ctx is done. Once the queue
// has overflowed and drained, every pop yields ErrAbnormalClosure.
func (q *eventQueue) pop(ctx context.Context) (queueItem, error) {
	for {
		q.mu.Lock()
		if q.items.Length() > 0 {
			it := q.items.Remove().(queueItem)
			q.mu.Unlock()
			return it, nil
		}
		if q.overflow {
			q.mu.Unlock()
			return queueItem{}, fmt.Errorf("%w: receive queue overflow", ErrAbnormalClosure)
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return queueItem{}, fmt.Errorf("wsbridge: receive wait: %w", ctx.Err())
		}
	}
}

func (q *eventQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
