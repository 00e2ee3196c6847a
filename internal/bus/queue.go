package bus

import (
	"sync"
	"time"

	"abquant/internal/event"
)

// Queue is an unbounded FIFO of events. Put never blocks; a single consumer
// drains it with Get.
type Queue struct {
	mu     sync.Mutex
	items  []event.Event
	notify chan struct{}
}

// NewQueue allocates an empty queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Put appends an event and wakes the consumer.
func (q *Queue) Put(e event.Event) {
	q.mu.Lock()
	q.items = append(q.items, e)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Get pops the oldest event, waiting up to timeout for one to arrive.
func (q *Queue) Get(timeout time.Duration) (event.Event, bool) {
	if e, ok := q.pop(); ok {
		return e, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-q.notify:
			if e, ok := q.pop(); ok {
				return e, true
			}
		case <-timer.C:
			return q.pop()
		}
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) pop() (event.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return event.Event{}, false
	}
	e := q.items[0]
	q.items[0] = event.Event{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = q.items[:0:0]
	}
	return e, true
}
