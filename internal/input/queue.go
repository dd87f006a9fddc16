package input

import "sync/atomic"

// Queue is a bounded single-consumer queue between a platform Source
// and the Relay.  Push never blocks: when the queue is full the event
// is dropped and counted, since stale input is worse than missing
// input.
type Queue struct {
	ch      chan RawEvent
	dropped atomic.Int64
}

// NewQueue returns a queue holding at most size events.
func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{ch: make(chan RawEvent, size)}
}

// Push enqueues ev, reporting false if it was dropped.
func (q *Queue) Push(ev RawEvent) bool {
	select {
	case q.ch <- ev:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// C is the consumer side.
func (q *Queue) C() <-chan RawEvent { return q.ch }

// Len is the number of queued events.
func (q *Queue) Len() int { return len(q.ch) }

// Dropped is the number of events discarded because the queue was full.
func (q *Queue) Dropped() int64 { return q.dropped.Load() }
