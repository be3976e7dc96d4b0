// Package queue provides the unbounded, single-producer/single-consumer
// FIFO queues the protocol engine passes data through (bytes_in,
// xml_to_machine, xml_to_forwarder, bytes_out in spec terms) plus the
// poison-pill item the supervisor uses to unblock a consumer during
// orderly shutdown.
package queue

import (
	infinity "github.com/Code-Hex/go-infinity-channel"
)

// item is the tagged variant routed through a Queue: either a data value or
// the poison pill. Modeling it this way (rather than reserving a sentinel
// value of T, or permanently closing the underlying channel) lets a Queue
// be reused across TCP sessions: Stop unblocks whoever is waiting on Get
// without retiring the Queue itself.
type item[T any] struct {
	value T
	stop  bool
}

// Queue is an unbounded FIFO: Put never blocks the producer regardless of
// how far behind the consumer is. It wraps an infinite channel rather than
// a large fixed-capacity buffered channel so the engine has no arbitrary
// backpressure threshold to tune.
type Queue[T any] struct {
	ch *infinity.Channel[item[T]]
}

// New creates an empty Queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{ch: infinity.NewChannel[item[T]]()}
}

// Put enqueues v. It never blocks.
func (q *Queue[T]) Put(v T) {
	q.ch.In() <- item[T]{value: v}
}

// PutStop enqueues the poison pill. Exactly one consumer goroutine is
// expected per Queue in steady state, so one PutStop is enough to unblock
// it; call it again after re-priming the Queue for the next TCP session if
// the consumer is restarted.
func (q *Queue[T]) PutStop() {
	q.ch.In() <- item[T]{stop: true}
}

// Get returns the next item. ok is false only once the Queue has been
// permanently Closed and fully drained (process shutdown); stop is true
// when the item is the poison pill placed by PutStop, in which case value
// is the zero value of T and the consumer must stop consuming and return.
func (q *Queue[T]) Get() (value T, stop bool, ok bool) {
	it, ok := <-q.ch.Out()
	return it.value, it.stop, ok
}

// Close permanently retires the Queue; no more Puts are expected
// afterwards. Used only at process shutdown, never between TCP sessions.
func (q *Queue[T]) Close() {
	q.ch.Close()
}

// Drain discards any items left in the queue without blocking. Used during
// supervisor teardown to reclaim a TCP-session queue for reuse on the next
// connection; callers must guarantee no producer is still writing.
func (q *Queue[T]) Drain() {
	for {
		select {
		case _, ok := <-q.ch.Out():
			if !ok {
				return
			}
		default:
			return
		}
	}
}
