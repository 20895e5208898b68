package lfqueue

import (
	"sync/atomic"
)

// MPSC is a multi-producer, single-consumer bounded ring.
//
// Producers share the tail cursor; the consumer owns head. Slot i starts
// with sequence i. A producer holding ticket t writes once the slot shows t
// and publishes t+1; the consumer reads once the slot shows t+1 and frees it
// for the next lap by storing t+capacity.
type MPSC[T any] struct {
	// Optional padding to avoid false sharing between frequently accessed fields
	_        pad
	ring     ring[T]
	backoff  Backoff
	_        pad
	enqueue  atomic.Uint64 // logical "tail", updated by multiple producers
	_        pad
	dequeue  atomic.Uint64 // logical "head", written only by the consumer
	_        pad
	counters counters
}

// NewMPSC creates a new bounded ring queue.
// Capacity is rounded up to a power of two, with a minimum of 2.
func NewMPSC[T any](capacity uint64, opts ...Option) *MPSC[T] {
	o := buildOptions(opts)
	return &MPSC[T]{
		ring:    newRing[T](capacity),
		backoff: o.backoff,
	}
}

// Enqueue pushes an element, spinning until the claimed slot is free.
// May be called concurrently from many goroutines (producers).
func (q *MPSC[T]) Enqueue(v T) {
	pos := q.enqueue.Add(1) - 1
	s := q.ring.at(pos)

	b := q.backoff
	for s.seq.Load() != pos {
		// the consumer has not freed this slot from the previous lap yet
		q.counters.spins.Add(1)
		b.Wait()
	}
	s.val = v
	// publish the value: seq = pos+1
	s.seq.Store(pos + 1)
}

// TryEnqueue pushes an element if a slot is free right now.
// Returns false if the queue is full (overflow). A failed call leaves the
// tail cursor untouched: the ticket is claimed by CAS only after the slot
// has been seen free.
// May be called concurrently from many goroutines (producers).
func (q *MPSC[T]) TryEnqueue(v T) bool {
	for {
		pos := q.enqueue.Load()
		s := q.ring.at(pos)

		seq := s.seq.Load()
		diff := distance(seq, pos)

		if diff == 0 {
			// slot is free for this position, try to reserve it
			if q.enqueue.CompareAndSwap(pos, pos+1) {
				// we won the slot
				s.val = v
				// publish the value: seq = pos+1
				s.seq.Store(pos + 1)
				return true
			}
			// contention, retry
			q.counters.casFailures.Add(1)
		} else if diff < 0 {
			// slot has not been freed by the consumer yet
			// => queue is full
			q.counters.full.Add(1)
			return false
		}
		// diff > 0 => another producer already took pos, reload
	}
}

// Dequeue pops an element, spinning until one is published.
// IMPORTANT: must be called from a single consumer goroutine.
func (q *MPSC[T]) Dequeue() T {
	b := q.backoff
	for {
		if v, ok := q.take(); ok {
			return v
		}
		q.counters.spins.Add(1)
		b.Wait()
	}
}

// TryDequeue pops an element from the queue.
// Returns (zero, false) if the queue is empty.
// IMPORTANT: must be called from a single consumer goroutine.
func (q *MPSC[T]) TryDequeue() (T, bool) {
	v, ok := q.take()
	if !ok {
		q.counters.empty.Add(1)
	}
	return v, ok
}

func (q *MPSC[T]) take() (T, bool) {
	var zero T

	pos := q.dequeue.Load()
	s := q.ring.at(pos)

	if s.seq.Load() != pos+1 {
		// either logically empty, or the producer holding pos
		// has not published yet
		return zero, false
	}

	v := s.val
	s.val = zero
	// free the slot for the next cycle:
	// next time this physical slot will be used at pos+capacity
	s.seq.Store(pos + q.ring.capacity)
	q.dequeue.Store(pos + 1)

	return v, true
}

// Len returns the number of claimed but not yet consumed tickets, clamped
// to [0, Capacity]. It may be stale by the time it is used.
func (q *MPSC[T]) Len() int {
	return clampLen(q.enqueue.Load(), q.dequeue.Load(), q.ring.capacity)
}

// Capacity returns the fixed queue capacity.
func (q *MPSC[T]) Capacity() uint64 {
	return q.ring.capacity
}

// Stats returns a snapshot of the instrumentation counters.
func (q *MPSC[T]) Stats() Stats {
	return q.counters.snapshot()
}

func clampLen(tail, head, capacity uint64) int {
	d := distance(tail, head)
	if d < 0 {
		return 0
	}
	if uint64(d) > capacity {
		return int(capacity)
	}
	return int(d)
}
