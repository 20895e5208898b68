package lfqueue

import (
	"sync/atomic"
)

// MPMC is a multi-producer, multi-consumer bounded ring.
//
// Both cursors are contended. A caller loads its cursor, reads the target
// slot's sequence and compares: equal means the slot is ready for this
// cursor value and the caller races to claim it by CAS; behind means the
// queue is full (producers) or empty (consumers); ahead means another
// goroutine already claimed this cursor value, so the caller reloads.
type MPMC[T any] struct {
	// Optional padding to avoid false sharing between hot fields.
	_        pad
	ring     ring[T]
	backoff  Backoff
	_        pad
	enqueue  atomic.Uint64 // logical tail index (producers)
	_        pad
	dequeue  atomic.Uint64 // logical head index (consumers)
	_        pad
	counters counters
}

// NewMPMC creates a bounded MPMC ring queue.
// Capacity is rounded up to a power of two, with a minimum of 2.
func NewMPMC[T any](capacity uint64, opts ...Option) *MPMC[T] {
	o := buildOptions(opts)
	return &MPMC[T]{
		ring:    newRing[T](capacity),
		backoff: o.backoff,
	}
}

// Enqueue takes a ticket and waits until its slot is free, then publishes v.
// Safe to call concurrently from many producer goroutines.
func (q *MPMC[T]) Enqueue(v T) {
	pos := q.enqueue.Add(1) - 1
	s := q.ring.at(pos)

	b := q.backoff
	for s.seq.Load() != pos {
		q.counters.spins.Add(1)
		b.Wait()
	}
	s.val = v
	s.seq.Store(pos + 1)
}

// TryEnqueue pushes an element into the queue.
// Returns false if the queue is full (overflow); a failed call claims no
// ticket and writes no slot.
// Safe to call concurrently from many producer goroutines.
func (q *MPMC[T]) TryEnqueue(v T) bool {
	b := q.backoff
	for {
		pos := q.enqueue.Load()
		s := q.ring.at(pos)

		seq := s.seq.Load()
		diff := distance(seq, pos)

		if diff == 0 {
			// Slot is free for this position, try to reserve it.
			if q.enqueue.CompareAndSwap(pos, pos+1) {
				// We won this slot.
				s.val = v
				// Publish the value: seq = pos+1
				s.seq.Store(pos + 1)
				return true
			}
			q.counters.casFailures.Add(1)
		} else if diff < 0 {
			// diff < 0 => consumer has not yet freed this slot.
			// MPMC is full for this producer.
			q.counters.full.Add(1)
			return false
		}
		// diff > 0 => another producer took pos. Retry with a new pos.
		q.counters.spins.Add(1)
		b.Wait()
	}
}

// Dequeue takes a ticket and waits until its slot is published.
// Safe to call concurrently from many consumer goroutines.
func (q *MPMC[T]) Dequeue() T {
	pos := q.dequeue.Add(1) - 1
	s := q.ring.at(pos)

	b := q.backoff
	for s.seq.Load() != pos+1 {
		q.counters.spins.Add(1)
		b.Wait()
	}
	v := s.val
	var zero T
	s.val = zero
	s.seq.Store(pos + q.ring.capacity)
	return v
}

// TryDequeue pops an element from the queue.
// Returns (zero, false) if the queue is empty.
// Safe to call concurrently from many consumer goroutines.
func (q *MPMC[T]) TryDequeue() (T, bool) {
	var zero T
	b := q.backoff
	for {
		pos := q.dequeue.Load()
		s := q.ring.at(pos)

		seq := s.seq.Load()
		diff := distance(seq, pos+1)

		if diff == 0 {
			// Element is ready for this position, try to claim it.
			if !q.dequeue.CompareAndSwap(pos, pos+1) {
				// Another consumer won this slot, retry.
				q.counters.casFailures.Add(1)
				continue
			}

			// We successfully claimed this slot.
			v := s.val
			s.val = zero
			// Free the slot for the next cycle:
			// next time this physical slot will be used at pos+capacity.
			s.seq.Store(pos + q.ring.capacity)

			return v, true
		}

		if diff < 0 {
			// MPMC is logically empty (head is ahead of producers),
			// or the producer holding pos has not published yet.
			q.counters.empty.Add(1)
			return zero, false
		}

		// diff > 0 => another consumer took pos. Retry with a new pos.
		q.counters.spins.Add(1)
		b.Wait()
	}
}

// Len returns the number of claimed but not yet consumed tickets, clamped
// to [0, Capacity]. It may be stale by the time it is used.
func (q *MPMC[T]) Len() int {
	return clampLen(q.enqueue.Load(), q.dequeue.Load(), q.ring.capacity)
}

// Capacity returns the fixed queue capacity.
func (q *MPMC[T]) Capacity() uint64 {
	return q.ring.capacity
}

// Stats returns a snapshot of the spin, CAS-failure, full and empty counters.
func (q *MPMC[T]) Stats() Stats {
	return q.counters.snapshot()
}
