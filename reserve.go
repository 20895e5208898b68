package lfqueue

import (
	"sync/atomic"
)

// ReserveMPMC is a multi-producer, multi-consumer bounded ring that separates
// ticket issuance (reserve) from visibility (commit) on each side.
//
// Slot sequences are generation encoded. For ticket t the slot shows
//
//	t             empty, a producer holding t may write
//	t+1           published, a consumer holding t may read
//	t+capacity    consumed, empty for ticket t+capacity
//
// A producer reserves only while tailReserve-headCommit < capacity, so the
// slot it gets has really been vacated. A consumer reserves only while
// headReserve < tailCommit, so the slot it gets has really been published.
// After finishing, each caller helps its commit cursor forward across every
// contiguous slot that is already done. At all times
//
//	headCommit <= headReserve <= tailCommit <= tailReserve <= headCommit+capacity
type ReserveMPMC[T any] struct {
	_           pad
	ring        ring[T]
	backoff     Backoff
	_           pad
	tailReserve atomic.Uint64
	_           pad
	tailCommit  atomic.Uint64
	_           pad
	headReserve atomic.Uint64
	_           pad
	headCommit  atomic.Uint64
	_           pad
	counters    counters
}

// Cursors is a snapshot of the four cursors of a ReserveMPMC. The fields are
// loaded one at a time, so a snapshot taken under load is only approximate.
type Cursors struct {
	TailReserve uint64
	TailCommit  uint64
	HeadReserve uint64
	HeadCommit  uint64
}

// NewReserveMPMC creates a reserve/commit queue. Capacity is rounded up to a
// power of two and is at least 2.
func NewReserveMPMC[T any](capacity uint64, opts ...Option) *ReserveMPMC[T] {
	o := buildOptions(opts)
	return &ReserveMPMC[T]{
		ring:    newRing[T](capacity),
		backoff: o.backoff,
	}
}

// TryEnqueue publishes v if a vacated slot is available.
// Returns false if the queue is full; nothing is reserved in that case.
func (q *ReserveMPMC[T]) TryEnqueue(v T) bool {
	ticket, ok := q.reserveTail()
	if !ok {
		// a consumer may have freed slots without moving headCommit yet
		q.advanceHeadCommit()
		if ticket, ok = q.reserveTail(); !ok {
			q.counters.full.Add(1)
			return false
		}
	}
	q.publish(ticket, v)
	return true
}

// Enqueue publishes v, waiting for a vacated slot if the queue is full.
func (q *ReserveMPMC[T]) Enqueue(v T) {
	b := q.backoff
	for {
		if ticket, ok := q.reserveTail(); ok {
			q.publish(ticket, v)
			return
		}
		q.advanceHeadCommit()
		q.counters.spins.Add(1)
		b.Wait()
	}
}

// TryDequeue removes the oldest published item.
// Returns (zero, false) if nothing is published; nothing is reserved in
// that case.
func (q *ReserveMPMC[T]) TryDequeue() (T, bool) {
	ticket, ok := q.reserveHead()
	if !ok {
		// a producer may have published without moving tailCommit yet
		q.advanceTailCommit()
		if ticket, ok = q.reserveHead(); !ok {
			q.counters.empty.Add(1)
			var zero T
			return zero, false
		}
	}
	return q.consume(ticket), true
}

// Dequeue removes the oldest published item, waiting for one if needed.
func (q *ReserveMPMC[T]) Dequeue() T {
	b := q.backoff
	for {
		if ticket, ok := q.reserveHead(); ok {
			return q.consume(ticket)
		}
		q.advanceTailCommit()
		q.counters.spins.Add(1)
		b.Wait()
	}
}

func (q *ReserveMPMC[T]) reserveTail() (uint64, bool) {
	for {
		tail := q.tailReserve.Load()
		// signed: headCommit may already be past a stale tail
		if distance(tail, q.headCommit.Load()) >= int64(q.ring.capacity) {
			return 0, false
		}
		if q.tailReserve.CompareAndSwap(tail, tail+1) {
			return tail, true
		}
		q.counters.casFailures.Add(1)
	}
}

func (q *ReserveMPMC[T]) reserveHead() (uint64, bool) {
	for {
		head := q.headReserve.Load()
		if distance(q.tailCommit.Load(), head) <= 0 {
			return 0, false
		}
		if q.headReserve.CompareAndSwap(head, head+1) {
			return head, true
		}
		q.counters.casFailures.Add(1)
	}
}

func (q *ReserveMPMC[T]) publish(ticket uint64, v T) {
	s := q.ring.at(ticket)

	// headCommit is past ticket-capacity, so this normally succeeds at once
	b := q.backoff
	for s.seq.Load() != ticket {
		q.counters.spins.Add(1)
		b.Wait()
	}
	s.val = v
	s.seq.Store(ticket + 1)

	q.advanceTailCommit()
}

func (q *ReserveMPMC[T]) consume(ticket uint64) T {
	s := q.ring.at(ticket)

	b := q.backoff
	for s.seq.Load() != ticket+1 {
		q.counters.spins.Add(1)
		b.Wait()
	}
	v := s.val
	var zero T
	s.val = zero
	s.seq.Store(ticket + q.ring.capacity)

	q.advanceHeadCommit()
	return v
}

// advanceTailCommit moves tailCommit across every contiguous published slot.
// Any goroutine may help.
func (q *ReserveMPMC[T]) advanceTailCommit() {
	for {
		cur := q.tailCommit.Load()
		if q.ring.at(cur).seq.Load() != cur+1 {
			return
		}
		if !q.tailCommit.CompareAndSwap(cur, cur+1) {
			q.counters.casFailures.Add(1)
		}
	}
}

// advanceHeadCommit moves headCommit across every contiguous consumed slot.
// Any goroutine may help.
func (q *ReserveMPMC[T]) advanceHeadCommit() {
	for {
		cur := q.headCommit.Load()
		if q.ring.at(cur).seq.Load() != cur+q.ring.capacity {
			return
		}
		if !q.headCommit.CompareAndSwap(cur, cur+1) {
			q.counters.casFailures.Add(1)
		}
	}
}

// Cursors returns the current cursor values.
func (q *ReserveMPMC[T]) Cursors() Cursors {
	return Cursors{
		HeadCommit:  q.headCommit.Load(),
		HeadReserve: q.headReserve.Load(),
		TailCommit:  q.tailCommit.Load(),
		TailReserve: q.tailReserve.Load(),
	}
}

// Len returns the number of published, unconsumed items, clamped to
// [0, Capacity]. It may be stale by the time it is used.
func (q *ReserveMPMC[T]) Len() int {
	return clampLen(q.tailCommit.Load(), q.headReserve.Load(), q.ring.capacity)
}

// Capacity returns the fixed queue capacity.
func (q *ReserveMPMC[T]) Capacity() uint64 {
	return q.ring.capacity
}

// Stats returns a snapshot of the instrumentation counters.
func (q *ReserveMPMC[T]) Stats() Stats {
	return q.counters.snapshot()
}
