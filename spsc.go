package lfqueue

import "sync/atomic"

// SPSC is a single-producer, single-consumer bounded ring.
//
// Each side owns its cursor exclusively, so no CAS is needed: the producer
// publishes with a store to tail after writing the payload, and the consumer
// loads tail before reading it. Each side also caches the other side's
// cursor and reloads it only when the ring looks full (or empty).
//
// Exactly one goroutine may call Push and exactly one goroutine may call
// Pop and Peek. Other calling patterns are not detected.
type SPSC[T any] struct {
	_          pad
	head       atomic.Uint64 // read cursor, written by the consumer
	cachedTail uint64        // consumer's view of tail
	_          pad
	tail       atomic.Uint64 // write cursor, written by the producer
	cachedHead uint64        // producer's view of head
	_          pad
	mask       uint64
	capacity   uint64
	buf        []T
}

// NewSPSC creates an SPSC ring. Capacity is rounded up to a power of two.
func NewSPSC[T any](capacity uint64) *SPSC[T] {
	n := roundPow2(capacity)
	return &SPSC[T]{
		mask:     n - 1,
		capacity: n,
		buf:      make([]T, n),
	}
}

// Push appends v. It returns false, leaving the ring untouched, when the
// ring already holds Capacity items. Producer only.
func (q *SPSC[T]) Push(v T) bool {
	tail := q.tail.Load()
	if tail-q.cachedHead >= q.capacity {
		q.cachedHead = q.head.Load()
		if tail-q.cachedHead >= q.capacity {
			return false
		}
	}
	q.buf[tail&q.mask] = v
	// publish to the consumer
	q.tail.Store(tail + 1)
	return true
}

// Pop removes the oldest item. It returns (zero, false) when the ring is
// empty. Consumer only.
func (q *SPSC[T]) Pop() (T, bool) {
	var zero T
	head := q.head.Load()
	if head == q.cachedTail {
		q.cachedTail = q.tail.Load()
		if head == q.cachedTail {
			return zero, false
		}
	}
	v := q.buf[head&q.mask]
	q.buf[head&q.mask] = zero
	// hand the slot back to the producer
	q.head.Store(head + 1)
	return v, true
}

// Peek returns the oldest item without removing it. Consumer only.
func (q *SPSC[T]) Peek() (T, bool) {
	head := q.head.Load()
	if head == q.cachedTail {
		q.cachedTail = q.tail.Load()
		if head == q.cachedTail {
			var zero T
			return zero, false
		}
	}
	return q.buf[head&q.mask], true
}

// Len returns the number of items in the ring. The value may be stale by
// the time it is used.
func (q *SPSC[T]) Len() int {
	head := q.head.Load()
	tail := q.tail.Load()
	return int(tail - head)
}

// Capacity returns the fixed ring capacity.
func (q *SPSC[T]) Capacity() uint64 {
	return q.capacity
}

// TryEnqueue is Push, for code written against Bounded.
func (q *SPSC[T]) TryEnqueue(v T) bool {
	return q.Push(v)
}

// TryDequeue is Pop, for code written against Bounded.
func (q *SPSC[T]) TryDequeue() (T, bool) {
	return q.Pop()
}
