package lfqueue

import (
	"sync/atomic"
)

// Michael & Scott, "Simple, Fast, and Practical Non-Blocking and Blocking
// Concurrent Queue Algorithms", PODC 1996, with hazard pointers guarding
// node reuse.

type node[T any] struct {
	next  atomic.Pointer[node[T]]
	value T
}

// Unbounded is a multi-producer, multi-consumer FIFO linked list that grows
// without bound.
//
// head always points at a dummy node whose successor holds the oldest
// value. A node belongs to the list until a consumer's CAS moves head past
// it; the winning consumer then retires it, and it is recycled only after
// no guard protects it. Because a node is never reused while any goroutine
// can still dereference it, pointer identity is enough for every CAS.
type Unbounded[T any] struct {
	_     pad
	head  atomic.Pointer[node[T]]
	_     pad
	tail  atomic.Pointer[node[T]]
	_     pad
	size  atomic.Int64
	_     pad
	nodes *MPMC[*node[T]] // reclaimed nodes ready for reuse, nil when disabled
	hp    *reclaimer[node[T]]
}

// NewUnbounded creates an empty queue.
func NewUnbounded[T any](opts ...Option) *Unbounded[T] {
	o := buildOptions(opts)

	q := &Unbounded[T]{}
	if o.nodeCache > 0 {
		q.nodes = NewMPMC[*node[T]](o.nodeCache, WithBackoff(o.backoff))
	}
	q.hp = newReclaimer(o.maxGuards, o.backoff, q.recycle)

	dummy := &node[T]{}
	q.head.Store(dummy)
	q.tail.Store(dummy)
	return q
}

// Handle is a goroutine's registration with the queue's reclamation
// coordinator. Holding one avoids acquiring a guard on every call.
// A Handle must not be shared between goroutines; Release it when done.
type Handle[T any] struct {
	q *Unbounded[T]
	g guard[node[T]]
}

// Handle registers the calling goroutine. It never waits; past WithMaxGuards
// live guards the registry grows.
func (q *Unbounded[T]) Handle() *Handle[T] {
	return &Handle[T]{q: q, g: q.hp.acquire()}
}

// Push appends v through h.
func (h *Handle[T]) Push(v T) {
	h.q.push(&h.g, v)
}

// TryPop removes the oldest value through h.
func (h *Handle[T]) TryPop() (T, bool) {
	return h.q.tryPop(&h.g)
}

// Release clears the handle's hazards, reclaims its retired nodes where
// possible and returns its guard to the registry. The handle is unusable
// afterwards.
func (h *Handle[T]) Release() {
	if h.g.rec != nil {
		h.g.clear()
		h.g.flush()
		h.g.release()
	}
}

// Push appends v. It always succeeds.
// Safe to call concurrently from many goroutines.
func (q *Unbounded[T]) Push(v T) {
	g := q.hp.acquire()
	q.push(&g, v)
	g.release()
}

// TryPop removes the oldest value. Returns (zero, false) if the queue is
// empty.
// Safe to call concurrently from many goroutines.
func (q *Unbounded[T]) TryPop() (T, bool) {
	g := q.hp.acquire()
	v, ok := q.tryPop(&g)
	g.release()
	return v, ok
}

// Len returns the number of values in the queue. It may be stale by the
// time it is used.
func (q *Unbounded[T]) Len() int {
	return int(max(q.size.Load(), 0))
}

func (q *Unbounded[T]) push(g *guard[node[T]], v T) {
	n := q.alloc()
	n.value = v

	for {
		tail := g.protect(0, &q.tail)
		next := tail.next.Load()
		if tail != q.tail.Load() {
			continue
		}
		if next != nil {
			// tail is stale, another push already linked: help advance it
			q.tail.CompareAndSwap(tail, next)
			continue
		}
		if tail.next.CompareAndSwap(nil, n) {
			// linked; swinging tail is best effort
			q.tail.CompareAndSwap(tail, n)
			break
		}
	}
	g.clear()
	q.size.Add(1)
}

func (q *Unbounded[T]) tryPop(g *guard[node[T]]) (T, bool) {
	var zero T
	for {
		head := g.protect(0, &q.head)
		tail := q.tail.Load()
		next := head.next.Load()
		g.set(1, next)
		if head != q.head.Load() {
			continue
		}
		if next == nil {
			g.clear()
			return zero, false
		}
		if head == tail {
			// tail lags behind a linked node: help advance it
			q.tail.CompareAndSwap(tail, next)
			continue
		}
		if q.head.CompareAndSwap(head, next) {
			// next is the new dummy; only the CAS winner touches its value
			v := next.value
			next.value = zero
			g.clear()
			g.retire(head)
			q.size.Add(-1)
			return v, true
		}
	}
}

func (q *Unbounded[T]) alloc() *node[T] {
	if q.nodes != nil {
		if n, ok := q.nodes.TryDequeue(); ok {
			return n
		}
	}
	return &node[T]{}
}

// recycle is the reclaimer callback: n is unreachable and unprotected.
func (q *Unbounded[T]) recycle(n *node[T]) {
	n.next.Store(nil)
	if q.nodes != nil {
		q.nodes.TryEnqueue(n)
	}
}
