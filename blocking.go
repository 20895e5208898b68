package lfqueue

import (
	"context"
	"fmt"
	"sync/atomic"
)

var (
	ErrTimeout = fmt.Errorf("timeout")
)

// Blocking layers wait/notify over a Bounded queue so callers can block with
// a context instead of spinning. The queue itself stays lock-free; only
// goroutines that find it full (or empty) park, and the opposite operation
// wakes them.
//
// Blocking keeps the cardinality contract of the queue it wraps: wrapping an
// SPSC still allows one Put goroutine and one Take goroutine.
type Blocking[T any] struct {
	q        Bounded[T]
	notFull  notifier
	notEmpty notifier

	parks    atomic.Uint64
	timeouts atomic.Uint64
}

// BlockingStats counts how often callers parked and how often they gave up.
type BlockingStats struct {
	Parks    uint64
	Timeouts uint64
}

// NewBlocking wraps q.
func NewBlocking[T any](q Bounded[T]) *Blocking[T] {
	b := &Blocking[T]{q: q}
	b.notFull.init()
	b.notEmpty.init()
	return b
}

// Put enqueues v, parking while the queue is full. It returns an error
// wrapping ErrTimeout and the context error if ctx ends first; v is not
// enqueued in that case.
func (b *Blocking[T]) Put(ctx context.Context, v T) error {
	for {
		if b.q.TryEnqueue(v) {
			b.notEmpty.notify()
			return nil
		}

		ch := b.notFull.arm()
		// re-check after arming so a concurrent Take cannot be missed
		if b.q.TryEnqueue(v) {
			b.notFull.disarm()
			b.notEmpty.notify()
			return nil
		}

		b.parks.Add(1)
		select {
		case <-ch:
			b.notFull.disarm()
		case <-ctx.Done():
			b.notFull.disarm()
			b.timeouts.Add(1)
			return fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		}
	}
}

// Take dequeues the oldest item, parking while the queue is empty. It
// returns an error wrapping ErrTimeout and the context error if ctx ends
// first.
func (b *Blocking[T]) Take(ctx context.Context) (T, error) {
	for {
		if v, ok := b.q.TryDequeue(); ok {
			b.notFull.notify()
			return v, nil
		}

		ch := b.notEmpty.arm()
		if v, ok := b.q.TryDequeue(); ok {
			b.notEmpty.disarm()
			b.notFull.notify()
			return v, nil
		}

		b.parks.Add(1)
		select {
		case <-ch:
			b.notEmpty.disarm()
		case <-ctx.Done():
			b.notEmpty.disarm()
			b.timeouts.Add(1)
			var zero T
			return zero, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		}
	}
}

// TryPut enqueues v without parking and wakes a parked Take on success.
func (b *Blocking[T]) TryPut(v T) bool {
	if !b.q.TryEnqueue(v) {
		return false
	}
	b.notEmpty.notify()
	return true
}

// TryTake dequeues without parking and wakes a parked Put on success.
func (b *Blocking[T]) TryTake() (T, bool) {
	v, ok := b.q.TryDequeue()
	if ok {
		b.notFull.notify()
	}
	return v, ok
}

// Len returns the length of the wrapped queue.
func (b *Blocking[T]) Len() int {
	return b.q.Len()
}

// Capacity returns the capacity of the wrapped queue.
func (b *Blocking[T]) Capacity() uint64 {
	return b.q.Capacity()
}

// Stats retrieves the park and timeout counters.
func (b *Blocking[T]) Stats() BlockingStats {
	return BlockingStats{
		Parks:    b.parks.Load(),
		Timeouts: b.timeouts.Load(),
	}
}

// notifier wakes every parked goroutine by closing the current generation
// channel and installing a fresh one. It allocates only when someone is
// parked.
type notifier struct {
	waiters atomic.Int64
	ch      atomic.Pointer[chan struct{}]
}

func (n *notifier) init() {
	ch := make(chan struct{})
	n.ch.Store(&ch)
}

// arm registers a waiter and returns the channel it should park on. The
// waiter must re-check its condition after arming and call disarm once.
func (n *notifier) arm() <-chan struct{} {
	n.waiters.Add(1)
	return *n.ch.Load()
}

func (n *notifier) disarm() {
	n.waiters.Add(-1)
}

func (n *notifier) notify() {
	if n.waiters.Load() == 0 {
		return
	}
	ch := make(chan struct{})
	close(*n.ch.Swap(&ch))
}
