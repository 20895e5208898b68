package lfqueue

import (
	"math/bits"
	"sync/atomic"
)

// Sequence protocol after Dmitry Vyukov's bounded MPMC queue
// https://www.1024cores.net/home/lock-free-algorithms/queues/bounded-mpmc-queue

const cacheLine = 64

// pad keeps hot cursors on separate cache lines.
type pad [cacheLine]byte

type slot[T any] struct {
	seq atomic.Uint64 // sequence number (controls visibility and slot ownership)
	val T             // actual value stored in this slot
}

// ring is the fixed, power-of-two slot array shared by every bounded queue.
// It is allocated once by the constructor and never resized.
type ring[T any] struct {
	mask     uint64
	capacity uint64
	slots    []slot[T]
}

// newRing allocates capacity slots (rounded up to a power of two, at least
// two) and gives slot i the initial sequence i. A single slot would show the
// same sequence for "published at pos" and "free for pos+1".
func newRing[T any](capacity uint64) ring[T] {
	n := max(roundPow2(capacity), 2)
	slots := make([]slot[T], n)
	for i := uint64(0); i < n; i++ {
		// initial sequence for each slot matches its index
		slots[i].seq.Store(i)
	}
	return ring[T]{
		mask:     n - 1,
		capacity: n,
		slots:    slots,
	}
}

// at returns the slot that cursor value pos maps to.
func (r *ring[T]) at(pos uint64) *slot[T] {
	return &r.slots[pos&r.mask]
}

// roundPow2 rounds capacity up to the next power of two.
// Zero and values above 1<<63 are construction errors.
func roundPow2(capacity uint64) uint64 {
	if capacity == 0 {
		panic("capacity must be > 0")
	}
	if capacity > 1<<63 {
		panic("capacity must be <= 1<<63")
	}
	if capacity&(capacity-1) == 0 {
		return capacity
	}
	return 1 << bits.Len64(capacity-1)
}

// distance returns a-b as a signed value, so cursors read at slightly
// different moments never wrap into a huge unsigned difference.
func distance(a, b uint64) int64 {
	return int64(a - b)
}
