// Package lfqueue provides lock-free FIFO queues for passing values between
// goroutines.
//
// Bounded queues share one ring of slots, each slot carrying a sequence
// number that says which cursor generation may write or read it next:
//
//   - SPSC: one producer, one consumer, no CAS.
//   - MPSC: many producers, one consumer.
//   - MPMC: many producers, many consumers, CAS on both cursors.
//   - ReserveMPMC: many producers, many consumers, reserve and commit
//     cursors on each side.
//
// Capacity is rounded up to the next power of two (at least 2 for the
// sequence-numbered rings); zero panics.
//
// Unbounded is a Michael–Scott linked list whose nodes are recycled under
// hazard-pointer protection.
//
// Every queue reports full and empty as a false result. Blocking operations
// (Enqueue, Dequeue) spin with a Backoff; callers that need to park or time
// out wrap a bounded queue in Blocking.
//
//	q := lfqueue.NewMPMC[int](1024)
//	if !q.TryEnqueue(42) {
//		// full
//	}
//	if v, ok := q.TryDequeue(); ok {
//		_ = v
//	}
package lfqueue
