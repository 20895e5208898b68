package lfqueue

import "sync/atomic"

// Stats is a snapshot of a queue's instrumentation counters. The counters
// are for observability only and play no part in correctness.
type Stats struct {
	Spins       uint64 // backoff steps taken while waiting on a slot or cursor
	CASFailures uint64 // lost compare-and-swap races on a cursor
	Full        uint64 // TryEnqueue calls that found the queue full
	Empty       uint64 // TryDequeue calls that found the queue empty
}

type counters struct {
	spins       atomic.Uint64
	casFailures atomic.Uint64
	full        atomic.Uint64
	empty       atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Spins:       c.spins.Load(),
		CASFailures: c.casFailures.Load(),
		Full:        c.full.Load(),
		Empty:       c.empty.Load(),
	}
}
