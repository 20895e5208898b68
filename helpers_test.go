package lfqueue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// requireRingQuiescent checks the slot sequences of an idle ring: every
// position in [head, tail) is published (seq == pos+1) and every position
// in [tail, head+capacity) is free for its next producer (seq == pos).
func requireRingQuiescent[T any](t *testing.T, r *ring[T], head, tail uint64) {
	t.Helper()
	require.LessOrEqual(t, head, tail, "head passed tail")
	require.LessOrEqual(t, tail-head, r.capacity, "more items than capacity")
	for pos := head; pos < tail; pos++ {
		require.Equal(t, pos+1, r.at(pos).seq.Load(), "published slot at pos %d", pos)
	}
	for pos := tail; pos < head+r.capacity; pos++ {
		require.Equal(t, pos, r.at(pos).seq.Load(), "free slot at pos %d", pos)
	}
}

// fastBackoff keeps blocking calls in tests from sleeping.
var fastBackoff = WithBackoff(Backoff{Spins: 4, Yields: 1 << 30})
