package lfqueue

import (
	"testing"

	"github.com/gammazero/deque"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// checkBoundedModel drives q with random TryEnqueue/TryDequeue calls and
// compares every result against a plain FIFO.
func checkBoundedModel(t *rapid.T, q Bounded[int]) {
	var model deque.Deque[int]

	t.Repeat(map[string]func(*rapid.T){
		"enqueue": func(t *rapid.T) {
			v := rapid.Int().Draw(t, "value")
			ok := q.TryEnqueue(v)
			if uint64(model.Len()) == q.Capacity() {
				require.False(t, ok, "enqueue into a full queue")
				return
			}
			require.True(t, ok, "enqueue with %d of %d used", model.Len(), q.Capacity())
			model.PushBack(v)
		},
		"dequeue": func(t *rapid.T) {
			v, ok := q.TryDequeue()
			if model.Len() == 0 {
				require.False(t, ok, "dequeue from an empty queue")
				return
			}
			require.True(t, ok)
			require.Equal(t, model.PopFront(), v)
		},
		"": func(t *rapid.T) {
			require.Equal(t, model.Len(), q.Len())
		},
	})
}

func TestBoundedModel(t *testing.T) {
	queues := map[string]func(capacity uint64) Bounded[int]{
		"SPSC": func(c uint64) Bounded[int] { return NewSPSC[int](c) },
		"MPSC": func(c uint64) Bounded[int] { return NewMPSC[int](c) },
		"MPMC": func(c uint64) Bounded[int] { return NewMPMC[int](c) },
		"ReserveMPMC": func(c uint64) Bounded[int] {
			return NewReserveMPMC[int](c)
		},
	}

	for name, newQueue := range queues {
		t.Run(name, func(t *testing.T) {
			rapid.Check(t, func(t *rapid.T) {
				capacity := rapid.Uint64Range(1, 16).Draw(t, "capacity")
				q := newQueue(capacity)
				require.GreaterOrEqual(t, q.Capacity(), capacity)
				require.Zero(t, q.Capacity()&(q.Capacity()-1), "capacity is not a power of two")
				checkBoundedModel(t, q)
			})
		})
	}
}

func TestUnboundedModel(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		q := NewUnbounded[int](WithNodeCache(rapid.Uint64Range(0, 8).Draw(t, "nodeCache")))
		h := q.Handle()
		defer h.Release()

		var model deque.Deque[int]
		t.Repeat(map[string]func(*rapid.T){
			"push": func(t *rapid.T) {
				v := rapid.Int().Draw(t, "value")
				if rapid.Bool().Draw(t, "handle") {
					h.Push(v)
				} else {
					q.Push(v)
				}
				model.PushBack(v)
			},
			"pop": func(t *rapid.T) {
				var (
					v  int
					ok bool
				)
				if rapid.Bool().Draw(t, "handle") {
					v, ok = h.TryPop()
				} else {
					v, ok = q.TryPop()
				}
				if model.Len() == 0 {
					require.False(t, ok)
					return
				}
				require.True(t, ok)
				require.Equal(t, model.PopFront(), v)
			},
			"": func(t *rapid.T) {
				require.Equal(t, model.Len(), q.Len())
			},
		})
	})
}
