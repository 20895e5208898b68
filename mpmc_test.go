package lfqueue

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// Basic sanity: sequential enqueue/dequeue with ints (single P, single C).
func TestMPMCSequential(t *testing.T) {
	const (
		capacity = 1024
		N        = 100_000
	)

	q := NewMPMC[int](capacity)

	// Enqueue N items
	for i := 0; i < N; i++ {
		ok := q.TryEnqueue(i)
		if i < capacity {
			if !ok {
				t.Fatalf("enqueue failed at %d (queue unexpectedly full)", i)
			}
		} else if ok {
			t.Fatalf("enqueue failed at %d (queue unexpectedly not full)", i)
		}
	}

	// Dequeue N items
	for i := 0; i < N; i++ {
		v, ok := q.TryDequeue()
		if i < capacity {
			if !ok {
				t.Fatalf("dequeue failed at %d (queue unexpectedly empty)", i)
			}
			if v != i {
				t.Fatalf("expected %d, got %d (FIFO violated)", i, v)
			}
		} else if ok {
			t.Fatalf("dequeue failed at %d (queue unexpectedly not empty)", i)
		}
	}

	// Now queue must be empty
	if v, ok := q.TryDequeue(); ok {
		t.Fatalf("expected empty queue at the end, got value=%v", v)
	}

	st := q.Stats()
	if st.Full != N-capacity || st.Empty != N-capacity+1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

// Capacity/overflow test for MPMC.
func TestMPMCCapacityOverflow(t *testing.T) {
	const capacity = 8
	q := NewMPMC[int](capacity)

	for i := 0; i < capacity; i++ {
		if !q.TryEnqueue(i) {
			t.Fatalf("enqueue failed at %d (queue unexpectedly full)", i)
		}
	}

	if q.TryEnqueue(999) {
		t.Fatalf("expected overflow (enqueue should return false), but got true")
	}
}

// Full and empty reports leave cursors and slots untouched.
func TestMPMCFullEmptyNoSideEffects(t *testing.T) {
	const capacity = 4
	q := NewMPMC[string](capacity)

	_, ok := q.TryDequeue()
	require.False(t, ok)
	require.Zero(t, q.dequeue.Load())
	requireRingQuiescent(t, &q.ring, 0, 0)

	for _, s := range []string{"a", "b", "c", "d"} {
		require.True(t, q.TryEnqueue(s))
	}
	require.False(t, q.TryEnqueue("e"))
	require.Equal(t, uint64(capacity), q.enqueue.Load())
	require.Equal(t, capacity, q.Len())
	requireRingQuiescent(t, &q.ring, 0, capacity)

	for _, want := range []string{"a", "b", "c", "d"} {
		v, ok := q.TryDequeue()
		require.True(t, ok)
		require.Equal(t, want, v)
	}
	_, ok = q.TryDequeue()
	require.False(t, ok)
	require.Equal(t, uint64(capacity), q.dequeue.Load())
	require.Zero(t, q.Len())

	// consumed slots do not keep the value reachable
	for i := range q.ring.slots {
		require.Empty(t, q.ring.slots[i].val)
	}
}

// Concurrent test: many producers, many consumers.
// Checks that all values [0..N) appear exactly once.
func TestMPMCConcurrent(t *testing.T) {
	const (
		capacity    = 1 << 12
		N           = 200_000
		producers   = 8
		consumers   = 4
		perProducer = N / producers
	)

	q := NewMPMC[int](capacity)
	seen := make([]int32, N)
	var received atomic.Int64

	var wg sync.WaitGroup

	// Consumers
	wg.Add(consumers)
	for c := 0; c < consumers; c++ {
		go func() {
			defer wg.Done()
			for received.Load() < N {
				v, ok := q.TryDequeue()
				if !ok {
					runtime.Gosched()
					continue
				}
				if v < 0 || v >= N {
					t.Errorf("consumer: out-of-range value %d", v)
					continue
				}
				atomic.AddInt32(&seen[v], 1)
				received.Add(1)
			}
		}()
	}

	// Producers
	var pg sync.WaitGroup
	pg.Add(producers)
	for p := 0; p < producers; p++ {
		start := p * perProducer
		end := start + perProducer

		go func(from, to int) {
			defer pg.Done()
			for i := from; i < to; i++ {
				for !q.TryEnqueue(i) {
					runtime.Gosched()
				}
			}
		}(start, end)
	}

	pg.Wait()
	wg.Wait()

	// Verify that each value is seen exactly once.
	for i := 0; i < N; i++ {
		if seen[i] != 1 {
			t.Fatalf("value %d seen %d times (expected 1)", i, seen[i])
		}
	}
	requireRingQuiescent(t, &q.ring, q.dequeue.Load(), q.enqueue.Load())
}

// Blocking Enqueue/Dequeue with a tiny ring forces every goroutine through
// the wait path many times.
func TestMPMCBlockingSmallRing(t *testing.T) {
	const (
		capacity    = 2
		producers   = 4
		consumers   = 4
		perProducer = 10_000
		N           = producers * perProducer
	)

	q := NewMPMC[int](capacity, fastBackoff)
	seen := make([]int32, N)

	var wg sync.WaitGroup
	wg.Add(producers + consumers)
	for p := 0; p < producers; p++ {
		go func() {
			defer wg.Done()
			for i := p * perProducer; i < (p+1)*perProducer; i++ {
				q.Enqueue(i)
			}
		}()
	}
	for c := 0; c < consumers; c++ {
		go func() {
			defer wg.Done()
			for i := 0; i < N/consumers; i++ {
				atomic.AddInt32(&seen[q.Dequeue()], 1)
			}
		}()
	}
	wg.Wait()

	for i := range seen {
		require.Equal(t, int32(1), seen[i], "value %d", i)
	}
	require.Zero(t, q.Len())
	requireRingQuiescent(t, &q.ring, q.dequeue.Load(), q.enqueue.Load())
}

// Each consumer sees every producer's values in increasing order.
func TestMPMCPerProducerOrder(t *testing.T) {
	const (
		producers   = 4
		consumers   = 3
		perProducer = 20_000
	)

	q := NewMPMC[uint64](64, fastBackoff)

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := uint64(0); p < producers; p++ {
		go func() {
			defer wg.Done()
			for i := uint64(1); i <= perProducer; i++ {
				q.Enqueue(p<<32 | i)
			}
		}()
	}

	var total atomic.Int64
	errs := make(chan error, consumers)
	var cg sync.WaitGroup
	cg.Add(consumers)
	for c := 0; c < consumers; c++ {
		go func() {
			defer cg.Done()
			last := make([]uint64, producers)
			for total.Load() < producers*perProducer {
				v, ok := q.TryDequeue()
				if !ok {
					runtime.Gosched()
					continue
				}
				total.Add(1)
				p, seq := v>>32, v&(1<<32-1)
				if seq <= last[p] {
					errs <- fmt.Errorf("producer %d: got %d after %d", p, seq, last[p])
					return
				}
				last[p] = seq
			}
		}()
	}
	wg.Wait()
	cg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

// After cycling through ten times the capacity the slot sequences still
// line up with the cursors.
func TestMPMCSlotReuse(t *testing.T) {
	const capacity = 8
	q := NewMPMC[int](capacity)

	for round := 0; round < 10; round++ {
		for i := 0; i < capacity; i++ {
			require.True(t, q.TryEnqueue(round*capacity+i))
		}
		requireRingQuiescent(t, &q.ring, q.dequeue.Load(), q.enqueue.Load())
		for i := 0; i < capacity; i++ {
			v, ok := q.TryDequeue()
			require.True(t, ok)
			require.Equal(t, round*capacity+i, v)
		}
		requireRingQuiescent(t, &q.ring, q.dequeue.Load(), q.enqueue.Load())
	}
	require.Equal(t, uint64(10*capacity), q.enqueue.Load())
}

// Benchmark: single producer, single consumer.
func BenchmarkMPMC_1P1C(b *testing.B) {
	const capacity = 1 << 16
	q := NewMPMC[int](capacity)

	done := make(chan struct{})

	// Consumer
	go func() {
		for i := 0; i < b.N; i++ {
			for {
				if _, ok := q.TryDequeue(); ok {
					break
				}
				runtime.Gosched()
			}
		}
		close(done)
	}()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for !q.TryEnqueue(i) {
			runtime.Gosched()
		}
	}
	<-done
	b.StopTimer()
}

// Benchmark: many producers, many consumers.
func BenchmarkMPMC_MPMC(b *testing.B) {
	const (
		capacity  = 1 << 16
		producers = 8
		consumers = 8
	)

	q := NewMPMC[int](capacity)
	perProducer := b.N / producers
	perConsumer := perProducer * producers / consumers

	var wg sync.WaitGroup
	wg.Add(producers + consumers)

	// Consumers
	for c := 0; c < consumers; c++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perConsumer; i++ {
				_ = q.Dequeue()
			}
		}()
	}

	// Producers
	for p := 0; p < producers; p++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(i)
			}
		}()
	}

	b.ResetTimer()
	wg.Wait()
	b.StopTimer()
}
