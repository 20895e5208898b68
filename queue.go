package lfqueue

// Bounded is the non-blocking surface shared by every fixed-capacity queue.
// Full and empty are reported as false, never as errors.
type Bounded[T any] interface {
	TryEnqueue(v T) bool
	TryDequeue() (T, bool)
	Len() int
	Capacity() uint64
}

// Instrumented is implemented by queues that keep Stats counters.
type Instrumented interface {
	Stats() Stats
}

var (
	_ Bounded[int] = (*SPSC[int])(nil)
	_ Bounded[int] = (*MPSC[int])(nil)
	_ Bounded[int] = (*MPMC[int])(nil)
	_ Bounded[int] = (*ReserveMPMC[int])(nil)

	_ Instrumented = (*MPSC[int])(nil)
	_ Instrumented = (*MPMC[int])(nil)
	_ Instrumented = (*ReserveMPMC[int])(nil)
)
