package lfqueue

// Slab is a fixed arena of values addressed by index. Free indices live in
// an MPMC ring, so acquiring and releasing an index is lock-free.
type Slab[T any] struct {
	free *MPMC[uint64]
	data []T
}

// NewSlab creates a slab with capacity entries (rounded up to a power of two),
// all of them free.
func NewSlab[T any](capacity uint64, opts ...Option) *Slab[T] {
	free := NewMPMC[uint64](capacity, opts...)
	n := free.Capacity()

	slab := &Slab[T]{
		free: free,
		data: make([]T, n),
	}

	for i := uint64(0); i < n; i++ {
		if !free.TryEnqueue(i) {
			panic("unreached")
		}
	}

	return slab
}

// Acquire takes a free index. Returns false if every index is in use.
// May be called concurrently from many goroutines.
func (s *Slab[T]) Acquire() (uint64, bool) {
	return s.free.TryDequeue()
}

// Put takes a free index and stores v there.
// May be called concurrently from many goroutines.
func (s *Slab[T]) Put(v T) (uint64, bool) {
	idx, ok := s.free.TryDequeue()
	if !ok {
		return 0, false
	}
	s.data[idx] = v
	return idx, true
}

// Get retrieves the element at idx.
// Can be called simultaneously from many goroutines (read-only) for an index
// that has not been released.
func (s *Slab[T]) Get(idx uint64) T {
	return s.data[idx]
}

// At returns a pointer to the entry at idx. The pointer stays valid for the
// lifetime of the slab, released or not.
func (s *Slab[T]) At(idx uint64) *T {
	return &s.data[idx]
}

// Release returns idx to the free list.
// May be called concurrently from many goroutines.
// Note: Release for one index should be called once
func (s *Slab[T]) Release(idx uint64) {
	// There are never more free indices than slots, so this only waits for
	// a consumer that has claimed the slot but not yet vacated it.
	s.free.Enqueue(idx)
}

// Capacity returns the number of entries.
func (s *Slab[T]) Capacity() uint64 {
	return uint64(len(s.data))
}

// InUse returns the number of acquired indices. It may be stale by the time
// it is used.
func (s *Slab[T]) InUse() int {
	return len(s.data) - s.free.Len()
}
