package lfqueue

import (
	"runtime"
	"time"

	"github.com/valyala/fastrand"
)

// Backoff is a three-tier spin-wait policy: Spins immediate retries, then
// Yields calls to runtime.Gosched, then short sleeps of Sleep plus up to
// Sleep of random jitter. The zero value retries immediately forever.
//
// A Backoff carries its own attempt counter, so copy it per waiting
// goroutine rather than sharing one.
type Backoff struct {
	Spins  int
	Yields int
	Sleep  time.Duration

	n int
}

// DefaultBackoff mirrors a pause/yield/sleep cpu-relax loop.
var DefaultBackoff = Backoff{
	Spins:  10,
	Yields: 20,
	Sleep:  100 * time.Nanosecond,
}

// Wait performs one backoff step and advances to the next tier when the
// current one is exhausted.
func (b *Backoff) Wait() {
	switch {
	case b.n < b.Spins:
		// tight retry
	case b.n < b.Spins+b.Yields:
		runtime.Gosched()
	case b.Sleep > 0:
		d := b.Sleep
		if d < time.Duration(1<<31) {
			d += time.Duration(fastrand.Uint32n(uint32(d) + 1))
		}
		time.Sleep(d)
		return
	default:
		runtime.Gosched()
		return
	}
	b.n++
}

// Reset returns the policy to tier 1.
func (b *Backoff) Reset() {
	b.n = 0
}

// Option configures a queue at construction.
type Option func(*options)

type options struct {
	backoff   Backoff
	maxGuards int
	nodeCache uint64
}

func buildOptions(opts []Option) options {
	o := options{
		backoff:   DefaultBackoff,
		maxGuards: max(64, 4*runtime.GOMAXPROCS(0)),
		nodeCache: 1024,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.backoff.n = 0
	return o
}

// WithBackoff sets the spin-wait policy used by blocking operations and by
// the internal retry loops.
func WithBackoff(b Backoff) Option {
	return func(o *options) {
		o.backoff = b
	}
}

// WithMaxGuards sets how many guard records an Unbounded queue preallocates.
// Guards beyond that come from an overflow list that grows on demand and is
// never shrunk.
func WithMaxGuards(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxGuards = n
		}
	}
}

// WithNodeCache sets how many reclaimed nodes an Unbounded queue keeps for
// reuse. Zero disables recycling and leaves reclaimed nodes to the GC.
func WithNodeCache(n uint64) Option {
	return func(o *options) {
		o.nodeCache = n
	}
}
