package stress

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aradilov/lfqueue"
)

// Kind describes a queue variant the harness can drive.
type Kind struct {
	Name string
	// MaxProducers and MaxConsumers are cardinality contracts of the
	// variant; 0 means unlimited.
	MaxProducers int
	MaxConsumers int

	New func(capacity uint64, opts ...lfqueue.Option) Queue
}

// Check reports whether cfg respects the cardinality contract of k.
func (k Kind) Check(cfg Config) error {
	cfg = cfg.withDefaults()
	if k.MaxProducers > 0 && cfg.Producers > k.MaxProducers {
		return fmt.Errorf("%w: %s allows %d producer(s), got %d", ErrInvalidConfig, k.Name, k.MaxProducers, cfg.Producers)
	}
	if k.MaxConsumers > 0 && cfg.Consumers > k.MaxConsumers {
		return fmt.Errorf("%w: %s allows %d consumer(s), got %d", ErrInvalidConfig, k.Name, k.MaxConsumers, cfg.Consumers)
	}
	return nil
}

var kinds = []Kind{
	{
		Name:         "spsc",
		MaxProducers: 1,
		MaxConsumers: 1,
		New: func(capacity uint64, _ ...lfqueue.Option) Queue {
			return lfqueue.NewSPSC[uint64](capacity)
		},
	},
	{
		Name:         "mpsc",
		MaxConsumers: 1,
		New: func(capacity uint64, opts ...lfqueue.Option) Queue {
			return lfqueue.NewMPSC[uint64](capacity, opts...)
		},
	},
	{
		Name: "mpmc",
		New: func(capacity uint64, opts ...lfqueue.Option) Queue {
			return lfqueue.NewMPMC[uint64](capacity, opts...)
		},
	},
	{
		Name: "reserve",
		New: func(capacity uint64, opts ...lfqueue.Option) Queue {
			return lfqueue.NewReserveMPMC[uint64](capacity, opts...)
		},
	},
	{
		Name: "unbounded",
		New: func(_ uint64, opts ...lfqueue.Option) Queue {
			return Unbounded(lfqueue.NewUnbounded[uint64](opts...))
		},
	},
}

// Lookup returns the kind with the given name.
func Lookup(name string) (Kind, error) {
	i := slices.IndexFunc(kinds, func(k Kind) bool { return k.Name == name })
	if i < 0 {
		return Kind{}, fmt.Errorf("%w: unknown queue %q (want one of %s)", ErrInvalidConfig, name, strings.Join(Names(), ", "))
	}
	return kinds[i], nil
}

// Names lists the known kinds.
func Names() []string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.Name
	}
	return names
}

type unboundedQueue struct {
	q *lfqueue.Unbounded[uint64]
}

// Unbounded adapts q to Queue. Enqueue never fails.
func Unbounded(q *lfqueue.Unbounded[uint64]) Queue {
	return unboundedQueue{q: q}
}

func (u unboundedQueue) TryEnqueue(v uint64) bool {
	u.q.Push(v)
	return true
}

func (u unboundedQueue) TryDequeue() (uint64, bool) {
	return u.q.TryPop()
}
