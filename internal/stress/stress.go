// Package stress drives a queue with concurrent producers and consumers and
// verifies that every value comes out exactly once and in per-producer
// order.
package stress

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/aradilov/lfqueue"
)

var (
	ErrInvalidConfig = fmt.Errorf("invalid config")
	ErrLost          = fmt.Errorf("values lost")
	ErrDuplicate     = fmt.Errorf("value delivered twice")
	ErrOrder         = fmt.Errorf("per-producer order violated")
)

const (
	maxPerProducer = 1<<32 - 1

	// maxTotal bounds producers*per-producer; the run keeps one delivery
	// counter per value.
	maxTotal = 1 << 30
)

// Queue is the non-blocking surface the harness needs.
type Queue interface {
	TryEnqueue(v uint64) bool
	TryDequeue() (uint64, bool)
}

// Config sizes a run.
type Config struct {
	Producers   int `json:"producers"`
	Consumers   int `json:"consumers"`
	PerProducer int `json:"per_producer"`

	Logger *zap.Logger `json:"-"`
}

func (c Config) withDefaults() Config {
	if c.Producers == 0 {
		c.Producers = 1
	}
	if c.Consumers == 0 {
		c.Consumers = 1
	}
	if c.PerProducer == 0 {
		c.PerProducer = 100_000
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

func (c Config) validate() error {
	switch {
	case c.Producers < 0 || c.Producers > 1<<16:
		return fmt.Errorf("%w: producers %d", ErrInvalidConfig, c.Producers)
	case c.Consumers < 0 || c.Consumers > 1<<16:
		return fmt.Errorf("%w: consumers %d", ErrInvalidConfig, c.Consumers)
	case c.PerProducer < 0 || c.PerProducer > maxPerProducer:
		return fmt.Errorf("%w: per-producer count %d", ErrInvalidConfig, c.PerProducer)
	case uint64(c.Producers)*uint64(c.PerProducer) > maxTotal:
		return fmt.Errorf("%w: %d producers x %d values exceeds %d", ErrInvalidConfig, c.Producers, c.PerProducer, maxTotal)
	}
	return nil
}

// Report summarizes a run.
type Report struct {
	Produced       uint64         `json:"produced"`
	Consumed       uint64         `json:"consumed"`
	ProducedSum    uint64         `json:"produced_sum"`
	ConsumedSum    uint64         `json:"consumed_sum"`
	EnqueueRetries uint64         `json:"enqueue_retries"`
	DequeueRetries uint64         `json:"dequeue_retries"`
	Elapsed        time.Duration  `json:"elapsed_ns"`
	OpsPerSecond   float64        `json:"ops_per_second"`
	Stats          *lfqueue.Stats `json:"stats,omitempty"`
}

// encode packs a producer id and its 1-based sequence number into one value.
func encode(producer, seq uint64) uint64 {
	return producer<<32 | seq
}

func decode(v uint64) (producer, seq uint64) {
	return v >> 32, v & maxPerProducer
}

// Run starts cfg.Producers producers, each enqueueing cfg.PerProducer
// values, and cfg.Consumers consumers that drain q until every value has
// been seen. It returns ErrLost if ctx ends first, ErrDuplicate or ErrOrder
// on a delivery fault, and the report in every case.
func Run(ctx context.Context, cfg Config, q Queue) (Report, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return Report{}, err
	}
	log := cfg.Logger

	producers := uint64(cfg.Producers)
	perProducer := uint64(cfg.PerProducer)
	total := producers * perProducer

	pool, err := ants.NewPool(cfg.Producers+cfg.Consumers, ants.WithPanicHandler(func(p any) {
		log.Error("stress worker panicked", zap.Any("panic", p))
	}))
	if err != nil {
		return Report{}, fmt.Errorf("worker pool: %w", err)
	}
	defer pool.Release()

	var (
		r        run
		wg       sync.WaitGroup
		consumed atomic.Uint64
	)
	r.seen = make([]atomic.Uint32, total)
	r.perProducer = perProducer

	start := time.Now()
	log.Info("stress run started",
		zap.Int("producers", cfg.Producers),
		zap.Int("consumers", cfg.Consumers),
		zap.Int("per_producer", cfg.PerProducer))

	for c := 0; c < cfg.Consumers; c++ {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			last := make([]uint64, producers)
			for consumed.Load() < total {
				v, ok := q.TryDequeue()
				if !ok {
					r.dequeueRetries.Add(1)
					if ctx.Err() != nil || r.failed() {
						return
					}
					runtime.Gosched()
					continue
				}
				consumed.Add(1)
				r.consumedSum.Add(v)
				if err := r.check(v, last); err != nil {
					log.Error("delivery fault", zap.Int("consumer", c), zap.Error(err))
					r.fail(err)
					return
				}
			}
		})
		if err != nil {
			wg.Done()
			return Report{}, fmt.Errorf("submit consumer: %w", err)
		}
	}

	for p := uint64(0); p < producers; p++ {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			for seq := uint64(1); seq <= perProducer; seq++ {
				v := encode(p, seq)
				for !q.TryEnqueue(v) {
					r.enqueueRetries.Add(1)
					if ctx.Err() != nil || r.failed() {
						return
					}
					runtime.Gosched()
				}
				r.produced.Add(1)
				r.producedSum.Add(v)
			}
			log.Debug("producer done", zap.Uint64("producer", p))
		})
		if err != nil {
			wg.Done()
			return Report{}, fmt.Errorf("submit producer: %w", err)
		}
	}

	wg.Wait()
	elapsed := time.Since(start)

	rep := Report{
		Produced:       r.produced.Load(),
		Consumed:       consumed.Load(),
		ProducedSum:    r.producedSum.Load(),
		ConsumedSum:    r.consumedSum.Load(),
		EnqueueRetries: r.enqueueRetries.Load(),
		DequeueRetries: r.dequeueRetries.Load(),
		Elapsed:        elapsed,
	}
	if elapsed > 0 {
		rep.OpsPerSecond = float64(rep.Consumed) / elapsed.Seconds()
	}
	if in, ok := q.(lfqueue.Instrumented); ok {
		st := in.Stats()
		rep.Stats = &st
	}

	if err := r.err(); err != nil {
		return rep, err
	}
	if rep.Consumed != total {
		err := fmt.Errorf("%w: %d of %d values not delivered", ErrLost, total-rep.Consumed, total)
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", err, ctx.Err())
		}
		log.Error("stress run incomplete", zap.Error(err))
		return rep, err
	}
	if rep.ProducedSum != rep.ConsumedSum {
		return rep, fmt.Errorf("%w: produced sum %d, consumed sum %d", ErrLost, rep.ProducedSum, rep.ConsumedSum)
	}

	log.Info("stress run finished",
		zap.Uint64("consumed", rep.Consumed),
		zap.Duration("elapsed", elapsed),
		zap.Float64("ops_per_second", rep.OpsPerSecond))
	return rep, nil
}

// run is the state shared by the workers of one Run.
type run struct {
	perProducer uint64
	seen        []atomic.Uint32

	produced       atomic.Uint64
	producedSum    atomic.Uint64
	consumedSum    atomic.Uint64
	enqueueRetries atomic.Uint64
	dequeueRetries atomic.Uint64

	fault atomic.Pointer[error]
}

// check marks v as seen and verifies it against the consumer's last
// sequence number for the same producer.
func (r *run) check(v uint64, last []uint64) error {
	p, seq := decode(v)
	if p >= uint64(len(last)) || seq == 0 || seq > r.perProducer {
		return fmt.Errorf("%w: value %#x was never produced", ErrDuplicate, v)
	}
	if r.seen[p*r.perProducer+seq-1].Add(1) > 1 {
		return fmt.Errorf("%w: producer %d seq %d", ErrDuplicate, p, seq)
	}
	if seq <= last[p] {
		return fmt.Errorf("%w: producer %d seq %d after %d", ErrOrder, p, seq, last[p])
	}
	last[p] = seq
	return nil
}

func (r *run) fail(err error) {
	r.fault.CompareAndSwap(nil, &err)
}

func (r *run) failed() bool {
	return r.fault.Load() != nil
}

func (r *run) err() error {
	if p := r.fault.Load(); p != nil {
		return *p
	}
	return nil
}
