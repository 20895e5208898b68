// Package lfqotel exports queue counters as OpenTelemetry observable
// instruments. Values are read from the queue on every collection; nothing
// is recorded on the queue's hot path.
package lfqotel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/multierr"

	"github.com/aradilov/lfqueue"
)

// QueueKey is the attribute that carries the queue name.
const QueueKey = attribute.Key("lfqueue.queue")

// Source is an instrumented bounded queue.
type Source interface {
	Stats() lfqueue.Stats
	Len() int
	Capacity() uint64
}

// BlockingSource is a queue wrapped in lfqueue.Blocking.
type BlockingSource interface {
	Stats() lfqueue.BlockingStats
	Len() int
}

// Register creates the lfqueue.* instruments on meter and observes src
// under the given queue name. Unregister the returned registration when
// the queue goes away.
func Register(meter metric.Meter, name string, src Source) (metric.Registration, error) {
	var err error
	spins, e := meter.Int64ObservableCounter("lfqueue.spins",
		metric.WithDescription("Backoff steps taken while waiting on a slot or cursor"))
	err = multierr.Append(err, e)
	casFailures, e := meter.Int64ObservableCounter("lfqueue.cas_failures",
		metric.WithDescription("Lost compare-and-swap races on a cursor"))
	err = multierr.Append(err, e)
	full, e := meter.Int64ObservableCounter("lfqueue.full",
		metric.WithDescription("Enqueue attempts that found the queue full"))
	err = multierr.Append(err, e)
	empty, e := meter.Int64ObservableCounter("lfqueue.empty",
		metric.WithDescription("Dequeue attempts that found the queue empty"))
	err = multierr.Append(err, e)
	length, e := meter.Int64ObservableGauge("lfqueue.len",
		metric.WithDescription("Items currently queued"))
	err = multierr.Append(err, e)
	capacity, e := meter.Int64ObservableGauge("lfqueue.capacity",
		metric.WithDescription("Fixed queue capacity"))
	err = multierr.Append(err, e)
	if err != nil {
		return nil, err
	}

	attrs := metric.WithAttributes(QueueKey.String(name))
	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		st := src.Stats()
		o.ObserveInt64(spins, int64(st.Spins), attrs)
		o.ObserveInt64(casFailures, int64(st.CASFailures), attrs)
		o.ObserveInt64(full, int64(st.Full), attrs)
		o.ObserveInt64(empty, int64(st.Empty), attrs)
		o.ObserveInt64(length, int64(src.Len()), attrs)
		o.ObserveInt64(capacity, int64(src.Capacity()), attrs)
		return nil
	}, spins, casFailures, full, empty, length, capacity)
}

// RegisterBlocking observes the park and timeout counters of a Blocking
// wrapper. Register the wrapped queue separately for its own counters.
func RegisterBlocking(meter metric.Meter, name string, src BlockingSource) (metric.Registration, error) {
	var err error
	parks, e := meter.Int64ObservableCounter("lfqueue.blocking.parks",
		metric.WithDescription("Times a Put or Take parked"))
	err = multierr.Append(err, e)
	timeouts, e := meter.Int64ObservableCounter("lfqueue.blocking.timeouts",
		metric.WithDescription("Put or Take calls that gave up on their context"))
	err = multierr.Append(err, e)
	if err != nil {
		return nil, err
	}

	attrs := metric.WithAttributes(QueueKey.String(name))
	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		st := src.Stats()
		o.ObserveInt64(parks, int64(st.Parks), attrs)
		o.ObserveInt64(timeouts, int64(st.Timeouts), attrs)
		return nil
	}, parks, timeouts)
}
