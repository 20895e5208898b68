package lfqotel_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/aradilov/lfqueue"
	"github.com/aradilov/lfqueue/lfqotel"
)

func collect(t *testing.T, reader sdkmetric.Reader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	values := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			var points []metricdata.DataPoint[int64]
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				points = data.DataPoints
			case metricdata.Gauge[int64]:
				points = data.DataPoints
			}
			for _, dp := range points {
				q, ok := dp.Attributes.Value(lfqotel.QueueKey)
				require.True(t, ok, "%s has no queue attribute", m.Name)
				values[q.AsString()+"/"+m.Name] = dp.Value
			}
		}
	}
	return values
}

func TestRegister(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	q := lfqueue.NewMPMC[int](4)
	reg, err := lfqotel.Register(provider.Meter("test"), "jobs", q)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		q.TryEnqueue(i)
	}
	q.TryDequeue()

	values := collect(t, reader)
	require.Equal(t, int64(1), values["jobs/lfqueue.full"])
	require.Equal(t, int64(0), values["jobs/lfqueue.empty"])
	require.Equal(t, int64(3), values["jobs/lfqueue.len"])
	require.Equal(t, int64(4), values["jobs/lfqueue.capacity"])

	require.NoError(t, reg.Unregister())
}

func TestRegisterBlocking(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	b := lfqueue.NewBlocking[int](lfqueue.NewSPSC[int](2))
	reg, err := lfqotel.RegisterBlocking(provider.Meter("test"), "events", b)
	require.NoError(t, err)
	defer reg.Unregister()

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	_, err = b.Take(ctx)
	require.ErrorIs(t, err, lfqueue.ErrTimeout)

	values := collect(t, reader)
	require.Equal(t, int64(1), values["events/lfqueue.blocking.timeouts"])
	require.GreaterOrEqual(t, values["events/lfqueue.blocking.parks"], int64(1))
}

// The global provider is a no-op until one is installed; registering
// against it must still succeed.
func TestRegisterGlobalMeter(t *testing.T) {
	reg, err := lfqotel.Register(otel.GetMeterProvider().Meter("lfqotel_test"), "noop", lfqueue.NewMPSC[int](8))
	require.NoError(t, err)
	require.NoError(t, reg.Unregister())
}
