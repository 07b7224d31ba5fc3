package telemetry_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erp/shipping/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func newReaderMetrics(t *testing.T) (*telemetry.PipelineMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	pm, err := telemetry.NewPipelineMetrics(provider.Meter("test"), zaptest.NewLogger(t))
	require.NoError(t, err)
	return pm, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumOf(t *testing.T, data metricdata.Aggregation) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum, got %T", data)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	mp, err := telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{
		Enabled:     false,
		ServiceName: "test-service",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("noop"))
	assert.NoError(t, mp.Shutdown(context.Background()))
}

func TestNewPipelineMetrics_NilMeter(t *testing.T) {
	pm, err := telemetry.NewPipelineMetrics(nil, zap.NewNop())
	assert.ErrorIs(t, err, telemetry.ErrMeterNil)
	assert.Nil(t, pm)
}

func TestPipelineMetrics_Counters(t *testing.T) {
	pm, reader := newReaderMetrics(t)
	ctx := context.Background()

	pm.LabelAcquired(ctx, 7, "pdf")
	pm.LabelAcquired(ctx, 7, "zip")
	pm.LabelComposed(ctx, 7, 120*time.Millisecond)
	pm.Failure(ctx, telemetry.StageCompose, "format")
	pm.Failure(ctx, telemetry.StageAcquire, "transient_remote")
	pm.Failure(ctx, telemetry.StageAcquire, "transient_remote")
	pm.JobsEnqueued(ctx, "memory", 3)

	data := collect(t, reader)
	assert.Equal(t, int64(2), sumOf(t, data["labels_acquired_total"]))
	assert.Equal(t, int64(1), sumOf(t, data["labels_composed_total"]))
	assert.Equal(t, int64(3), sumOf(t, data["label_failures_total"]))
	assert.Equal(t, int64(3), sumOf(t, data["print_jobs_enqueued_total"]))

	failures := data["label_failures_total"].(metricdata.Sum[int64])
	byKind := map[string]int64{}
	for _, dp := range failures.DataPoints {
		kind, _ := dp.Attributes.Value(attribute.Key("kind"))
		byKind[kind.AsString()] += dp.Value
	}
	assert.Equal(t, map[string]int64{"format": 1, "transient_remote": 2}, byKind)

	hist, ok := data["compose_duration_ms"].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.InDelta(t, 120.0, hist.DataPoints[0].Sum, 0.001)
}

type stubBacklog struct {
	calls atomic.Int32
	n     int64
	err   error
}

func (s *stubBacklog) CountBacklog(context.Context) (int64, error) {
	s.calls.Add(1)
	return s.n, s.err
}

func TestPipelineMetrics_BacklogCollection(t *testing.T) {
	pm, reader := newReaderMetrics(t)
	src := &stubBacklog{n: 42}

	pm.StartBacklogCollection(context.Background(), src, 10*time.Millisecond)
	pm.StartBacklogCollection(context.Background(), src, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return src.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	pm.Stop()
	pm.Stop()

	gauge, ok := collect(t, reader)["label_backlog"].(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(42), gauge.DataPoints[0].Value)
}

func TestPipelineMetrics_BacklogErrorIsLogged(t *testing.T) {
	pm, reader := newReaderMetrics(t)
	src := &stubBacklog{err: errors.New("db down")}

	ctx, cancel := context.WithCancel(context.Background())
	pm.StartBacklogCollection(ctx, src, time.Hour)
	assert.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	_, recorded := collect(t, reader)["label_backlog"]
	assert.False(t, recorded)
}
