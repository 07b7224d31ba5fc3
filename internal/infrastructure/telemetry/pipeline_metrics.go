package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ErrMeterNil is returned when no meter is supplied.
var ErrMeterNil = errors.New("NewPipelineMetrics: meter cannot be nil")

// Failure stages reported with label_failures_total.
const (
	StageAcquire = "acquire"
	StageCompose = "compose"
	StagePrint   = "print"
	StageSync    = "sync"
)

// BacklogCounter reports how many records still wait for their carrier label.
type BacklogCounter interface {
	CountBacklog(ctx context.Context) (int64, error)
}

// PipelineMetrics groups the label pipeline instruments.
type PipelineMetrics struct {
	logger *zap.Logger

	acquired        *Counter
	composed        *Counter
	failures        *Counter
	enqueued        *Counter
	composeDuration *Histogram
	backlog         *Gauge

	stopCh      chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once
}

// NewPipelineMetrics registers the pipeline instruments on meter.
func NewPipelineMetrics(meter metric.Meter, logger *zap.Logger) (*PipelineMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pm := &PipelineMetrics{logger: logger, stopCh: make(chan struct{})}

	var err error
	if pm.acquired, err = NewCounter(meter, "labels_acquired_total", "Carrier labels downloaded and stored", "{labels}"); err != nil {
		return nil, err
	}
	if pm.composed, err = NewCounter(meter, "labels_composed_total", "Slip and label composites produced", "{labels}"); err != nil {
		return nil, err
	}
	if pm.failures, err = NewCounter(meter, "label_failures_total", "Pipeline failures by error kind", "{failures}"); err != nil {
		return nil, err
	}
	if pm.enqueued, err = NewCounter(meter, "print_jobs_enqueued_total", "Print jobs handed to the print queue", "{jobs}"); err != nil {
		return nil, err
	}
	if pm.composeDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "compose_duration_ms",
		Description: "Time spent composing one order",
		Unit:        "ms",
		Boundaries:  ComposeDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if pm.backlog, err = NewGauge(meter, "label_backlog", "Records whose carrier label is not saved yet", "{records}"); err != nil {
		return nil, err
	}
	return pm, nil
}

// LabelAcquired counts a stored carrier label.
func (pm *PipelineMetrics) LabelAcquired(ctx context.Context, storeID int64, format string) {
	pm.acquired.Inc(ctx, AttrStoreID.Int64(storeID), AttrFormat.String(format))
}

// LabelComposed counts a finished composite and records its duration.
func (pm *PipelineMetrics) LabelComposed(ctx context.Context, storeID int64, took time.Duration) {
	pm.composed.Inc(ctx, AttrStoreID.Int64(storeID))
	pm.composeDuration.RecordMillis(ctx, took, AttrStoreID.Int64(storeID))
}

// Failure counts a pipeline failure of the given kind.
func (pm *PipelineMetrics) Failure(ctx context.Context, stage, kind string) {
	pm.failures.Inc(ctx, AttrStage.String(stage), AttrFailureKind.String(kind))
}

// JobsEnqueued counts n print jobs pushed to backend.
func (pm *PipelineMetrics) JobsEnqueued(ctx context.Context, backend string, n int) {
	pm.enqueued.Add(ctx, int64(n), AttrBackend.String(backend))
}

// StartBacklogCollection samples the backlog every interval (default 1m)
// until Stop is called or ctx ends. Only the first call starts a collector.
func (pm *PipelineMetrics) StartBacklogCollection(ctx context.Context, src BacklogCounter, interval time.Duration) {
	pm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = time.Minute
		}
		go pm.collect(ctx, src, interval)
	})
}

func (pm *PipelineMetrics) collect(ctx context.Context, src BacklogCounter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pm.sampleBacklog(ctx, src)
	for {
		select {
		case <-pm.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm.sampleBacklog(ctx, src)
		}
	}
}

func (pm *PipelineMetrics) sampleBacklog(ctx context.Context, src BacklogCounter) {
	n, err := src.CountBacklog(ctx)
	if err != nil {
		pm.logger.Warn("Failed to count label backlog", zap.Error(err))
		return
	}
	pm.backlog.Record(ctx, n)
}

// Stop stops the backlog collector.
func (pm *PipelineMetrics) Stop() {
	pm.stopOnce.Do(func() { close(pm.stopCh) })
}
