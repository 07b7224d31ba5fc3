package labeling

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"

	"github.com/erp/shipping/internal/domain/shared"
	"github.com/erp/shipping/internal/domain/shipping"
	"github.com/erp/shipping/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ReconciliationTask is the scheduler name of Reconciler.RunScheduled.
const ReconciliationTask = "label-reconciliation"

// ErrReconciliationRunning is returned when a run is already in progress.
var ErrReconciliationRunning = shared.NewDomainError("RECONCILIATION_RUNNING", "Reconciliation is already running")

// ReconcilerConfig configures a Reconciler
type ReconcilerConfig struct {
	// PendingStatus is the carrier order status listed on each run; 0 lists all.
	PendingStatus int
	// BacklogLimit caps the records processed per run; 0 means no cap.
	BacklogLimit int
	Logger       *zap.Logger
}

// Reconciler synchronizes pending carrier orders and drives every record
// without a saved label through the pipeline.
type Reconciler struct {
	carrier   CarrierAPI
	syncer    *Syncer
	processor *Processor
	records   shipping.LabelRecordRepository
	metrics   Metrics
	cfg       ReconcilerConfig
	logger    *zap.Logger

	running atomic.Bool
}

// NewReconciler creates a Reconciler
func NewReconciler(api CarrierAPI, syncer *Syncer, processor *Processor, records shipping.LabelRecordRepository, cfg ReconcilerConfig) *Reconciler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Reconciler{
		carrier:   api,
		syncer:    syncer,
		processor: processor,
		records:   records,
		metrics:   nopMetrics{},
		cfg:       cfg,
		logger:    cfg.Logger.Named("reconciler"),
	}
}

// WithMetrics sets the metrics sink
func (r *Reconciler) WithMetrics(m Metrics) *Reconciler {
	r.metrics = metricsOrNop(m)
	return r
}

// Running reports whether a run is in progress.
func (r *Reconciler) Running() bool {
	return r.running.Load()
}

// Run performs one reconciliation pass, reporting progress through emit.
// Per-order failures are reported and recorded but never end the run. The
// last event is always a done event.
func (r *Reconciler) Run(ctx context.Context, emit func(shipping.ProgressEvent)) error {
	if emit == nil {
		emit = func(shipping.ProgressEvent) {}
	}
	defer emit(shipping.DoneEvent())

	if !r.running.CompareAndSwap(false, true) {
		emit(shipping.LogEvent("reconciliation already running"))
		return ErrReconciliationRunning
	}
	defer r.running.Store(false)

	ctx, span := telemetry.StartSpan(ctx, "labels", "reconcile")
	defer span.End()

	for _, storeID := range r.carrier.Stores() {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.syncStore(ctx, storeID, emit)
	}

	backlog, err := r.records.Backlog(ctx, 0, r.cfg.BacklogLimit)
	if err != nil {
		telemetry.RecordError(span, err)
		emit(shipping.LogEvent("failed to load backlog: " + err.Error()))
		return fmt.Errorf("load backlog: %w", err)
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrOrderCount, len(backlog))
	emit(shipping.LogEvent(fmt.Sprintf("%d orders waiting for a label", len(backlog))))

	failed := 0
	for i, rec := range backlog {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := r.processor.ProcessOrder(ctx, rec.OrderNumber)
		switch {
		case err == nil:
			emit(shipping.LogEvent("order " + rec.OrderNumber + ": label ready"))
		case errors.Is(err, ErrOrderInFlight):
			emit(shipping.LogEvent("order " + rec.OrderNumber + ": already in progress, skipped"))
		default:
			failed++
			emit(shipping.LogEvent(fmt.Sprintf("order %s: %s: %v", rec.OrderNumber, shipping.Kind(err), err)))
		}
		emit(shipping.PercentEvent((i + 1) * 100 / len(backlog)))
	}

	r.logger.Info("Reconciliation finished",
		zap.Int("backlog", len(backlog)),
		zap.Int("failed", failed))
	return nil
}

func (r *Reconciler) syncStore(ctx context.Context, storeID int64, emit func(shipping.ProgressEvent)) {
	orders, err := r.carrier.PendingOrders(ctx, storeID, r.cfg.PendingStatus)
	if err != nil {
		r.logger.Warn("Cannot list pending orders", zap.Int64("store_id", storeID), zap.Error(err))
		emit(shipping.LogEvent(fmt.Sprintf("store %d: %v", storeID, err)))
		return
	}

	synced, failed := 0, 0
	for summary := range orders {
		if ctx.Err() != nil {
			break
		}
		if _, err := r.syncer.FetchAndSync(ctx, storeID, summary.ID); err != nil {
			failed++
			r.metrics.Failure(ctx, telemetry.StageSync, shipping.Kind(err))
			r.logger.Warn("Order sync failed",
				zap.Int64("store_id", storeID),
				zap.Int64("order_id", summary.ID),
				zap.Error(err))
			emit(shipping.LogEvent(fmt.Sprintf("store %d: order %d: %v", storeID, summary.ID, err)))
			continue
		}
		synced++
	}
	emit(shipping.LogEvent(fmt.Sprintf("store %d: %d orders synchronized, %d failed", storeID, synced, failed)))
}

// Stream runs a reconciliation pass and yields its events as they happen.
// The sequence is single use: ranging it again yields nothing. Breaking out
// early cancels the run and waits for it to wind down.
func (r *Reconciler) Stream(ctx context.Context) iter.Seq[shipping.ProgressEvent] {
	var used atomic.Bool
	return func(yield func(shipping.ProgressEvent) bool) {
		if !used.CompareAndSwap(false, true) {
			return
		}
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		events := make(chan shipping.ProgressEvent, 16)
		go func() {
			defer close(events)
			err := r.Run(ctx, func(ev shipping.ProgressEvent) {
				select {
				case events <- ev:
				case <-ctx.Done():
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrReconciliationRunning) {
				r.logger.Warn("Streamed reconciliation failed", zap.Error(err))
			}
		}()

		for ev := range events {
			if !yield(ev) {
				cancel()
				for range events {
				}
				return
			}
		}
	}
}

// RunScheduled is the scheduler entry point. Overlapping with a streamed
// run is not an error.
func (r *Reconciler) RunScheduled(ctx context.Context) error {
	err := r.Run(ctx, func(ev shipping.ProgressEvent) {
		if ev.Kind == shipping.ProgressLog {
			r.logger.Debug(ev.Text)
		}
	})
	if errors.Is(err, ErrReconciliationRunning) {
		return nil
	}
	return err
}
