// Package printing is the application service of the print spool: it queues
// ZPL jobs for printer agents and hands them out in FIFO order.
package printing

import (
	"context"
	"errors"
	"strings"

	"github.com/erp/shipping/internal/application/labeling"
	"github.com/erp/shipping/internal/domain/printing"
	"github.com/erp/shipping/internal/domain/shared"
	"go.uber.org/zap"
)

// ErrNothingToPrint is returned when none of the requested orders has a
// ZPL label yet.
var ErrNothingToPrint = shared.NewDomainError("NOTHING_TO_PRINT", "None of the orders has a printable label")

// BatchSource builds the concatenated ZPL of a set of orders and counts
// their prints once the job is queued.
type BatchSource interface {
	BuildBatch(ctx context.Context, orderNumbers []string) (*labeling.BatchResult, error)
	MarkPrinted(ctx context.Context, orderNumbers ...string) error
}

// EnqueueMetrics counts queued jobs.
type EnqueueMetrics interface {
	JobsEnqueued(ctx context.Context, backend string, n int)
}

// PrintQueueService handles print queue operations
type PrintQueueService struct {
	queue   printing.Queue
	backend string
	batches BatchSource
	metrics EnqueueMetrics
	logger  *zap.Logger
}

// NewPrintQueueService creates a new PrintQueueService. backend names the
// queue implementation in stats and metrics.
func NewPrintQueueService(queue printing.Queue, backend string, batches BatchSource, logger *zap.Logger) *PrintQueueService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrintQueueService{
		queue:   queue,
		backend: backend,
		batches: batches,
		logger:  logger,
	}
}

// WithMetrics sets the enqueue counter
func (s *PrintQueueService) WithMetrics(m EnqueueMetrics) *PrintQueueService {
	s.metrics = m
	return s
}

// Enqueue queues one print job.
func (s *PrintQueueService) Enqueue(ctx context.Context, req EnqueueRequest) (*PrintJobResponse, error) {
	payload := req.Payload
	var batch *labeling.BatchResult

	if strings.TrimSpace(payload) == "" && len(req.OrderNumbers) > 0 {
		if s.batches == nil {
			return nil, shared.NewDomainError("INVALID_INPUT", "Printing by order number is not available")
		}
		var err error
		if batch, err = s.batches.BuildBatch(ctx, req.OrderNumbers); err != nil {
			return nil, err
		}
		if len(batch.Included) == 0 {
			return nil, ErrNothingToPrint
		}
		payload = batch.ZPL
	}

	job, err := s.queue.Enqueue(ctx, payload)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.JobsEnqueued(ctx, s.backend, 1)
	}
	if batch != nil {
		// The job is already queued; a failed count is logged, not returned.
		if err := s.batches.MarkPrinted(ctx, batch.Included...); err != nil {
			s.logger.Error("Failed to count batch prints",
				zap.String("job_id", job.ID.String()),
				zap.Strings("order_numbers", batch.Included),
				zap.Error(err))
		}
	}

	s.logger.Info("Print job queued",
		zap.String("job_id", job.ID.String()),
		zap.String("backend", s.backend),
		zap.Int("size", len(payload)))

	resp := toJobResponse(job)
	if batch != nil {
		resp.Included = batch.Included
		resp.Skipped = batch.Skipped
	}
	return resp, nil
}

// Next pops the oldest job. It returns printing.ErrQueueEmpty when nothing
// is waiting.
func (s *PrintQueueService) Next(ctx context.Context) (*PrintJobResponse, error) {
	job, err := s.queue.Dequeue(ctx)
	if err != nil {
		if !errors.Is(err, printing.ErrQueueEmpty) {
			s.logger.Error("Failed to dequeue print job", zap.Error(err))
		}
		return nil, err
	}
	s.logger.Info("Print job delivered", zap.String("job_id", job.ID.String()))
	return toJobResponse(job), nil
}

// Stats reports the queue length
func (s *PrintQueueService) Stats(ctx context.Context) (*QueueStatsResponse, error) {
	n, err := s.queue.Len(ctx)
	if err != nil {
		return nil, err
	}
	return &QueueStatsResponse{Backend: s.backend, Pending: n}, nil
}
