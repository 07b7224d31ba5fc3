// Package queue provides the print job queue backends.
package queue

import (
	"context"
	"sync"

	"github.com/erp/shipping/internal/domain/printing"
	"go.uber.org/zap"
)

// MemoryQueue keeps jobs in process memory. Jobs are lost on restart.
type MemoryQueue struct {
	mu     sync.Mutex
	jobs   []*printing.PrintJob
	logger *zap.Logger
}

// NewMemoryQueue creates an empty MemoryQueue.
func NewMemoryQueue(logger *zap.Logger) *MemoryQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryQueue{logger: logger.Named("print_queue")}
}

// Enqueue appends a new pending job.
func (q *MemoryQueue) Enqueue(_ context.Context, payload string) (*printing.PrintJob, error) {
	job, err := printing.NewPrintJob(payload)
	if err != nil {
		return nil, err
	}

	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	n := len(q.jobs)
	q.mu.Unlock()

	q.logger.Debug("print job enqueued", zap.String("job_id", job.ID.String()), zap.Int("queue_length", n))
	return job, nil
}

// Dequeue pops the oldest job.
func (q *MemoryQueue) Dequeue(_ context.Context) (*printing.PrintJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return nil, printing.ErrQueueEmpty
	}
	job := q.jobs[0]
	q.jobs[0] = nil
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		q.jobs = nil
	}

	job.MarkDelivered()
	return job, nil
}

// Len returns the number of waiting jobs.
func (q *MemoryQueue) Len(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs), nil
}

var _ printing.Queue = (*MemoryQueue)(nil)
