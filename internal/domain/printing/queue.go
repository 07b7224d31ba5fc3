package printing

import (
	"context"

	"github.com/erp/shipping/internal/domain/shared"
)

// ErrQueueEmpty is returned by Dequeue when no job is waiting.
var ErrQueueEmpty = shared.NewDomainError("QUEUE_EMPTY", "No print job waiting")

// Queue is a strict FIFO of print jobs. Dequeue removes the job it returns.
type Queue interface {
	Enqueue(ctx context.Context, payload string) (*PrintJob, error)
	Dequeue(ctx context.Context) (*PrintJob, error)
	Len(ctx context.Context) (int, error)
}
