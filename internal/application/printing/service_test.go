package printing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/shipping/internal/application/labeling"
	"github.com/erp/shipping/internal/application/printing"
	domain "github.com/erp/shipping/internal/domain/printing"
	"github.com/erp/shipping/internal/infrastructure/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// Mock Implementations
// =============================================================================

type MockBatchSource struct {
	mock.Mock
}

func (m *MockBatchSource) BuildBatch(ctx context.Context, orderNumbers []string) (*labeling.BatchResult, error) {
	args := m.Called(ctx, orderNumbers)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*labeling.BatchResult), args.Error(1)
}

func (m *MockBatchSource) MarkPrinted(ctx context.Context, orderNumbers ...string) error {
	args := m.Called(ctx, orderNumbers)
	return args.Error(0)
}

// failingQueue rejects every job.
type failingQueue struct{ err error }

func (q failingQueue) Enqueue(context.Context, string) (*domain.PrintJob, error) { return nil, q.err }
func (q failingQueue) Dequeue(context.Context) (*domain.PrintJob, error)        { return nil, domain.ErrQueueEmpty }
func (q failingQueue) Len(context.Context) (int, error)                         { return 0, nil }

type MockEnqueueMetrics struct {
	mock.Mock
}

func (m *MockEnqueueMetrics) JobsEnqueued(ctx context.Context, backend string, n int) {
	m.Called(ctx, backend, n)
}

func newService(batches printing.BatchSource) *printing.PrintQueueService {
	return printing.NewPrintQueueService(queue.NewMemoryQueue(zap.NewNop()), "memory", batches, zap.NewNop())
}

// =============================================================================
// Tests
// =============================================================================

func TestPrintQueueService_FIFO(t *testing.T) {
	ctx := context.Background()
	metrics := new(MockEnqueueMetrics)
	metrics.On("JobsEnqueued", mock.Anything, "memory", 1).Return().Times(3)
	svc := newService(nil).WithMetrics(metrics)

	var ids []string
	for _, p := range []string{"^XA1^XZ", "^XA2^XZ", "^XA3^XZ"} {
		job, err := svc.Enqueue(ctx, printing.EnqueueRequest{Payload: p})
		require.NoError(t, err)
		assert.Equal(t, "pending", job.Status)
		ids = append(ids, job.ID)
	}

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &printing.QueueStatsResponse{Backend: "memory", Pending: 3}, stats)

	for i, want := range []string{"^XA1^XZ", "^XA2^XZ", "^XA3^XZ"} {
		job, err := svc.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, job.Payload)
		assert.Equal(t, ids[i], job.ID)
		assert.Equal(t, "delivered", job.Status)
	}

	_, err = svc.Next(ctx)
	assert.ErrorIs(t, err, domain.ErrQueueEmpty)
	metrics.AssertExpectations(t)
}

func TestPrintQueueService_EnqueueOrders(t *testing.T) {
	ctx := context.Background()

	t.Run("uses the batch zpl", func(t *testing.T) {
		batches := new(MockBatchSource)
		batches.On("BuildBatch", mock.Anything, []string{"MLB-1", "MLB-2"}).Return(&labeling.BatchResult{
			ZPL:      "^XA^XZ",
			Included: []string{"MLB-1"},
			Skipped:  []string{"MLB-2"},
		}, nil)
		batches.On("MarkPrinted", mock.Anything, []string{"MLB-1"}).Return(nil).Once()
		svc := newService(batches)

		job, err := svc.Enqueue(ctx, printing.EnqueueRequest{OrderNumbers: []string{"MLB-1", "MLB-2"}})
		require.NoError(t, err)
		assert.Equal(t, "^XA^XZ", job.Payload)
		assert.Equal(t, []string{"MLB-1"}, job.Included)
		assert.Equal(t, []string{"MLB-2"}, job.Skipped)
		batches.AssertExpectations(t)
	})

	t.Run("queue failure counts no prints", func(t *testing.T) {
		batches := new(MockBatchSource)
		batches.On("BuildBatch", mock.Anything, []string{"MLB-1"}).
			Return(&labeling.BatchResult{ZPL: "^XA^XZ", Included: []string{"MLB-1"}, Skipped: []string{}}, nil)
		svc := printing.NewPrintQueueService(failingQueue{err: errors.New("redis down")}, "redis", batches, zap.NewNop())

		_, err := svc.Enqueue(ctx, printing.EnqueueRequest{OrderNumbers: []string{"MLB-1"}})
		require.Error(t, err)
		batches.AssertNotCalled(t, "MarkPrinted", mock.Anything, mock.Anything)
	})

	t.Run("count failure keeps the job", func(t *testing.T) {
		batches := new(MockBatchSource)
		batches.On("BuildBatch", mock.Anything, []string{"MLB-1"}).
			Return(&labeling.BatchResult{ZPL: "^XA^XZ", Included: []string{"MLB-1"}, Skipped: []string{}}, nil)
		batches.On("MarkPrinted", mock.Anything, []string{"MLB-1"}).Return(errors.New("db locked"))
		svc := newService(batches)

		job, err := svc.Enqueue(ctx, printing.EnqueueRequest{OrderNumbers: []string{"MLB-1"}})
		require.NoError(t, err)
		assert.Equal(t, "^XA^XZ", job.Payload)

		stats, err := svc.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Pending)
	})

	t.Run("nothing printable", func(t *testing.T) {
		batches := new(MockBatchSource)
		batches.On("BuildBatch", mock.Anything, []string{"MLB-9"}).
			Return(&labeling.BatchResult{Included: []string{}, Skipped: []string{"MLB-9"}}, nil)
		svc := newService(batches)

		_, err := svc.Enqueue(ctx, printing.EnqueueRequest{OrderNumbers: []string{"MLB-9"}})
		assert.ErrorIs(t, err, printing.ErrNothingToPrint)
		batches.AssertNotCalled(t, "MarkPrinted", mock.Anything, mock.Anything)

		stats, err := svc.Stats(ctx)
		require.NoError(t, err)
		assert.Zero(t, stats.Pending)
	})

	t.Run("empty request", func(t *testing.T) {
		_, err := newService(nil).Enqueue(ctx, printing.EnqueueRequest{})
		assert.Error(t, err)
	})
}
