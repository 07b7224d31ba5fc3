package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/erp/shipping/internal/domain/printing"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultRedisKey is the list holding serialized jobs.
const DefaultRedisKey = "shipping:print_jobs"

// RedisQueue stores jobs as JSON in a Redis list: RPUSH on enqueue, LPOP on
// dequeue. Jobs survive restarts and are shared by every server instance.
type RedisQueue struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewRedisQueue creates a queue on an existing client.
func NewRedisQueue(client *redis.Client, key string, logger *zap.Logger) *RedisQueue {
	if key == "" {
		key = DefaultRedisKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisQueue{client: client, key: key, logger: logger.Named("print_queue")}
}

// Enqueue appends a new pending job.
func (q *RedisQueue) Enqueue(ctx context.Context, payload string) (*printing.PrintJob, error) {
	job, err := printing.NewPrintJob(payload)
	if err != nil {
		return nil, err
	}
	raw, err := encodeJob(job)
	if err != nil {
		return nil, err
	}
	n, err := q.client.RPush(ctx, q.key, raw).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue print job: %w", err)
	}

	q.logger.Debug("print job enqueued", zap.String("job_id", job.ID.String()), zap.Int64("queue_length", n))
	return job, nil
}

// Dequeue pops the oldest job.
func (q *RedisQueue) Dequeue(ctx context.Context) (*printing.PrintJob, error) {
	raw, err := q.client.LPop(ctx, q.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, printing.ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue print job: %w", err)
	}

	job, err := decodeJob(raw)
	if err != nil {
		// The entry is already popped; it cannot be put back in order.
		q.logger.Error("dropping unreadable print job", zap.ByteString("raw", raw), zap.Error(err))
		return nil, err
	}
	job.MarkDelivered()
	return job, nil
}

// Len returns the number of waiting jobs.
func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read print queue length: %w", err)
	}
	return int(n), nil
}

func encodeJob(job *printing.PrintJob) ([]byte, error) {
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to encode print job: %w", err)
	}
	return raw, nil
}

func decodeJob(raw []byte) (*printing.PrintJob, error) {
	var job printing.PrintJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("failed to decode print job: %w", err)
	}
	return &job, nil
}

var _ printing.Queue = (*RedisQueue)(nil)
