package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/erp/shipping/internal/domain/printing"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_FIFO(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(nil)

	var ids []string
	for _, p := range []string{"^XA1^XZ", "^XA2^XZ", "^XA3^XZ"} {
		job, err := q.Enqueue(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, printing.JobStatusPending, job.Status)
		ids = append(ids, job.ID.String())
	}
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for i, want := range []string{"^XA1^XZ", "^XA2^XZ", "^XA3^XZ"} {
		job, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, job.Payload)
		assert.Equal(t, ids[i], job.ID.String())
		assert.Equal(t, printing.JobStatusDelivered, job.Status)
	}

	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, printing.ErrQueueEmpty)
}

func TestMemoryQueue_RejectsEmptyPayload(t *testing.T) {
	q := NewMemoryQueue(nil)
	_, err := q.Enqueue(context.Background(), "  ")
	require.Error(t, err)

	n, _ := q.Len(context.Background())
	assert.Zero(t, n)
}

func TestMemoryQueue_ConcurrentProducers(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(nil)

	var wg sync.WaitGroup
	for p := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				_, err := q.Enqueue(ctx, fmt.Sprintf("%d-%d", p, i))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	// Each producer's jobs come out in the order it pushed them.
	next := make(map[string]int)
	for {
		job, err := q.Dequeue(ctx)
		if err != nil {
			assert.ErrorIs(t, err, printing.ErrQueueEmpty)
			break
		}
		var p, i int
		_, err = fmt.Sscanf(job.Payload, "%d-%d", &p, &i)
		require.NoError(t, err)
		key := fmt.Sprint(p)
		assert.Equal(t, next[key], i)
		next[key]++
	}
	assert.Len(t, next, 4)
}

func TestJobCodec(t *testing.T) {
	job, err := printing.NewPrintJob("^XA^FO0,0^GFA,1,1,1,FF^FS^XZ")
	require.NoError(t, err)

	raw, err := encodeJob(job)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"status":"pending"`)

	got, err := decodeJob(raw)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, job.Payload, got.Payload)
	assert.True(t, job.CreatedAt.Equal(got.CreatedAt))

	_, err = decodeJob([]byte("{"))
	assert.Error(t, err)
}

func TestRedisQueue_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()
	q := NewRedisQueue(client, "", nil)

	_, err := q.Enqueue(context.Background(), "^XA^XZ")
	assert.Error(t, err)
	_, err = q.Dequeue(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, printing.ErrQueueEmpty)
}
