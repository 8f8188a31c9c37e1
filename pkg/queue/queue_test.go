package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	ImportID string `json:"import_id"`
	Revision int    `json:"revision"`
}

func newTestQueue(t *testing.T, maxAttempts int) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisQueue(client, Config{Name: "test", RetryDelay: 5 * time.Minute, MaxAttempts: maxAttempts}), mr
}

func TestRedisQueue_EnqueueDequeueAck(t *testing.T) {
	q, _ := newTestQueue(t, 3)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, payload{ImportID: "a", Revision: 1})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, payload{ImportID: "b", Revision: 1})
	require.NoError(t, err)

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	var p payload
	require.NoError(t, job.Decode(&p))
	assert.Equal(t, "a", p.ImportID, "jobs are delivered in enqueue order")

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Ready)
	assert.Equal(t, int64(1), stats.Processing)

	require.NoError(t, q.Ack(ctx, job))
	stats, err = q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Processing)
}

func TestRedisQueue_DequeueEmpty(t *testing.T) {
	q, _ := newTestQueue(t, 3)
	job, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestRedisQueue_RetryAndPromote(t *testing.T) {
	q, _ := newTestQueue(t, 3)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, payload{ImportID: "a"})
	require.NoError(t, err)
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Retry(ctx, job, errors.New("db down")))

	// Not due yet
	n, err := q.PromoteDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = q.PromoteDue(ctx, time.Now().Add(6*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	again, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, job.ID, again.ID)
	assert.Equal(t, 1, again.Attempts)
	assert.Equal(t, "db down", again.LastError)
}

func TestRedisQueue_DeadLetter(t *testing.T) {
	q, _ := newTestQueue(t, 1)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, payload{ImportID: "a"})
	require.NoError(t, err)
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)

	assert.ErrorIs(t, q.Retry(ctx, job, errors.New("boom")), ErrDeadLettered)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Dead)
	assert.Equal(t, int64(0), stats.Delayed)
	assert.Equal(t, int64(0), stats.Processing)
}

func TestRedisQueue_RecoverInFlight(t *testing.T) {
	q, _ := newTestQueue(t, 3)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := q.Enqueue(ctx, payload{Revision: i})
		require.NoError(t, err)
		_, err = q.Dequeue(ctx)
		require.NoError(t, err)
	}

	n, err := q.RecoverInFlight(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Ready)
	assert.Equal(t, int64(0), stats.Processing)
}

func TestRedisQueue_UnreadableJob(t *testing.T) {
	q, mr := newTestQueue(t, 3)
	_, err := mr.Lpush("test:ready", "not json")
	require.NoError(t, err)

	_, err = q.Dequeue(context.Background())
	assert.Error(t, err)

	stats, err := q.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Dead)
	assert.Equal(t, int64(0), stats.Processing)
}

func TestWorker_RunOnce(t *testing.T) {
	q, _ := newTestQueue(t, 2)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var calls int
	w := NewWorker(q, func(_ context.Context, job *Job) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	}, time.Millisecond, logger)

	processed, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.False(t, processed)

	_, err = q.Enqueue(ctx, payload{ImportID: "a"})
	require.NoError(t, err)

	processed, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	_, err = q.PromoteDue(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)

	processed, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, 2, calls)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, *stats)
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	q, _ := newTestQueue(t, 2)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		NewWorker(q, func(context.Context, *Job) error { return nil }, time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil))).Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
