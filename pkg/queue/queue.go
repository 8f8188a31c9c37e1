// Package queue is an at-least-once job queue on Redis. Jobs move from a ready
// list to a processing list while a worker holds them, and failed jobs wait in
// a delayed sorted set until they are due again.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/FACorreiaa/sales-manager/pkg/observability"
)

// ErrDeadLettered is returned by Retry once a job has used all its attempts.
var ErrDeadLettered = errors.New("job exceeded max attempts")

// Job is one unit of work
type Job struct {
	ID         string          `json:"id"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	LastError  string          `json:"last_error,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`

	raw string // Encoded form held in the processing list
}

// Decode unmarshals the payload into v
func (j *Job) Decode(v any) error {
	return json.Unmarshal(j.Payload, v)
}

// Config tunes retries
type Config struct {
	Name        string
	RetryDelay  time.Duration
	MaxAttempts int
}

// RedisQueue implements the queue on Redis lists and a sorted set.
type RedisQueue struct {
	client      redis.UniversalClient
	ready       string
	processing  string
	delayed     string
	dead        string
	retryDelay  time.Duration
	maxAttempts int
}

// NewRedisQueue creates a queue whose keys are prefixed by cfg.Name
func NewRedisQueue(client redis.UniversalClient, cfg Config) *RedisQueue {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &RedisQueue{
		client:      client,
		ready:       cfg.Name + ":ready",
		processing:  cfg.Name + ":processing",
		delayed:     cfg.Name + ":delayed",
		dead:        cfg.Name + ":dead",
		retryDelay:  cfg.RetryDelay,
		maxAttempts: cfg.MaxAttempts,
	}
}

// Enqueue adds a job carrying payload to the ready list
func (q *RedisQueue) Enqueue(ctx context.Context, payload any) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}

	job := &Job{ID: uuid.NewString(), Payload: data, EnqueuedAt: time.Now().UTC()}
	raw, err := encode(job)
	if err != nil {
		return nil, err
	}
	if err := q.client.LPush(ctx, q.ready, raw).Err(); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}
	observability.QueueJobsTotal.WithLabelValues("enqueued").Inc()
	return job, nil
}

// Dequeue moves the oldest ready job to the processing list. It returns
// nil, nil when nothing is ready.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Job, error) {
	raw, err := q.client.LMove(ctx, q.ready, q.processing, "RIGHT", "LEFT").Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}

	job, err := decode(raw)
	if err != nil {
		// Unreadable jobs can never succeed
		q.client.LRem(ctx, q.processing, 1, raw)
		q.client.LPush(ctx, q.dead, raw)
		return nil, err
	}
	return job, nil
}

// Ack removes a finished job
func (q *RedisQueue) Ack(ctx context.Context, job *Job) error {
	if err := q.client.LRem(ctx, q.processing, 1, job.raw).Err(); err != nil {
		return fmt.Errorf("failed to ack job %s: %w", job.ID, err)
	}
	observability.QueueJobsTotal.WithLabelValues("acked").Inc()
	return nil
}

// Retry schedules the job again after the retry delay, or moves it to the
// dead list and returns ErrDeadLettered when attempts are used up.
func (q *RedisQueue) Retry(ctx context.Context, job *Job, cause error) error {
	next := *job
	next.Attempts++
	if cause != nil {
		next.LastError = cause.Error()
	}
	raw, err := encode(&next)
	if err != nil {
		return err
	}

	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.processing, 1, job.raw)
	dead := next.Attempts >= q.maxAttempts
	if dead {
		pipe.LPush(ctx, q.dead, raw)
	} else {
		due := time.Now().Add(q.retryDelay)
		pipe.ZAdd(ctx, q.delayed, redis.Z{Score: float64(due.Unix()), Member: raw})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to retry job %s: %w", job.ID, err)
	}

	if dead {
		observability.QueueJobsTotal.WithLabelValues("dead").Inc()
		return ErrDeadLettered
	}
	observability.QueueJobsTotal.WithLabelValues("retried").Inc()
	return nil
}

// PromoteDue moves delayed jobs whose time has come back to the ready list.
func (q *RedisQueue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	due, err := q.client.ZRangeByScore(ctx, q.delayed, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read delayed jobs: %w", err)
	}

	promoted := 0
	for _, raw := range due {
		// Only the caller that removes the member promotes it
		removed, err := q.client.ZRem(ctx, q.delayed, raw).Result()
		if err != nil {
			return promoted, fmt.Errorf("failed to promote job: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.ready, raw).Err(); err != nil {
			return promoted, fmt.Errorf("failed to promote job: %w", err)
		}
		promoted++
	}
	return promoted, nil
}

// RecoverInFlight returns jobs left in the processing list by a crashed
// worker to the ready list. Call it before any worker starts.
func (q *RedisQueue) RecoverInFlight(ctx context.Context) (int, error) {
	recovered := 0
	for {
		err := q.client.LMove(ctx, q.processing, q.ready, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return recovered, nil
		}
		if err != nil {
			return recovered, fmt.Errorf("failed to recover jobs: %w", err)
		}
		recovered++
	}
}

// Stats are the queue lengths
type Stats struct {
	Ready      int64 `json:"ready"`
	Processing int64 `json:"processing"`
	Delayed    int64 `json:"delayed"`
	Dead       int64 `json:"dead"`
}

// Stats returns the current queue lengths
func (q *RedisQueue) Stats(ctx context.Context) (*Stats, error) {
	pipe := q.client.Pipeline()
	ready := pipe.LLen(ctx, q.ready)
	processing := pipe.LLen(ctx, q.processing)
	delayed := pipe.ZCard(ctx, q.delayed)
	dead := pipe.LLen(ctx, q.dead)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}
	return &Stats{Ready: ready.Val(), Processing: processing.Val(), Delayed: delayed.Val(), Dead: dead.Val()}, nil
}

// Ping checks the Redis connection
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func encode(job *Job) (string, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}
	job.raw = string(data)
	return job.raw, nil
}

func decode(raw string) (*Job, error) {
	job := &Job{}
	if err := json.Unmarshal([]byte(raw), job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	job.raw = raw
	return job, nil
}
