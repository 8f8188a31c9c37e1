package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Handler processes one job. A returned error schedules a retry.
type Handler func(ctx context.Context, job *Job) error

// Worker polls a queue and runs jobs one at a time
type Worker struct {
	queue        *RedisQueue
	handler      Handler
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewWorker creates a worker
func NewWorker(q *RedisQueue, handler Handler, pollInterval time.Duration, logger *slog.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Worker{queue: q, handler: handler, pollInterval: pollInterval, logger: logger}
}

// Run processes jobs until ctx is cancelled
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("queue worker started", slog.Duration("poll_interval", w.pollInterval))
	defer w.logger.Info("queue worker stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		processed, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("queue poll failed", slog.Any("error", err))
		}
		if processed {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.pollInterval):
		}
	}
}

// RunOnce handles at most one job and reports whether one was found.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	if herr := w.handler(ctx, job); herr != nil {
		err := w.queue.Retry(ctx, job, herr)
		switch {
		case errors.Is(err, ErrDeadLettered):
			w.logger.Error("job gave up after max attempts",
				slog.String("job_id", job.ID),
				slog.Int("attempts", job.Attempts+1),
				slog.Any("error", herr))
		case err != nil:
			return true, err
		default:
			w.logger.Warn("job failed, retry scheduled",
				slog.String("job_id", job.ID),
				slog.Int("attempt", job.Attempts+1),
				slog.Any("error", herr))
		}
		return true, nil
	}

	return true, w.queue.Ack(ctx, job)
}
