// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Promoter moves delayed queue jobs whose retry time has come back to the ready list.
type Promoter interface {
	PromoteDue(ctx context.Context, now time.Time) (int, error)
}

// Requeuer re-enqueues import records whose job was lost.
type Requeuer interface {
	RequeueStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// Config sets the job schedules
type Config struct {
	PromoteSpec string        // Defaults to every 30 seconds
	RequeueSpec string        // Defaults to every 10 minutes
	StaleAfter  time.Duration // Pending records older than this are requeued
	BatchSize   int
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron     *cron.Cron
	promoter Promoter
	requeuer Requeuer
	cfg      Config
	logger   *slog.Logger
}

// NewScheduler creates a new job scheduler.
func NewScheduler(promoter Promoter, requeuer Requeuer, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.PromoteSpec == "" {
		cfg.PromoteSpec = "@every 30s"
	}
	if cfg.RequeueSpec == "" {
		cfg.RequeueSpec = "@every 10m"
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 30 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}

	c := cron.New(
		cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	return &Scheduler{
		cron:     c,
		promoter: promoter,
		requeuer: requeuer,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.PromoteSpec, s.promoteDelayed); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.cfg.RequeueSpec, s.requeueStale); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow runs every job once, synchronously.
func (s *Scheduler) RunNow() {
	s.promoteDelayed()
	s.requeueStale()
}

func (s *Scheduler) promoteDelayed() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.promoter.PromoteDue(ctx, time.Now())
	if err != nil {
		s.logger.Error("failed to promote delayed jobs", slog.Any("error", err))
		return
	}
	if n > 0 {
		s.logger.Info("delayed import jobs promoted", slog.Int("jobs", n))
	}
}

func (s *Scheduler) requeueStale() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	n, err := s.requeuer.RequeueStale(ctx, s.cfg.StaleAfter, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("failed to requeue stale imports", slog.Any("error", err))
		return
	}
	if n > 0 {
		s.logger.Warn("stale imports requeued", slog.Int("imports", n))
	}
}
