package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/FACorreiaa/sales-manager/cmd/api"
	"github.com/FACorreiaa/sales-manager/pkg/config"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("starting sales manager")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := api.InitDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", "error", err)
		os.Exit(1)
	}
	defer deps.Cleanup()

	if err := run(ctx, deps); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// run starts the HTTP server, the import worker and the scheduler, and stops
// them when ctx is cancelled.
func run(ctx context.Context, deps *api.Dependencies) error {
	logger := deps.Logger

	// Jobs left in flight by a previous crash go back to the ready list
	if n, err := deps.ImportQueue.RecoverInFlight(ctx); err != nil {
		return fmt.Errorf("failed to recover in-flight jobs: %w", err)
	} else if n > 0 {
		logger.Warn("recovered in-flight import jobs", slog.Int("jobs", n))
	}

	if err := deps.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	workerCtx, stopWorker := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		deps.Worker.Run(workerCtx)
	}()

	addr := fmt.Sprintf("%s:%d", deps.Config.Server.Host, deps.Config.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.SetupRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server started", "addr", addr)
		serverErrors <- srv.ListenAndServe()
	}()

	var runErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		srv.Close()
		runErr = errors.Join(runErr, fmt.Errorf("graceful shutdown failed: %w", err))
	}

	// A job cut short rolls back and stays in flight until the next start
	stopWorker()
	wg.Wait()

	select {
	case <-deps.Scheduler.Stop().Done():
	case <-shutdownCtx.Done():
	}

	logger.Info("server stopped gracefully")
	return runErr
}
