package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	importhandler "github.com/FACorreiaa/sales-manager/internal/domain/import/handler"
	importrepo "github.com/FACorreiaa/sales-manager/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/sales-manager/internal/domain/import/service"
	notificationhandler "github.com/FACorreiaa/sales-manager/internal/domain/notification/handler"
	notificationrepo "github.com/FACorreiaa/sales-manager/internal/domain/notification/repository"
	notificationservice "github.com/FACorreiaa/sales-manager/internal/domain/notification/service"
	saleshandler "github.com/FACorreiaa/sales-manager/internal/domain/sales/handler"
	salesrepo "github.com/FACorreiaa/sales-manager/internal/domain/sales/repository"
	salesservice "github.com/FACorreiaa/sales-manager/internal/domain/sales/service"

	"github.com/FACorreiaa/sales-manager/pkg/config"
	"github.com/FACorreiaa/sales-manager/pkg/cron"
	"github.com/FACorreiaa/sales-manager/pkg/db"
	"github.com/FACorreiaa/sales-manager/pkg/middleware"
	"github.com/FACorreiaa/sales-manager/pkg/queue"
	"github.com/FACorreiaa/sales-manager/pkg/storage"
	"github.com/FACorreiaa/sales-manager/pkg/webhook"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Redis  *redis.Client
	Logger *slog.Logger

	// Infrastructure
	Tx          db.TxRunner
	FileStorage storage.Storage
	ImportQueue *queue.RedisQueue
	Tokens      *middleware.TokenManager

	// Repositories
	SalesRepo        salesrepo.SalesRepository
	ImportRepo       importrepo.ImportRepository
	NotificationRepo notificationrepo.NotificationRepository

	// Services
	SalesService        *salesservice.Service
	NotificationService *notificationservice.Service
	ImportService       *importservice.ImportService
	Dispatcher          *importservice.Dispatcher

	// Background
	Worker    *queue.Worker
	Scheduler *cron.Scheduler

	// Handlers
	SalesHandler        *saleshandler.SalesHandler
	ImportHandler       *importhandler.ImportHandler
	NotificationHandler *notificationhandler.NotificationHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	if err := deps.initInfrastructure(ctx); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init infrastructure: %w", err)
	}

	deps.initRepositories()
	deps.initServices()
	deps.initHandlers()

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase(ctx context.Context) error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if err := d.DB.RunMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initInfrastructure connects Redis and opens the blob storage
func (d *Dependencies) initInfrastructure(ctx context.Context) error {
	d.Tx = db.NewTxRunner(d.DB.Pool)

	d.Redis = redis.NewClient(&redis.Options{
		Addr:     d.Config.Redis.Addr,
		Password: d.Config.Redis.Password,
		DB:       d.Config.Redis.DB,
	})
	d.ImportQueue = queue.NewRedisQueue(d.Redis, queue.Config{
		Name:        d.Config.Import.QueueName,
		RetryDelay:  d.Config.Import.RetryDelay,
		MaxAttempts: d.Config.Import.MaxAttempts,
	})
	if err := d.ImportQueue.Ping(ctx); err != nil {
		return fmt.Errorf("failed to reach redis: %w", err)
	}

	fileStorage, err := storage.New(&storage.Config{LocalPath: d.Config.Storage.LocalPath})
	if err != nil {
		return fmt.Errorf("failed to init file storage: %w", err)
	}
	d.FileStorage = fileStorage

	d.Tokens = middleware.NewTokenManager(d.Config.Auth.JWTSecret, time.Hour)

	d.Logger.Info("infrastructure initialized",
		slog.String("redis", d.Config.Redis.Addr),
		slog.String("storage", d.Config.Storage.LocalPath))
	return nil
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() {
	d.SalesRepo = salesrepo.NewPostgresSalesRepository(d.DB.Pool)
	d.ImportRepo = importrepo.NewPostgresImportRepository(d.DB.Pool)
	d.NotificationRepo = notificationrepo.NewPostgresNotificationRepository(d.DB.Pool)

	d.Logger.Info("repositories initialized")
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() {
	d.SalesService = salesservice.NewService(d.SalesRepo, d.Tx, d.Logger)

	email := notificationservice.NewResendSender(d.Config.Notification.ResendAPIKey, d.Config.Notification.FromAddress)
	if email == nil {
		d.Logger.Warn("RESEND_API_KEY not set; notifications are stored but not emailed")
	}
	d.NotificationService = notificationservice.NewService(d.NotificationRepo, email, d.Logger)
	if hook := webhook.New(d.Config.Notification.WebhookURL, d.Config.Notification.WebhookSecret, d.Logger); hook != nil {
		d.NotificationService.WithWebhook(hook)
	}

	d.Dispatcher = importservice.NewDispatcher(
		d.ImportRepo,
		importservice.NewQueueEnqueuer(d.ImportQueue),
		d.NotificationService,
		d.Logger,
	)
	d.ImportService = importservice.NewImportService(
		d.ImportRepo,
		d.SalesService,
		d.FileStorage,
		d.Tx,
		d.Dispatcher,
		importservice.Config{
			AllowedExtensions: d.Config.Import.AllowedExtensions,
			Currency:          d.Config.Import.Currency,
		},
		d.Logger,
	)

	d.Worker = queue.NewWorker(d.ImportQueue, d.ImportService.HandleJob, d.Config.Import.PollInterval, d.Logger)
	d.Scheduler = cron.NewScheduler(d.ImportQueue, d.ImportService, cron.Config{
		StaleAfter: d.Config.Import.StaleAfter,
	}, d.Logger)

	d.Logger.Info("services initialized")
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() {
	d.SalesHandler = saleshandler.NewSalesHandler(d.SalesService, d.Logger)
	d.ImportHandler = importhandler.NewImportHandler(d.ImportService, d.Config.Server.MaxUploadBytes, d.Logger)
	d.NotificationHandler = notificationhandler.NewNotificationHandler(d.NotificationService, d.Logger)

	d.Logger.Info("handlers initialized")
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Warn("failed to close redis", slog.Any("error", err))
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
