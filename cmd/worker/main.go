package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/events"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	client, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)
	services := app.NewServices(
		app.PostgresBackend(pool, cfg),
		reports.NewCache(redisClient, cfg.ReportCacheTTL),
		nil,
		logger,
	)

	relay := events.NewRelay(
		events.NewPGStore(pool),
		events.NewQueueDispatcher(client, jobs.QueueEvents),
		cfg.OutboxRelayBatch,
		logger,
	).WithMaxAttempts(cfg.OutboxMaxAttempts)
	relayJob := jobs.NewOutboxRelayJob(relay, logger, metrics)
	glJob := jobs.NewGLIntegrityJob(services.Periods, services.Journals, logger, metrics)
	inventoryJob := jobs.NewInventoryIntegrityJob(services.Inventory, logger, metrics)
	depreciationJob := jobs.NewDepreciationRunJob(jobs.DepreciationRunConfig{
		Assets:      services.Assets,
		Coordinator: services.Coordinator,
		Periods:     services.Periods,
		Lock:        jobs.NewRunLock(redisClient),
		Logger:      logger,
		Metrics:     metrics,
	})

	handlers := []jobs.TaskHandler{
		{Type: jobs.TaskOutboxRelay, Handler: relayJob.Handle},
		{Type: jobs.TaskGLIntegrity, Handler: glJob.Handle},
		{Type: jobs.TaskInventoryIntegrity, Handler: inventoryJob.Handle},
		{Type: jobs.TaskDepreciationRun, Handler: depreciationJob.Handle},
	}
	bus := app.NewEventBus(logger, services.Reports)
	for _, eventType := range bus.Types() {
		handlers = append(handlers, jobs.TaskHandler{Type: events.TaskPrefix + eventType, Handler: bus.TaskHandler()})
	}

	glTask, err := jobs.NewGLIntegrityTask(0)
	if err != nil {
		logger.Error("build gl integrity task", slog.Any("error", err))
		os.Exit(1)
	}
	inventoryTask, err := jobs.NewInventoryIntegrityTask(0)
	if err != nil {
		logger.Error("build inventory integrity task", slog.Any("error", err))
		os.Exit(1)
	}
	depreciationTask, err := jobs.NewDepreciationRunTask(0, 0)
	if err != nil {
		logger.Error("build depreciation task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers:    handlers,
		Cron: []jobs.CronRegistration{
			{Spec: "@every 10s", Task: jobs.NewOutboxRelayTask(), Options: []asynq.Option{asynq.MaxRetry(0)}},
			{Spec: "15 1 * * *", Task: glTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 1 * * *", Task: inventoryTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 2 28 * *", Task: depreciationTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
