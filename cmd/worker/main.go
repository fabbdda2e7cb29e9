package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/pharmaledger/internal/accounting/groups"
	"github.com/odyssey-erp/pharmaledger/internal/accounting/permissions"
	"github.com/odyssey-erp/pharmaledger/internal/accounting/reports"
	"github.com/odyssey-erp/pharmaledger/internal/app"
	jobmetrics "github.com/odyssey-erp/pharmaledger/internal/jobs"
	"github.com/odyssey-erp/pharmaledger/internal/platform/cache"
	"github.com/odyssey-erp/pharmaledger/internal/platform/db"
	"github.com/odyssey-erp/pharmaledger/internal/shared"
	"github.com/odyssey-erp/pharmaledger/internal/users"
	"github.com/odyssey-erp/pharmaledger/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, 0)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)

	groupReader := groups.NewReader(groups.NewRepository(pool))
	permissionRepo := permissions.NewRepository(pool)
	grantCache := permissions.NewCache(redisClient, cfg.PermissionCacheTTL)
	permissionService := permissions.NewService(permissionRepo, groupReader, users.NewRepository(pool), grantCache, shared.NewAuditLogger(pool))
	evaluator := permissions.NewEvaluator(permissionRepo, groupReader, grantCache, logger)

	reportService := reports.NewService(reports.NewRepository(pool), evaluator, reports.Config{
		MaxRange:  cfg.ReportMaxRange,
		BatchSize: cfg.ReportBatchSize,
	}, logger)

	integrityJob := jobs.NewLedgerIntegrityJob(reportService, logger, metrics)
	expiryJob := &jobs.GrantExpiryJob{Expirer: permissionService, Logger: logger, Metrics: metrics}
	cleanupJob := &jobs.IdempotencyCleanupJob{
		Store:     shared.NewIdempotencyStore(pool),
		Retention: cfg.IdempotencyRetention,
		Logger:    logger,
		Metrics:   metrics,
	}

	integrityTask, err := jobs.NewLedgerIntegrityTask(jobs.LedgerIntegrityPayload{})
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(jobs.IdempotencyCleanupPayload{})
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerIntegrity, Handler: integrityJob.Handle},
			{Type: jobs.TaskGrantExpiry, Handler: expiryJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.IntegrityCron, Task: integrityTask},
			{Spec: cfg.GrantExpiryCron, Task: jobs.NewGrantExpiryTask()},
			{Spec: cfg.IdempotencyCron, Task: cleanupTask},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
