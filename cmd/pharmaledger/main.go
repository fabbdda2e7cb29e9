package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/pharmaledger/internal/accounting/groups"
	"github.com/odyssey-erp/pharmaledger/internal/accounting/ledgers"
	"github.com/odyssey-erp/pharmaledger/internal/accounting/permissions"
	"github.com/odyssey-erp/pharmaledger/internal/accounting/reports"
	"github.com/odyssey-erp/pharmaledger/internal/accounting/vouchers"
	"github.com/odyssey-erp/pharmaledger/internal/app"
	"github.com/odyssey-erp/pharmaledger/internal/observability"
	"github.com/odyssey-erp/pharmaledger/internal/platform/cache"
	"github.com/odyssey-erp/pharmaledger/internal/platform/db"
	"github.com/odyssey-erp/pharmaledger/internal/shared"
	"github.com/odyssey-erp/pharmaledger/internal/users"
	"github.com/odyssey-erp/pharmaledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
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

	auditLogger := shared.NewAuditLogger(pool)
	metrics := observability.NewMetrics()

	groupRepo := groups.NewRepository(pool)
	groupReader := groups.NewReader(groupRepo)

	permissionRepo := permissions.NewRepository(pool)
	grantCache := permissions.NewCache(redisClient, cfg.PermissionCacheTTL)
	evaluator := permissions.NewEvaluator(permissionRepo, groupReader, grantCache, logger)
	userRepo := users.NewRepository(pool)
	permissionService := permissions.NewService(permissionRepo, groupReader, userRepo, grantCache, auditLogger)

	groupService := groups.NewService(groupRepo, evaluator, auditLogger)
	groupService.WithGrantCache(grantCache)

	ledgerService := ledgers.NewService(ledgers.NewRepository(pool), evaluator, auditLogger)

	voucherService := vouchers.NewService(vouchers.NewRepository(pool), evaluator, auditLogger, logger)
	voucherService.WithRecorder(metrics)

	reportService := reports.NewService(reports.NewRepository(pool), evaluator, reports.Config{
		MaxRange:  cfg.ReportMaxRange,
		BatchSize: cfg.ReportBatchSize,
	}, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		ActorResolver:      users.NewService(userRepo),
		Evaluator:          evaluator,
		Metrics:            metrics,
		GroupsHandler:      groups.NewHandler(logger, groupService, evaluator),
		PermissionsHandler: permissions.NewHandler(logger, permissionService, evaluator),
		LedgersHandler:     ledgers.NewHandler(logger, ledgerService),
		VouchersHandler:    vouchers.NewHandler(logger, voucherService),
		ReportsHandler:     reports.NewHandler(logger, reportService),
		JobHandler:         jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
