package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/pharmaledger/internal/accounting/reports"
	jobmetrics "github.com/odyssey-erp/pharmaledger/internal/jobs"
)

// Verifier replays ledgers of a tenant against their stored balance projection.
type Verifier interface {
	Tenants(ctx context.Context) ([]int64, error)
	VerifyBalances(ctx context.Context, tenantID int64) ([]reports.Mismatch, error)
}

// LedgerIntegrityJob checks every tenant's stored balances against replayed history.
type LedgerIntegrityJob struct {
	Verifier    Verifier
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Concurrency int
}

// NewLedgerIntegrityJob initialises the integrity handler.
func NewLedgerIntegrityJob(verifier Verifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{Verifier: verifier, Logger: logger, Metrics: metrics, Concurrency: 4}
}

// IntegrityResult summarises one run.
type IntegrityResult struct {
	Tenants    int
	Mismatches []reports.Mismatch
}

// Handle executes the integrity replay for an asynq task.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Verifier == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload LedgerIntegrityPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}
	_, err := j.Run(ctx, payload.TenantIDs)
	return err
}

// Run verifies the supplied tenants, or all of them when none are given.
func (j *LedgerIntegrityJob) Run(ctx context.Context, tenantIDs []int64) (IntegrityResult, error) {
	start := time.Now()
	tracker := j.Metrics.Track(TaskLedgerIntegrity)
	logger := jobLogger(j.Logger, TaskLedgerIntegrity)

	if len(tenantIDs) == 0 {
		all, err := j.Verifier.Tenants(ctx)
		if err != nil {
			return IntegrityResult{}, tracker.End(fmt.Errorf("ledger integrity: list tenants: %w", err))
		}
		tenantIDs = all
	}

	var (
		mu     sync.Mutex
		result = IntegrityResult{Tenants: len(tenantIDs)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(j.Concurrency, 1))
	for _, tenantID := range tenantIDs {
		tenantID := tenantID
		g.Go(func() error {
			mismatches, err := j.Verifier.VerifyBalances(gctx, tenantID)
			if err != nil {
				return fmt.Errorf("ledger integrity: tenant %d: %w", tenantID, err)
			}
			j.Metrics.AddDrift(tenantID, len(mismatches))
			mu.Lock()
			result.Mismatches = append(result.Mismatches, mismatches...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("integrity replay failed", slog.Any("error", err))
		return result, tracker.End(err)
	}

	logger.Info("completed integrity replay",
		slog.Int("tenants", result.Tenants),
		slog.Int("mismatches", len(result.Mismatches)),
		slog.Duration("duration", time.Since(start)),
	)
	return result, tracker.End(nil)
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}
