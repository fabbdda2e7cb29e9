package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/pharmaledger/internal/jobs"
)

// Expirer deactivates grants whose effective window has closed.
type Expirer interface {
	ExpireGrants(ctx context.Context) (int, error)
}

// GrantExpiryJob runs the permission expiry sweep.
type GrantExpiryJob struct {
	Expirer Expirer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle executes the sweep.
func (j *GrantExpiryJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Expirer == nil {
		return errors.New("grant expiry: handler not configured")
	}
	tracker := j.Metrics.Track(TaskGrantExpiry)
	n, err := j.Expirer.ExpireGrants(ctx)
	if err != nil {
		return tracker.End(fmt.Errorf("grant expiry: %w", err))
	}
	j.Metrics.AddSwept(TaskGrantExpiry, int64(n))
	if n > 0 {
		jobLogger(j.Logger, TaskGrantExpiry).Info("expired grants", slog.Int("count", n))
	}
	return tracker.End(nil)
}

// KeyStore removes processed idempotency keys.
type KeyStore interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob trims idempotency keys older than Retention.
type IdempotencyCleanupJob struct {
	Store     KeyStore
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// Handle executes the cleanup.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}
	retention := j.Retention
	if payload.Retention > 0 {
		retention = payload.Retention
	}
	if retention <= 0 {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	n, err := j.Store.Cleanup(ctx, retention)
	if err != nil {
		return tracker.End(fmt.Errorf("idempotency cleanup: %w", err))
	}
	j.Metrics.AddSwept(TaskIdempotencyCleanup, n)
	jobLogger(j.Logger, TaskIdempotencyCleanup).Info("removed idempotency keys",
		slog.Int64("count", n), slog.Duration("retention", retention))
	return tracker.End(nil)
}
