package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity replays posted vouchers and compares against stored balances.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskGrantExpiry deactivates group permissions whose effective window closed.
	TaskGrantExpiry = "permissions:expire"
	// TaskIdempotencyCleanup drops idempotency keys past retention.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// LedgerIntegrityPayload narrows a run to specific tenants. Empty means all.
type LedgerIntegrityPayload struct {
	TenantIDs []int64 `json:"tenant_ids,omitempty"`
}

// IdempotencyCleanupPayload overrides the configured retention.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention,omitempty"`
}

// NewLedgerIntegrityTask constructs an integrity replay task.
func NewLedgerIntegrityTask(payload LedgerIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data, asynq.MaxRetry(2), asynq.Timeout(30*time.Minute)), nil
}

// NewGrantExpiryTask constructs a grant expiry sweep.
func NewGrantExpiryTask() *asynq.Task {
	return asynq.NewTask(TaskGrantExpiry, nil, asynq.MaxRetry(3))
}

// NewIdempotencyCleanupTask constructs an idempotency key cleanup.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.MaxRetry(3)), nil
}

func decodePayload(t *asynq.Task, dst any) error {
	if len(t.Payload()) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.Payload(), dst); err != nil {
		return asynq.SkipRetry
	}
	return nil
}
