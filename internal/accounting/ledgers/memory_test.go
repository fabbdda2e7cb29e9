package ledgers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/pharmaledger/internal/accounting/permissions"
	"github.com/odyssey-erp/pharmaledger/internal/accounting/posting"
	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

type memoryRepo struct {
	mu       sync.Mutex
	nextID   int64
	ledgers  map[int64]Ledger
	groups   map[int64]int64
	postings []posting.Posting
	drafts   map[int64]int
}

func newMemoryRepo(groupIDs ...int64) *memoryRepo {
	r := &memoryRepo{ledgers: make(map[int64]Ledger), groups: make(map[int64]int64), drafts: make(map[int64]int)}
	for _, id := range groupIDs {
		r.groups[id] = 1
	}
	return r
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	saved := make(map[int64]Ledger, len(r.ledgers))
	for k, v := range r.ledgers {
		saved[k] = v
	}
	nextID := r.nextID
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.ledgers, r.nextID = saved, nextID
		return err
	}
	return nil
}

func (r *memoryRepo) WithSnapshot(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.WithTx(ctx, fn)
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) GetLedger(ctx context.Context, tenantID, id int64) (Ledger, error) {
	l, ok := tx.repo.ledgers[id]
	if !ok || l.TenantID != tenantID {
		return Ledger{}, ErrLedgerNotFound
	}
	return l, nil
}

func (tx *memoryTx) GetLedgerForUpdate(ctx context.Context, tenantID, id int64) (Ledger, error) {
	return tx.GetLedger(ctx, tenantID, id)
}

func (tx *memoryTx) ListLedgers(ctx context.Context, tenantID int64, filter ListFilter) ([]Ledger, error) {
	var out []Ledger
	for _, l := range tx.repo.ledgers {
		if l.TenantID != tenantID || (filter.GroupID != 0 && l.GroupID != filter.GroupID) || (filter.ActiveOnly && !l.IsActive) {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memoryTx) NameTaken(ctx context.Context, tenantID int64, nameKey string, excludeID int64) (bool, error) {
	for _, l := range tx.repo.ledgers {
		if l.TenantID == tenantID && l.ID != excludeID && shared.NameKey(l.Name) == nameKey {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) GroupExists(ctx context.Context, tenantID, groupID int64) (bool, error) {
	owner, ok := tx.repo.groups[groupID]
	return ok && owner == tenantID, nil
}

func (tx *memoryTx) InsertLedger(ctx context.Context, l Ledger, nameKey string) (Ledger, error) {
	tx.repo.nextID++
	l.ID = tx.repo.nextID
	l.UpdatedAt = l.CreatedAt
	tx.repo.ledgers[l.ID] = l
	return l, nil
}

func (tx *memoryTx) UpdateLedger(ctx context.Context, l Ledger, nameKey string) error {
	if _, ok := tx.repo.ledgers[l.ID]; !ok {
		return ErrLedgerNotFound
	}
	tx.repo.ledgers[l.ID] = l
	return nil
}

func (tx *memoryTx) DeleteLedger(ctx context.Context, tenantID, id int64) error {
	if _, err := tx.GetLedger(ctx, tenantID, id); err != nil {
		return err
	}
	delete(tx.repo.ledgers, id)
	return nil
}

func (tx *memoryTx) CountVouchers(ctx context.Context, tenantID, ledgerID int64) (int, error) {
	n := tx.repo.drafts[ledgerID]
	for _, p := range tx.repo.postings {
		if p.SideOf(ledgerID) != posting.SideNone {
			n++
		}
	}
	return n, nil
}

func (tx *memoryTx) ListPostings(ctx context.Context, tenantID, ledgerID int64, asOf *time.Time) ([]posting.Posting, error) {
	var out []posting.Posting
	for _, p := range tx.repo.postings {
		if p.SideOf(ledgerID) == posting.SideNone {
			continue
		}
		if asOf != nil && p.Date.After(*asOf) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

type stubAuthz struct {
	denied map[int64]bool
}

func (a stubAuthz) HasPermission(ctx context.Context, actor shared.Actor, groupID int64, action permissions.Action) bool {
	return actor.IsAdmin() || !a.denied[groupID]
}

func (a stubAuthz) Authorize(ctx context.Context, actor shared.Actor, groupID int64, action permissions.Action) error {
	if a.HasPermission(ctx, actor, groupID, action) {
		return nil
	}
	return fmt.Errorf("%w: %s", shared.ErrPermissionDenied, action)
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}
