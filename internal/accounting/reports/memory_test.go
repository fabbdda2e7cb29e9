package reports

import (
	"context"
	"sort"
	"sync"

	"github.com/odyssey-erp/pharmaledger/internal/accounting/permissions"
	"github.com/odyssey-erp/pharmaledger/internal/accounting/posting"
	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

type memoryRepo struct {
	mu        sync.Mutex
	ledgers   []LedgerRow
	postings  []posting.Posting
	snapshots int
	batches   int
	// entered is signalled and gate awaited before a snapshot runs.
	entered chan struct{}
	gate    chan struct{}
}

func (r *memoryRepo) WithSnapshot(ctx context.Context, fn func(context.Context, Reader) error) error {
	r.mu.Lock()
	r.snapshots++
	r.mu.Unlock()
	if r.entered != nil {
		select {
		case r.entered <- struct{}{}:
		default:
		}
	}
	if r.gate != nil {
		<-r.gate
	}
	return fn(ctx, &memoryReader{repo: r})
}

func (r *memoryRepo) ListTenants(ctx context.Context) ([]int64, error) {
	seen := make(map[int64]bool)
	var out []int64
	for _, l := range r.ledgers {
		if !seen[l.TenantID] {
			seen[l.TenantID] = true
			out = append(out, l.TenantID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

type memoryReader struct {
	repo *memoryRepo
}

func (r *memoryReader) Ledgers(ctx context.Context, tenantID int64) ([]LedgerRow, error) {
	var out []LedgerRow
	for _, l := range r.repo.ledgers {
		if l.TenantID == tenantID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memoryReader) Postings(ctx context.Context, q PostingQuery) ([]posting.Posting, error) {
	r.repo.mu.Lock()
	r.repo.batches++
	r.repo.mu.Unlock()
	owned := make(map[int64]bool)
	for _, l := range r.repo.ledgers {
		if l.TenantID == q.TenantID {
			owned[l.ID] = true
		}
	}
	sorted := append([]posting.Posting(nil), r.repo.postings...)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].VoucherID < sorted[j].VoucherID
	})
	var out []posting.Posting
	for _, p := range sorted {
		if !owned[p.DebitLedgerID] {
			continue
		}
		if q.LedgerID != 0 && p.DebitLedgerID != q.LedgerID && p.CreditLedgerID != q.LedgerID {
			continue
		}
		if q.To != nil && p.Date.After(*q.To) {
			continue
		}
		if p.Date.Before(q.After.Date) || (p.Date.Equal(q.After.Date) && p.VoucherID <= q.After.VoucherID) {
			continue
		}
		out = append(out, p)
		if len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

type stubAuthz struct {
	deny bool
}

func (a stubAuthz) HasPermission(ctx context.Context, actor shared.Actor, groupID int64, action permissions.Action) bool {
	return !a.deny
}

func (a stubAuthz) HasAnyPermission(ctx context.Context, actor shared.Actor, action permissions.Action) bool {
	return !a.deny
}
