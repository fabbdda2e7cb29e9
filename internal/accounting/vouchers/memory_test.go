package vouchers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/pharmaledger/internal/accounting/groups"
	"github.com/odyssey-erp/pharmaledger/internal/accounting/permissions"
	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

type memoryState struct {
	nextID    int64
	ledgers   map[int64]LedgerRef
	vouchers  map[int64]Voucher
	sequences map[string]int64
	keys      map[uuid.UUID]bool
}

func (s memoryState) clone() memoryState {
	c := memoryState{
		nextID:    s.nextID,
		ledgers:   make(map[int64]LedgerRef, len(s.ledgers)),
		vouchers:  make(map[int64]Voucher, len(s.vouchers)),
		sequences: make(map[string]int64, len(s.sequences)),
		keys:      make(map[uuid.UUID]bool, len(s.keys)),
	}
	for k, v := range s.ledgers {
		c.ledgers[k] = v
	}
	for k, v := range s.vouchers {
		c.vouchers[k] = v
	}
	for k, v := range s.sequences {
		c.sequences[k] = v
	}
	for k, v := range s.keys {
		c.keys[k] = v
	}
	return c
}

type memoryRepo struct {
	mu        sync.Mutex
	state     memoryState
	lostRows  map[int64]bool
	lockOrder []int64
}

func newMemoryRepo(ledgers ...LedgerRef) *memoryRepo {
	r := &memoryRepo{
		state: memoryState{
			ledgers:   make(map[int64]LedgerRef),
			vouchers:  make(map[int64]Voucher),
			sequences: make(map[string]int64),
			keys:      make(map[uuid.UUID]bool),
		},
		lostRows: make(map[int64]bool),
	}
	for _, l := range ledgers {
		r.state.ledgers[l.ID] = l
	}
	return r
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	saved := r.state.clone()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.state = saved
		return err
	}
	return nil
}

func (r *memoryRepo) balance(id int64) decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.ledgers[id].CurrentBalance
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) ClaimIdempotencyKey(ctx context.Context, tenantID int64, key uuid.UUID) error {
	if tx.repo.state.keys[key] {
		return ErrDuplicateRequest
	}
	tx.repo.state.keys[key] = true
	return nil
}

func (tx *memoryTx) NextSequence(ctx context.Context, seqKey string) (int64, error) {
	tx.repo.state.sequences[seqKey]++
	return tx.repo.state.sequences[seqKey], nil
}

func (tx *memoryTx) GetLedger(ctx context.Context, tenantID, id int64) (LedgerRef, error) {
	l, ok := tx.repo.state.ledgers[id]
	if !ok {
		return LedgerRef{}, ErrLedgerNotFound
	}
	return l, nil
}

func (tx *memoryTx) LockLedger(ctx context.Context, tenantID, id int64) (LedgerRef, error) {
	tx.repo.lockOrder = append(tx.repo.lockOrder, id)
	return tx.GetLedger(ctx, tenantID, id)
}

func (tx *memoryTx) SetLedgerBalance(ctx context.Context, tenantID, id int64, balance decimal.Decimal) (int64, error) {
	if tx.repo.lostRows[id] {
		return 0, nil
	}
	l := tx.repo.state.ledgers[id]
	l.CurrentBalance = balance
	tx.repo.state.ledgers[id] = l
	return 1, nil
}

func (tx *memoryTx) InsertVoucher(ctx context.Context, v Voucher) (Voucher, error) {
	for _, existing := range tx.repo.state.vouchers {
		if existing.Number == v.Number {
			return Voucher{}, ErrDuplicateNumber
		}
	}
	tx.repo.state.nextID++
	v.ID = tx.repo.state.nextID
	tx.repo.state.vouchers[v.ID] = v
	return v, nil
}

func (tx *memoryTx) GetVoucher(ctx context.Context, tenantID, id int64) (Voucher, error) {
	v, ok := tx.repo.state.vouchers[id]
	if !ok || v.TenantID != tenantID {
		return Voucher{}, ErrVoucherNotFound
	}
	return v, nil
}

func (tx *memoryTx) GetVoucherForUpdate(ctx context.Context, tenantID, id int64) (Voucher, error) {
	return tx.GetVoucher(ctx, tenantID, id)
}

func (tx *memoryTx) UpdateVoucher(ctx context.Context, v Voucher) error {
	if _, ok := tx.repo.state.vouchers[v.ID]; !ok {
		return ErrVoucherNotFound
	}
	tx.repo.state.vouchers[v.ID] = v
	return nil
}

func (tx *memoryTx) DeleteVoucher(ctx context.Context, tenantID, id int64) error {
	if _, err := tx.GetVoucher(ctx, tenantID, id); err != nil {
		return err
	}
	delete(tx.repo.state.vouchers, id)
	return nil
}

func (tx *memoryTx) ListVouchers(ctx context.Context, filter ListFilter) ([]Voucher, int, error) {
	allowed := make(map[int64]bool)
	for _, id := range filter.GroupIDs {
		allowed[id] = true
	}
	var out []Voucher
	for _, v := range tx.repo.state.vouchers {
		if v.TenantID != filter.TenantID || (filter.Status != "" && v.Status != filter.Status) || (filter.Type != "" && v.Type != filter.Type) {
			continue
		}
		if filter.GroupIDs != nil && !allowed[tx.repo.state.ledgers[v.DebitLedgerID].GroupID] && !allowed[tx.repo.state.ledgers[v.CreditLedgerID].GroupID] {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	start := filter.Page.Offset()
	if start > total {
		start = total
	}
	end := start + filter.Page.PerPage
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

func (tx *memoryTx) Stats(ctx context.Context, tenantID int64, from, to *time.Time) ([]StatRow, error) {
	type statKey struct {
		t      Type
		s      Status
		posted bool
	}
	agg := make(map[statKey]*StatRow)
	for _, v := range tx.repo.state.vouchers {
		k := statKey{v.Type, v.Status, v.PostedAt != nil}
		row, ok := agg[k]
		if !ok {
			row = &StatRow{Type: v.Type, Status: v.Status, Posted: k.posted}
			agg[k] = row
		}
		row.Count++
		row.Total = row.Total.Add(v.Amount)
	}
	var out []StatRow
	for _, row := range agg {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		return fmt.Sprint(out[i].Type, out[i].Status, out[i].Posted) < fmt.Sprint(out[j].Type, out[j].Status, out[j].Posted)
	})
	return out, nil
}

type stubAuthz struct {
	denied map[int64]bool
	groups []groups.Group
}

func (a stubAuthz) HasPermission(ctx context.Context, actor shared.Actor, groupID int64, action permissions.Action) bool {
	return actor.IsAdmin() || !a.denied[groupID]
}

func (a stubAuthz) HasAnyPermission(ctx context.Context, actor shared.Actor, action permissions.Action) bool {
	return true
}

func (a stubAuthz) AccessibleGroups(ctx context.Context, actor shared.Actor) ([]groups.Group, error) {
	return a.groups, nil
}

type countingRecorder struct {
	mu          sync.Mutex
	transitions map[string]int
}

func (r *countingRecorder) VoucherTransition(voucherType, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.transitions == nil {
		r.transitions = make(map[string]int)
	}
	r.transitions[voucherType+"/"+status]++
}
