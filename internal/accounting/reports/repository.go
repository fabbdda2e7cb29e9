package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/pharmaledger/internal/accounting/posting"
	"github.com/odyssey-erp/pharmaledger/internal/platform/db"
)

// Repository opens read-only snapshots for report computation.
type Repository interface {
	WithSnapshot(ctx context.Context, fn func(context.Context, Reader) error) error
	ListTenants(ctx context.Context) ([]int64, error)
}

// Reader is the query surface available inside a snapshot.
type Reader interface {
	Ledgers(ctx context.Context, tenantID int64) ([]LedgerRow, error)
	Postings(ctx context.Context, q PostingQuery) ([]posting.Posting, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the Postgres report reader.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithSnapshot(ctx context.Context, fn func(context.Context, Reader) error) error {
	return db.WithSnapshot(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &reader{tx: tx})
	})
}

func (r *repository) ListTenants(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT tenant_id FROM ledgers ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

type reader struct {
	tx pgx.Tx
}

func (r *reader) Ledgers(ctx context.Context, tenantID int64) ([]LedgerRow, error) {
	rows, err := r.tx.Query(ctx, `SELECT l.id, l.tenant_id, l.group_id, g.name, g.type, l.name, l.balance_type,
l.opening_balance, l.current_balance, l.is_active
FROM ledgers l
JOIN account_groups g ON g.id = l.group_id AND g.tenant_id = l.tenant_id
WHERE l.tenant_id=$1
ORDER BY g.name, l.name, l.id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LedgerRow
	for rows.Next() {
		var l LedgerRow
		if err := rows.Scan(&l.ID, &l.TenantID, &l.GroupID, &l.GroupName, &l.GroupType, &l.Name, &l.BalanceType,
			&l.Opening, &l.CurrentBalance, &l.IsActive); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Postings reads one keyset page of posted vouchers, optionally limited to a
// single ledger and an upper voucher date.
func (r *reader) Postings(ctx context.Context, q PostingQuery) ([]posting.Posting, error) {
	after := q.After.Date
	if after.IsZero() {
		after = time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	rows, err := r.tx.Query(ctx, `SELECT id, voucher_number, voucher_type, voucher_date, description, amount, debit_ledger_id, credit_ledger_id
FROM vouchers
WHERE tenant_id=$1 AND status='POSTED'
  AND ($2::bigint = 0 OR debit_ledger_id=$2 OR credit_ledger_id=$2)
  AND ($3::date IS NULL OR voucher_date <= $3::date)
  AND (voucher_date, id) > ($4::date, $5::bigint)
ORDER BY voucher_date, id
LIMIT $6`, q.TenantID, q.LedgerID, q.To, after, q.After.VoucherID, q.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []posting.Posting
	for rows.Next() {
		var p posting.Posting
		if err := rows.Scan(&p.VoucherID, &p.VoucherNumber, &p.VoucherType, &p.Date, &p.Description, &p.Amount,
			&p.DebitLedgerID, &p.CreditLedgerID); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
