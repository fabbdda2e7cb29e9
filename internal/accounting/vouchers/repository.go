package vouchers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/pharmaledger/internal/platform/db"
	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

// Repository opens units of work over vouchers and ledger balances.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes voucher persistence inside a transaction.
type TxRepository interface {
	ClaimIdempotencyKey(ctx context.Context, tenantID int64, key uuid.UUID) error
	NextSequence(ctx context.Context, seqKey string) (int64, error)
	GetLedger(ctx context.Context, tenantID, id int64) (LedgerRef, error)
	LockLedger(ctx context.Context, tenantID, id int64) (LedgerRef, error)
	SetLedgerBalance(ctx context.Context, tenantID, id int64, balance decimal.Decimal) (int64, error)
	InsertVoucher(ctx context.Context, v Voucher) (Voucher, error)
	GetVoucher(ctx context.Context, tenantID, id int64) (Voucher, error)
	GetVoucherForUpdate(ctx context.Context, tenantID, id int64) (Voucher, error)
	UpdateVoucher(ctx context.Context, v Voucher) error
	DeleteVoucher(ctx context.Context, tenantID, id int64) error
	ListVouchers(ctx context.Context, filter ListFilter) ([]Voucher, int, error)
	Stats(ctx context.Context, tenantID int64, from, to *time.Time) ([]StatRow, error)
}

const (
	uqVoucherNumber   = "uq_vouchers_tenant_number"
	idempotencyModule = "vouchers"
)

const voucherColumns = `id, tenant_id, voucher_number, voucher_type, voucher_date, description, reference, amount,
debit_ledger_id, credit_ledger_id, status, posted_at, posted_by, cancelled_at, cancelled_by, cancel_reason,
created_by, updated_by, created_at, updated_at`

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the Postgres voucher store.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) ClaimIdempotencyKey(ctx context.Context, tenantID int64, key uuid.UUID) error {
	if err := shared.ClaimIdempotencyKey(ctx, r.tx, tenantID, key, idempotencyModule); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			return ErrDuplicateRequest
		}
		return err
	}
	return nil
}

// NextSequence bumps the counter row under its row lock and returns the new value.
func (r *txRepository) NextSequence(ctx context.Context, seqKey string) (int64, error) {
	var next int64
	err := r.tx.QueryRow(ctx, `INSERT INTO voucher_sequences (seq_key, last_value) VALUES ($1, 1)
ON CONFLICT (seq_key) DO UPDATE SET last_value = voucher_sequences.last_value + 1
RETURNING last_value`, seqKey).Scan(&next)
	return next, err
}

func scanLedgerRef(row pgx.Row) (LedgerRef, error) {
	var l LedgerRef
	err := row.Scan(&l.ID, &l.GroupID, &l.Name, &l.BalanceType, &l.CurrentBalance, &l.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return LedgerRef{}, ErrLedgerNotFound
	}
	return l, err
}

func (r *txRepository) GetLedger(ctx context.Context, tenantID, id int64) (LedgerRef, error) {
	return scanLedgerRef(r.tx.QueryRow(ctx, `SELECT id, group_id, name, balance_type, current_balance, is_active
FROM ledgers WHERE tenant_id=$1 AND id=$2`, tenantID, id))
}

func (r *txRepository) LockLedger(ctx context.Context, tenantID, id int64) (LedgerRef, error) {
	return scanLedgerRef(r.tx.QueryRow(ctx, `SELECT id, group_id, name, balance_type, current_balance, is_active
FROM ledgers WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id))
}

func (r *txRepository) SetLedgerBalance(ctx context.Context, tenantID, id int64, balance decimal.Decimal) (int64, error) {
	cmd, err := r.tx.Exec(ctx, `UPDATE ledgers SET current_balance=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, id, balance)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanVoucher(row pgx.Row) (Voucher, error) {
	var v Voucher
	err := row.Scan(&v.ID, &v.TenantID, &v.Number, &v.Type, &v.Date, &v.Description, &v.Reference, &v.Amount,
		&v.DebitLedgerID, &v.CreditLedgerID, &v.Status, &v.PostedAt, &v.PostedBy, &v.CancelledAt, &v.CancelledBy,
		&v.CancelReason, &v.CreatedBy, &v.UpdatedBy, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Voucher{}, ErrVoucherNotFound
	}
	return v, err
}

func (r *txRepository) InsertVoucher(ctx context.Context, v Voucher) (Voucher, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO vouchers (tenant_id, voucher_number, voucher_type, voucher_date, description, reference, amount,
debit_ledger_id, credit_ledger_id, status, created_by, updated_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11,$12,$12) RETURNING id`,
		v.TenantID, v.Number, v.Type, v.Date, v.Description, v.Reference, v.Amount,
		v.DebitLedgerID, v.CreditLedgerID, v.Status, v.CreatedBy, v.CreatedAt).Scan(&v.ID)
	if err != nil {
		if shared.IsUniqueViolation(err, uqVoucherNumber) {
			return Voucher{}, ErrDuplicateNumber
		}
		return Voucher{}, err
	}
	v.UpdatedBy = v.CreatedBy
	v.UpdatedAt = v.CreatedAt
	return v, nil
}

func (r *txRepository) GetVoucher(ctx context.Context, tenantID, id int64) (Voucher, error) {
	return scanVoucher(r.tx.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE tenant_id=$1 AND id=$2`, tenantID, id))
}

func (r *txRepository) GetVoucherForUpdate(ctx context.Context, tenantID, id int64) (Voucher, error) {
	return scanVoucher(r.tx.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id))
}

func (r *txRepository) UpdateVoucher(ctx context.Context, v Voucher) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE vouchers SET voucher_date=$3, description=$4, reference=$5, amount=$6,
debit_ledger_id=$7, credit_ledger_id=$8, status=$9, posted_at=$10, posted_by=$11, cancelled_at=$12, cancelled_by=$13,
cancel_reason=$14, updated_by=$15, updated_at=$16
WHERE tenant_id=$1 AND id=$2`, v.TenantID, v.ID, v.Date, v.Description, v.Reference, v.Amount,
		v.DebitLedgerID, v.CreditLedgerID, v.Status, v.PostedAt, v.PostedBy, v.CancelledAt, v.CancelledBy,
		v.CancelReason, v.UpdatedBy, v.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrVoucherNotFound
	}
	return nil
}

func (r *txRepository) DeleteVoucher(ctx context.Context, tenantID, id int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM vouchers WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrVoucherNotFound
	}
	return nil
}

func (r *txRepository) ListVouchers(ctx context.Context, filter ListFilter) ([]Voucher, int, error) {
	where := []string{"v.tenant_id=$1"}
	args := []any{filter.TenantID}
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Type != "" {
		add("v.voucher_type=$%d", filter.Type)
	}
	if filter.Status != "" {
		add("v.status=$%d", filter.Status)
	}
	if filter.LedgerID != 0 {
		add("(v.debit_ledger_id=$%[1]d OR v.credit_ledger_id=$%[1]d)", filter.LedgerID)
	}
	if filter.From != nil {
		add("v.voucher_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("v.voucher_date <= $%d", *filter.To)
	}
	if filter.GroupIDs != nil {
		add(`EXISTS (SELECT 1 FROM ledgers l WHERE l.tenant_id=v.tenant_id AND l.id IN (v.debit_ledger_id, v.credit_ledger_id) AND l.group_id = ANY($%d))`, filter.GroupIDs)
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM vouchers v WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page := filter.Page
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.tx.Query(ctx, fmt.Sprintf(`SELECT %s FROM vouchers v WHERE %s
ORDER BY v.voucher_date DESC, v.id DESC LIMIT $%d OFFSET $%d`, prefixed(voucherColumns, "v."), clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}

func (r *txRepository) Stats(ctx context.Context, tenantID int64, from, to *time.Time) ([]StatRow, error) {
	rows, err := r.tx.Query(ctx, `SELECT voucher_type, status, posted_at IS NOT NULL AS posted, COUNT(*), COALESCE(SUM(amount), 0)
FROM vouchers
WHERE tenant_id=$1 AND ($2::date IS NULL OR voucher_date >= $2::date) AND ($3::date IS NULL OR voucher_date <= $3::date)
GROUP BY voucher_type, status, posted
ORDER BY voucher_type, status, posted`, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StatRow
	for rows.Next() {
		var s StatRow
		if err := rows.Scan(&s.Type, &s.Status, &s.Posted, &s.Count, &s.Total); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func prefixed(columns, prefix string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
