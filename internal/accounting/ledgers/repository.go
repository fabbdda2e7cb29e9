package ledgers

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/pharmaledger/internal/accounting/posting"
	"github.com/odyssey-erp/pharmaledger/internal/platform/db"
	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

// Repository opens units of work over the ledger tables.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	WithSnapshot(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes ledger persistence inside a transaction.
type TxRepository interface {
	GetLedger(ctx context.Context, tenantID, id int64) (Ledger, error)
	GetLedgerForUpdate(ctx context.Context, tenantID, id int64) (Ledger, error)
	ListLedgers(ctx context.Context, tenantID int64, filter ListFilter) ([]Ledger, error)
	NameTaken(ctx context.Context, tenantID int64, nameKey string, excludeID int64) (bool, error)
	GroupExists(ctx context.Context, tenantID, groupID int64) (bool, error)
	InsertLedger(ctx context.Context, l Ledger, nameKey string) (Ledger, error)
	UpdateLedger(ctx context.Context, l Ledger, nameKey string) error
	DeleteLedger(ctx context.Context, tenantID, id int64) error
	CountVouchers(ctx context.Context, tenantID, ledgerID int64) (int, error)
	ListPostings(ctx context.Context, tenantID, ledgerID int64, asOf *time.Time) ([]posting.Posting, error)
}

const uqLedgerName = "uq_ledgers_tenant_name"

const ledgerColumns = `id, tenant_id, group_id, name, alias, description, opening_balance, balance_type, current_balance,
is_default, is_editable, is_deletable, editable_fields, is_active, created_by, updated_by, created_at, updated_at`

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the Postgres ledger store.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) WithSnapshot(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithSnapshot(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func scanLedger(row pgx.Row) (Ledger, error) {
	var l Ledger
	err := row.Scan(&l.ID, &l.TenantID, &l.GroupID, &l.Name, &l.Alias, &l.Description, &l.OpeningBalance,
		&l.BalanceType, &l.CurrentBalance, &l.IsDefault, &l.IsEditable, &l.IsDeletable, &l.EditableFields,
		&l.IsActive, &l.CreatedBy, &l.UpdatedBy, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Ledger{}, ErrLedgerNotFound
	}
	return l, err
}

func (r *txRepository) GetLedger(ctx context.Context, tenantID, id int64) (Ledger, error) {
	return scanLedger(r.tx.QueryRow(ctx, `SELECT `+ledgerColumns+` FROM ledgers WHERE tenant_id=$1 AND id=$2`, tenantID, id))
}

func (r *txRepository) GetLedgerForUpdate(ctx context.Context, tenantID, id int64) (Ledger, error) {
	return scanLedger(r.tx.QueryRow(ctx, `SELECT `+ledgerColumns+` FROM ledgers WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id))
}

func (r *txRepository) ListLedgers(ctx context.Context, tenantID int64, filter ListFilter) ([]Ledger, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+ledgerColumns+` FROM ledgers
WHERE tenant_id=$1 AND ($2 = 0 OR group_id=$2) AND (NOT $3 OR is_active)
ORDER BY name, id`, tenantID, filter.GroupID, filter.ActiveOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Ledger
	for rows.Next() {
		l, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *txRepository) NameTaken(ctx context.Context, tenantID int64, nameKey string, excludeID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ledgers WHERE tenant_id=$1 AND name_key=$2 AND id<>$3)`,
		tenantID, nameKey, excludeID).Scan(&exists)
	return exists, err
}

func (r *txRepository) GroupExists(ctx context.Context, tenantID, groupID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM account_groups WHERE tenant_id=$1 AND id=$2)`, tenantID, groupID).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertLedger(ctx context.Context, l Ledger, nameKey string) (Ledger, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO ledgers (tenant_id, group_id, name, name_key, alias, description, opening_balance, balance_type,
current_balance, is_default, is_editable, is_deletable, editable_fields, is_active, created_by, updated_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$15,$16,$16) RETURNING id`,
		l.TenantID, l.GroupID, l.Name, nameKey, l.Alias, l.Description, l.OpeningBalance, l.BalanceType,
		l.CurrentBalance, l.IsDefault, l.IsEditable, l.IsDeletable, l.EditableFields, l.IsActive, l.CreatedBy, l.CreatedAt).Scan(&l.ID)
	if err != nil {
		if shared.IsUniqueViolation(err, uqLedgerName) {
			return Ledger{}, ErrDuplicateName
		}
		return Ledger{}, err
	}
	l.UpdatedBy = l.CreatedBy
	l.UpdatedAt = l.CreatedAt
	return l, nil
}

func (r *txRepository) UpdateLedger(ctx context.Context, l Ledger, nameKey string) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE ledgers SET group_id=$3, name=$4, name_key=$5, alias=$6, description=$7,
opening_balance=$8, balance_type=$9, current_balance=$10, is_active=$11, updated_by=$12, updated_at=$13
WHERE tenant_id=$1 AND id=$2`, l.TenantID, l.ID, l.GroupID, l.Name, nameKey, l.Alias, l.Description,
		l.OpeningBalance, l.BalanceType, l.CurrentBalance, l.IsActive, l.UpdatedBy, l.UpdatedAt)
	if err != nil {
		if shared.IsUniqueViolation(err, uqLedgerName) {
			return ErrDuplicateName
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrLedgerNotFound
	}
	return nil
}

func (r *txRepository) DeleteLedger(ctx context.Context, tenantID, id int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM ledgers WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrLedgerNotFound
	}
	return nil
}

func (r *txRepository) CountVouchers(ctx context.Context, tenantID, ledgerID int64) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM vouchers WHERE tenant_id=$1 AND (debit_ledger_id=$2 OR credit_ledger_id=$2)`,
		tenantID, ledgerID).Scan(&n)
	return n, err
}

func (r *txRepository) ListPostings(ctx context.Context, tenantID, ledgerID int64, asOf *time.Time) ([]posting.Posting, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, voucher_number, voucher_type, voucher_date, description, amount, debit_ledger_id, credit_ledger_id
FROM vouchers
WHERE tenant_id=$1 AND status='POSTED' AND (debit_ledger_id=$2 OR credit_ledger_id=$2)
  AND ($3::date IS NULL OR voucher_date <= $3::date)
ORDER BY voucher_date, id`, tenantID, ledgerID, asOf)
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
