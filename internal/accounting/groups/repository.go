package groups

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/pharmaledger/internal/platform/db"
	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

// Repository opens units of work over the group tables.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes group persistence inside a transaction. Grant rows are
// touched here too because group creation and deletion must change them in
// the same unit of work.
type TxRepository interface {
	GetGroup(ctx context.Context, tenantID, id int64) (Group, error)
	GetGroupForUpdate(ctx context.Context, tenantID, id int64) (Group, error)
	ListGroups(ctx context.Context, tenantID int64) ([]Group, error)
	NameTaken(ctx context.Context, tenantID int64, nameKey string, excludeID int64) (bool, error)
	InsertGroup(ctx context.Context, g Group, nameKey string) (Group, error)
	UpdateGroup(ctx context.Context, g Group, nameKey string) error
	DeleteGroup(ctx context.Context, tenantID, id int64) error
	CountChildren(ctx context.Context, tenantID, id int64) (int, error)
	CountLedgers(ctx context.Context, tenantID, id int64) (int, error)
	DeleteGrants(ctx context.Context, tenantID, groupID int64) (int64, error)
	InheritGrant(ctx context.Context, tenantID, userID, fromGroupID, toGroupID int64) (bool, error)
}

const uqGroupName = "uq_account_groups_tenant_name"

const groupColumns = `id, tenant_id, name, type, parent_id, is_default, is_editable, is_deletable, is_active, sort_order, created_by, created_at, updated_at`

const grantFlagColumns = `can_view_ledger, can_create_ledger, can_edit_ledger, can_delete_ledger,
can_create_transaction, can_edit_transaction, can_delete_transaction, can_view_transaction,
can_view_report, can_export_report, can_view_balance, can_modify_balance, can_set_opening_balance,
can_create_sub_group, can_edit_group, can_delete_group`

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the Postgres implementation.
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

func scanGroup(row pgx.Row) (Group, error) {
	var g Group
	err := row.Scan(&g.ID, &g.TenantID, &g.Name, &g.Type, &g.ParentID, &g.IsDefault, &g.IsEditable,
		&g.IsDeletable, &g.IsActive, &g.SortOrder, &g.CreatedBy, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Group{}, ErrGroupNotFound
	}
	return g, err
}

func (r *txRepository) GetGroup(ctx context.Context, tenantID, id int64) (Group, error) {
	return scanGroup(r.tx.QueryRow(ctx, `SELECT `+groupColumns+` FROM account_groups WHERE tenant_id=$1 AND id=$2`, tenantID, id))
}

func (r *txRepository) GetGroupForUpdate(ctx context.Context, tenantID, id int64) (Group, error) {
	return scanGroup(r.tx.QueryRow(ctx, `SELECT `+groupColumns+` FROM account_groups WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id))
}

func (r *txRepository) ListGroups(ctx context.Context, tenantID int64) ([]Group, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+groupColumns+` FROM account_groups WHERE tenant_id=$1 ORDER BY sort_order, name, id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *txRepository) NameTaken(ctx context.Context, tenantID int64, nameKey string, excludeID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM account_groups WHERE tenant_id=$1 AND name_key=$2 AND id<>$3)`,
		tenantID, nameKey, excludeID).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertGroup(ctx context.Context, g Group, nameKey string) (Group, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO account_groups (tenant_id, name, name_key, type, parent_id, is_default, is_editable, is_deletable, is_active, sort_order, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12) RETURNING id`,
		g.TenantID, g.Name, nameKey, g.Type, g.ParentID, g.IsDefault, g.IsEditable, g.IsDeletable, g.IsActive, g.SortOrder, g.CreatedBy, g.CreatedAt)
	if err := row.Scan(&g.ID); err != nil {
		if shared.IsUniqueViolation(err, uqGroupName) {
			return Group{}, ErrDuplicateName
		}
		return Group{}, err
	}
	g.UpdatedAt = g.CreatedAt
	return g, nil
}

func (r *txRepository) UpdateGroup(ctx context.Context, g Group, nameKey string) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE account_groups SET name=$3, name_key=$4, parent_id=$5, sort_order=$6, is_active=$7, updated_at=$8
WHERE tenant_id=$1 AND id=$2`, g.TenantID, g.ID, g.Name, nameKey, g.ParentID, g.SortOrder, g.IsActive, g.UpdatedAt)
	if err != nil {
		if shared.IsUniqueViolation(err, uqGroupName) {
			return ErrDuplicateName
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrGroupNotFound
	}
	return nil
}

func (r *txRepository) DeleteGroup(ctx context.Context, tenantID, id int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM account_groups WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrGroupNotFound
	}
	return nil
}

func (r *txRepository) CountChildren(ctx context.Context, tenantID, id int64) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM account_groups WHERE tenant_id=$1 AND parent_id=$2`, tenantID, id).Scan(&n)
	return n, err
}

func (r *txRepository) CountLedgers(ctx context.Context, tenantID, id int64) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM ledgers WHERE tenant_id=$1 AND group_id=$2`, tenantID, id).Scan(&n)
	return n, err
}

func (r *txRepository) DeleteGrants(ctx context.Context, tenantID, groupID int64) (int64, error) {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM group_permissions WHERE tenant_id=$1 AND group_id=$2`, tenantID, groupID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// InheritGrant copies the user's usable grant on the parent onto the new group.
func (r *txRepository) InheritGrant(ctx context.Context, tenantID, userID, fromGroupID, toGroupID int64) (bool, error) {
	cmd, err := r.tx.Exec(ctx, fmt.Sprintf(`INSERT INTO group_permissions (tenant_id, user_id, group_id, %[1]s, is_restricted, effective_from, effective_to, status, granted_by, created_at, updated_at)
SELECT tenant_id, user_id, $4, %[1]s, FALSE, effective_from, effective_to, 'ACTIVE', granted_by, NOW(), NOW()
FROM group_permissions
WHERE tenant_id=$1 AND user_id=$2 AND group_id=$3 AND status='ACTIVE' AND NOT is_restricted
  AND (effective_from IS NULL OR effective_from <= NOW())
  AND (effective_to IS NULL OR effective_to >= NOW())
ON CONFLICT (tenant_id, user_id, group_id) DO NOTHING`, grantFlagColumns), tenantID, userID, fromGroupID, toGroupID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}
