package permissions

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists grants. Every method is a single statement so no unit
// of work is needed here; group-scoped cascades live with the group store.
type Repository interface {
	Get(ctx context.Context, tenantID, userID, groupID int64) (GroupPermission, error)
	ListForUser(ctx context.Context, tenantID, userID int64) ([]GroupPermission, error)
	ListForGroup(ctx context.Context, tenantID, groupID int64) ([]GroupPermission, error)
	Upsert(ctx context.Context, p GroupPermission) (GroupPermission, error)
	Delete(ctx context.Context, tenantID, userID, groupID int64) error
	ExpireBefore(ctx context.Context, now time.Time) ([]GroupPermission, error)
}

const grantColumns = `id, tenant_id, user_id, group_id,
can_view_ledger, can_create_ledger, can_edit_ledger, can_delete_ledger,
can_create_transaction, can_edit_transaction, can_delete_transaction, can_view_transaction,
can_view_report, can_export_report, can_view_balance, can_modify_balance, can_set_opening_balance,
can_create_sub_group, can_edit_group, can_delete_group,
is_restricted, effective_from, effective_to, status, granted_by, created_at, updated_at`

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the Postgres grant store.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func scanGrant(row pgx.Row) (GroupPermission, error) {
	var p GroupPermission
	c := &p.Capabilities
	err := row.Scan(&p.ID, &p.TenantID, &p.UserID, &p.GroupID,
		&c.CanViewLedger, &c.CanCreateLedger, &c.CanEditLedger, &c.CanDeleteLedger,
		&c.CanCreateTransaction, &c.CanEditTransaction, &c.CanDeleteTransaction, &c.CanViewTransaction,
		&c.CanViewReport, &c.CanExportReport, &c.CanViewBalance, &c.CanModifyBalance, &c.CanSetOpeningBalance,
		&c.CanCreateSubGroup, &c.CanEditGroup, &c.CanDeleteGroup,
		&p.IsRestricted, &p.EffectiveFrom, &p.EffectiveTo, &p.Status, &p.GrantedBy, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return GroupPermission{}, ErrGrantNotFound
	}
	return p, err
}

func collectGrants(rows pgx.Rows, err error) ([]GroupPermission, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GroupPermission
	for rows.Next() {
		p, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, tenantID, userID, groupID int64) (GroupPermission, error) {
	return scanGrant(r.pool.QueryRow(ctx, `SELECT `+grantColumns+` FROM group_permissions
WHERE tenant_id=$1 AND user_id=$2 AND group_id=$3`, tenantID, userID, groupID))
}

func (r *repository) ListForUser(ctx context.Context, tenantID, userID int64) ([]GroupPermission, error) {
	return collectGrants(r.pool.Query(ctx, `SELECT `+grantColumns+` FROM group_permissions
WHERE tenant_id=$1 AND user_id=$2 ORDER BY group_id`, tenantID, userID))
}

func (r *repository) ListForGroup(ctx context.Context, tenantID, groupID int64) ([]GroupPermission, error) {
	return collectGrants(r.pool.Query(ctx, `SELECT `+grantColumns+` FROM group_permissions
WHERE tenant_id=$1 AND group_id=$2 ORDER BY user_id`, tenantID, groupID))
}

func (r *repository) Upsert(ctx context.Context, p GroupPermission) (GroupPermission, error) {
	c := p.Capabilities
	return scanGrant(r.pool.QueryRow(ctx, `INSERT INTO group_permissions (tenant_id, user_id, group_id,
can_view_ledger, can_create_ledger, can_edit_ledger, can_delete_ledger,
can_create_transaction, can_edit_transaction, can_delete_transaction, can_view_transaction,
can_view_report, can_export_report, can_view_balance, can_modify_balance, can_set_opening_balance,
can_create_sub_group, can_edit_group, can_delete_group,
is_restricted, effective_from, effective_to, status, granted_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$25)
ON CONFLICT (tenant_id, user_id, group_id) DO UPDATE SET
  can_view_ledger=EXCLUDED.can_view_ledger, can_create_ledger=EXCLUDED.can_create_ledger,
  can_edit_ledger=EXCLUDED.can_edit_ledger, can_delete_ledger=EXCLUDED.can_delete_ledger,
  can_create_transaction=EXCLUDED.can_create_transaction, can_edit_transaction=EXCLUDED.can_edit_transaction,
  can_delete_transaction=EXCLUDED.can_delete_transaction, can_view_transaction=EXCLUDED.can_view_transaction,
  can_view_report=EXCLUDED.can_view_report, can_export_report=EXCLUDED.can_export_report,
  can_view_balance=EXCLUDED.can_view_balance, can_modify_balance=EXCLUDED.can_modify_balance,
  can_set_opening_balance=EXCLUDED.can_set_opening_balance, can_create_sub_group=EXCLUDED.can_create_sub_group,
  can_edit_group=EXCLUDED.can_edit_group, can_delete_group=EXCLUDED.can_delete_group,
  is_restricted=EXCLUDED.is_restricted, effective_from=EXCLUDED.effective_from, effective_to=EXCLUDED.effective_to,
  status=EXCLUDED.status, granted_by=EXCLUDED.granted_by, updated_at=EXCLUDED.updated_at
RETURNING `+grantColumns,
		p.TenantID, p.UserID, p.GroupID,
		c.CanViewLedger, c.CanCreateLedger, c.CanEditLedger, c.CanDeleteLedger,
		c.CanCreateTransaction, c.CanEditTransaction, c.CanDeleteTransaction, c.CanViewTransaction,
		c.CanViewReport, c.CanExportReport, c.CanViewBalance, c.CanModifyBalance, c.CanSetOpeningBalance,
		c.CanCreateSubGroup, c.CanEditGroup, c.CanDeleteGroup,
		p.IsRestricted, p.EffectiveFrom, p.EffectiveTo, p.Status, p.GrantedBy, p.UpdatedAt))
}

func (r *repository) Delete(ctx context.Context, tenantID, userID, groupID int64) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM group_permissions WHERE tenant_id=$1 AND user_id=$2 AND group_id=$3`, tenantID, userID, groupID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrGrantNotFound
	}
	return nil
}

func (r *repository) ExpireBefore(ctx context.Context, now time.Time) ([]GroupPermission, error) {
	return collectGrants(r.pool.Query(ctx, `UPDATE group_permissions SET status='INACTIVE', updated_at=$1
WHERE status='ACTIVE' AND effective_to IS NOT NULL AND effective_to < $1
RETURNING `+grantColumns, now))
}
