package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetUser returns the user when it belongs to the tenant.
func (r *Repository) GetUser(ctx context.Context, tenantID, userID int64) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx, `SELECT id, tenant_id, email, name, role, is_active, created_at, updated_at
FROM users WHERE id=$1 AND tenant_id=$2`, userID, tenantID).
		Scan(&user.ID, &user.TenantID, &user.Email, &user.Name, &user.Role, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}
