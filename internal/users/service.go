package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	GetUser(ctx context.Context, tenantID, userID int64) (User, error)
}

// Service resolves actors from the user directory.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ResolveActor maps an upstream-authenticated user id to an Actor. Unknown,
// inactive, or cross-tenant users are unauthenticated.
func (s *Service) ResolveActor(ctx context.Context, tenantID, userID int64) (shared.Actor, error) {
	if tenantID <= 0 || userID <= 0 {
		return shared.Actor{}, shared.ErrUnauthenticated
	}
	user, err := s.repo.GetUser(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.Actor{}, shared.ErrUnauthenticated
		}
		return shared.Actor{}, fmt.Errorf("users: resolve actor: %w", err)
	}
	if !user.IsActive {
		return shared.Actor{}, shared.ErrUnauthenticated
	}
	return shared.Actor{TenantID: user.TenantID, UserID: user.ID, Role: user.Role}, nil
}
