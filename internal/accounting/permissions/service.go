package permissions

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/odyssey-erp/pharmaledger/internal/accounting/groups"
	"github.com/odyssey-erp/pharmaledger/internal/shared"
	"github.com/odyssey-erp/pharmaledger/internal/users"
)

// AuditPort records grant changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// UserDirectory resolves grantees. A user of another tenant is not found.
type UserDirectory interface {
	GetUser(ctx context.Context, tenantID, userID int64) (users.User, error)
}

// Service manages grants. Only administrators may change them.
type Service struct {
	repo   Repository
	groups GroupDirectory
	people UserDirectory
	cache  *Cache
	audit  AuditPort
	now    func() time.Time
}

// NewService constructs the grant service.
func NewService(repo Repository, directory GroupDirectory, people UserDirectory, cache *Cache, audit AuditPort) *Service {
	return &Service{repo: repo, groups: directory, people: people, cache: cache, audit: audit, now: time.Now}
}

// WithNow overrides the clock for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Grant creates or replaces the grant of a user on a group.
func (s *Service) Grant(ctx context.Context, actor shared.Actor, in GrantInput) (GroupPermission, error) {
	if !actor.IsAdmin() {
		return GroupPermission{}, ErrAdminOnly
	}
	if err := shared.Validate(in); err != nil {
		return GroupPermission{}, err
	}
	if in.EffectiveFrom != nil && in.EffectiveTo != nil && in.EffectiveTo.Before(*in.EffectiveFrom) {
		return GroupPermission{}, ErrBadWindow
	}
	if _, err := s.groups.Get(ctx, actor.TenantID, in.GroupID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return GroupPermission{}, groups.ErrGroupNotFound
		}
		return GroupPermission{}, err
	}
	if _, err := s.people.GetUser(ctx, actor.TenantID, in.UserID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return GroupPermission{}, ErrUserNotFound
		}
		return GroupPermission{}, err
	}
	status := StatusActive
	if in.EffectiveTo != nil && in.EffectiveTo.Before(s.now()) {
		status = StatusInactive
	}
	saved, err := s.repo.Upsert(ctx, GroupPermission{
		TenantID:      actor.TenantID,
		UserID:        in.UserID,
		GroupID:       in.GroupID,
		Capabilities:  in.Capabilities,
		IsRestricted:  in.IsRestricted,
		EffectiveFrom: in.EffectiveFrom,
		EffectiveTo:   in.EffectiveTo,
		Status:        status,
		GrantedBy:     actor.UserID,
		UpdatedAt:     s.now(),
	})
	if err != nil {
		return GroupPermission{}, fmt.Errorf("permissions: upsert grant: %w", err)
	}
	_ = s.cache.Invalidate(ctx, actor.TenantID, in.UserID, in.GroupID)
	s.record(ctx, actor, "permission.grant", saved)
	return saved, nil
}

// Revoke removes a grant.
func (s *Service) Revoke(ctx context.Context, actor shared.Actor, userID, groupID int64) error {
	if !actor.IsAdmin() {
		return ErrAdminOnly
	}
	if err := s.repo.Delete(ctx, actor.TenantID, userID, groupID); err != nil {
		return err
	}
	_ = s.cache.Invalidate(ctx, actor.TenantID, userID, groupID)
	s.record(ctx, actor, "permission.revoke", GroupPermission{UserID: userID, GroupID: groupID})
	return nil
}

// ListForUser returns a user's grants. Users may list their own.
func (s *Service) ListForUser(ctx context.Context, actor shared.Actor, userID int64) ([]GroupPermission, error) {
	if !actor.IsAdmin() && actor.UserID != userID {
		return nil, ErrAdminOnly
	}
	return s.repo.ListForUser(ctx, actor.TenantID, userID)
}

// ListForGroup returns every grant on a group.
func (s *Service) ListForGroup(ctx context.Context, actor shared.Actor, groupID int64) ([]GroupPermission, error) {
	if !actor.IsAdmin() {
		return nil, ErrAdminOnly
	}
	return s.repo.ListForGroup(ctx, actor.TenantID, groupID)
}

// ExpireGrants deactivates grants whose window has closed and reports how many changed.
func (s *Service) ExpireGrants(ctx context.Context) (int, error) {
	expired, err := s.repo.ExpireBefore(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("permissions: expire grants: %w", err)
	}
	for _, p := range expired {
		_ = s.cache.Invalidate(ctx, p.TenantID, p.UserID, p.GroupID)
	}
	return len(expired), nil
}

func (s *Service) record(ctx context.Context, actor shared.Actor, action string, p GroupPermission) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: actor.TenantID,
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "group_permission",
		EntityID: strconv.FormatInt(p.UserID, 10) + ":" + strconv.FormatInt(p.GroupID, 10),
		Meta:     map[string]any{"restricted": p.IsRestricted, "status": p.Status},
		At:       s.now(),
	})
}
