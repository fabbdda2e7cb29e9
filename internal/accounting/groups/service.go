package groups

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

// AuditPort records group changes after commit.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Authorizer answers the composite group capability questions. Answers are
// fail-closed: any lookup problem yields false.
type Authorizer interface {
	CanCreateSubGroup(ctx context.Context, actor shared.Actor, parentID int64) bool
	CanEditGroup(ctx context.Context, actor shared.Actor, groupID int64) bool
	CanDeleteGroup(ctx context.Context, actor shared.Actor, groupID int64) bool
}

// GrantCache drops cached grants of a deleted group.
type GrantCache interface {
	InvalidateGroup(ctx context.Context, tenantID, groupID int64) error
}

// Reader serves read-only group queries. The permission evaluator depends on
// it directly so that it does not need the mutating service.
type Reader struct {
	repo Repository
}

// NewReader wraps repo.
func NewReader(repo Repository) *Reader {
	return &Reader{repo: repo}
}

// Get returns a single group of the tenant.
func (r *Reader) Get(ctx context.Context, tenantID, id int64) (Group, error) {
	var g Group
	err := r.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		g, err = tx.GetGroup(ctx, tenantID, id)
		return err
	})
	return g, err
}

// List returns every group of the tenant.
func (r *Reader) List(ctx context.Context, tenantID int64) ([]Group, error) {
	var out []Group
	err := r.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListGroups(ctx, tenantID)
		return err
	})
	return out, err
}

// Tree indexes the tenant's chart of accounts.
func (r *Reader) Tree(ctx context.Context, tenantID int64) (*Tree, error) {
	all, err := r.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return NewTree(all), nil
}

// Subtree returns the group followed by all its descendants.
func (r *Reader) Subtree(ctx context.Context, tenantID, id int64) ([]Group, error) {
	tree, err := r.Tree(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	root, ok := tree.Get(id)
	if !ok {
		return nil, ErrGroupNotFound
	}
	return append([]Group{root}, tree.Descendants(id)...), nil
}

// Ancestors returns the parent chain of id, nearest first.
func (r *Reader) Ancestors(ctx context.Context, tenantID, id int64) ([]Group, error) {
	tree, err := r.Tree(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return tree.Ancestors(id)
}

// DeletionBlockers reports every structural reason the group cannot be deleted.
func (r *Reader) DeletionBlockers(ctx context.Context, tenantID, id int64) error {
	return r.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		g, err := tx.GetGroup(ctx, tenantID, id)
		if err != nil {
			return err
		}
		return DeletionBlockers(ctx, tx, g)
	})
}

// DeletionBlockers checks g against the delete guards and joins every failure.
func DeletionBlockers(ctx context.Context, tx TxRepository, g Group) error {
	var errs []error
	if g.IsDefault {
		errs = append(errs, ErrDefaultGroup)
	} else if !g.IsDeletable {
		errs = append(errs, ErrNotDeletable)
	}
	children, err := tx.CountChildren(ctx, g.TenantID, g.ID)
	if err != nil {
		return err
	}
	if children > 0 {
		errs = append(errs, ErrHasChildren)
	}
	ledgers, err := tx.CountLedgers(ctx, g.TenantID, g.ID)
	if err != nil {
		return err
	}
	if ledgers > 0 {
		errs = append(errs, ErrHasLedgers)
	}
	return errors.Join(errs...)
}

// Service mutates the chart of accounts.
type Service struct {
	*Reader
	repo  Repository
	authz Authorizer
	audit AuditPort
	cache GrantCache
	now   func() time.Time
}

// NewService constructs the group service.
func NewService(repo Repository, authz Authorizer, audit AuditPort) *Service {
	return &Service{Reader: NewReader(repo), repo: repo, authz: authz, audit: audit, now: time.Now}
}

// WithGrantCache attaches the permission cache so deletes invalidate it.
func (s *Service) WithGrantCache(cache GrantCache) {
	s.cache = cache
}

// WithNow overrides the clock for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create adds a sub-group under an existing parent. The new group takes the
// parent's type, and a non-admin creator inherits their grant on the parent.
func (s *Service) Create(ctx context.Context, actor shared.Actor, in CreateInput) (Group, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := shared.Validate(in); err != nil {
		return Group{}, err
	}
	if _, err := s.Get(ctx, actor.TenantID, in.ParentID); err != nil {
		if errors.Is(err, ErrGroupNotFound) {
			return Group{}, ErrParentNotFound
		}
		return Group{}, err
	}
	if !s.authz.CanCreateSubGroup(ctx, actor, in.ParentID) {
		return Group{}, fmt.Errorf("%w: groups: cannot create sub-groups here", shared.ErrPermissionDenied)
	}

	var created Group
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		parent, err := tx.GetGroup(ctx, actor.TenantID, in.ParentID)
		if err != nil {
			if errors.Is(err, ErrGroupNotFound) {
				return ErrParentNotFound
			}
			return err
		}
		all, err := tx.ListGroups(ctx, actor.TenantID)
		if err != nil {
			return err
		}
		if _, err := NewTree(all).Ancestors(parent.ID); err != nil {
			return err
		}
		key := shared.NameKey(in.Name)
		taken, err := tx.NameTaken(ctx, actor.TenantID, key, 0)
		if err != nil {
			return err
		}
		if taken {
			return ErrDuplicateName
		}
		parentID := parent.ID
		created, err = tx.InsertGroup(ctx, Group{
			TenantID:    actor.TenantID,
			Name:        in.Name,
			Type:        parent.Type,
			ParentID:    &parentID,
			IsEditable:  true,
			IsDeletable: true,
			IsActive:    true,
			SortOrder:   in.SortOrder,
			CreatedBy:   actor.UserID,
			CreatedAt:   s.now(),
		}, key)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() {
			if _, err := tx.InheritGrant(ctx, actor.TenantID, actor.UserID, parent.ID, created.ID); err != nil {
				return fmt.Errorf("groups: inherit grant: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Group{}, err
	}
	s.record(ctx, actor, "group.create", created.ID, map[string]any{"name": created.Name, "parent_id": in.ParentID, "type": created.Type})
	return created, nil
}

// Update renames, re-parents, reorders or (de)activates a non-default group.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, in UpdateInput) (Group, error) {
	if in.Name != nil {
		trimmed := strings.TrimSpace(*in.Name)
		in.Name = &trimmed
	}
	if err := shared.Validate(in); err != nil {
		return Group{}, err
	}
	if in.Empty() {
		return Group{}, shared.NewValidationError("groups: nothing to update")
	}
	current, err := s.Get(ctx, actor.TenantID, id)
	if err != nil {
		return Group{}, err
	}
	if current.IsDefault || !current.IsEditable {
		return Group{}, ErrDefaultGroup
	}
	if !s.authz.CanEditGroup(ctx, actor, id) {
		return Group{}, fmt.Errorf("%w: groups: cannot edit this group", shared.ErrPermissionDenied)
	}

	var updated Group
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		g, err := tx.GetGroupForUpdate(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if g.IsDefault || !g.IsEditable {
			return ErrDefaultGroup
		}
		if in.Name != nil {
			taken, err := tx.NameTaken(ctx, actor.TenantID, shared.NameKey(*in.Name), g.ID)
			if err != nil {
				return err
			}
			if taken {
				return ErrDuplicateName
			}
			g.Name = *in.Name
		}
		if in.ParentID != nil && (g.ParentID == nil || *g.ParentID != *in.ParentID) {
			parent, err := tx.GetGroup(ctx, actor.TenantID, *in.ParentID)
			if err != nil {
				if errors.Is(err, ErrGroupNotFound) {
					return ErrParentNotFound
				}
				return err
			}
			if parent.Type != g.Type {
				return ErrTypeMismatch
			}
			all, err := tx.ListGroups(ctx, actor.TenantID)
			if err != nil {
				return err
			}
			cycle, err := NewTree(all).WouldCycle(g.ID, parent.ID)
			if err != nil {
				return err
			}
			if cycle {
				return ErrCycle
			}
			parentID := parent.ID
			g.ParentID = &parentID
		}
		if in.SortOrder != nil {
			g.SortOrder = *in.SortOrder
		}
		if in.IsActive != nil {
			g.IsActive = *in.IsActive
		}
		g.UpdatedAt = s.now()
		if err := tx.UpdateGroup(ctx, g, shared.NameKey(g.Name)); err != nil {
			return err
		}
		updated = g
		return nil
	})
	if err != nil {
		return Group{}, err
	}
	s.record(ctx, actor, "group.update", id, map[string]any{"name": updated.Name, "parent_id": updated.ParentID})
	return updated, nil
}

// Delete removes an empty, non-default group together with its grants.
// Every failed guard is reported, not just the first.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id int64) error {
	if err := s.DeletionBlockers(ctx, actor.TenantID, id); err != nil {
		return err
	}
	if !s.authz.CanDeleteGroup(ctx, actor, id) {
		return fmt.Errorf("%w: groups: cannot delete this group", shared.ErrPermissionDenied)
	}
	var revoked int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		g, err := tx.GetGroupForUpdate(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if err := DeletionBlockers(ctx, tx, g); err != nil {
			return err
		}
		if revoked, err = tx.DeleteGrants(ctx, actor.TenantID, id); err != nil {
			return err
		}
		return tx.DeleteGroup(ctx, actor.TenantID, id)
	})
	if err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.InvalidateGroup(ctx, actor.TenantID, id)
	}
	s.record(ctx, actor, "group.delete", id, map[string]any{"revoked_grants": revoked})
	return nil
}

func (s *Service) record(ctx context.Context, actor shared.Actor, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: actor.TenantID,
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "account_group",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	})
}
