package permissions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/pharmaledger/internal/accounting/groups"
	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

// GroupDirectory is the read side of the group store.
type GroupDirectory interface {
	Get(ctx context.Context, tenantID, id int64) (groups.Group, error)
	List(ctx context.Context, tenantID int64) ([]groups.Group, error)
	DeletionBlockers(ctx context.Context, tenantID, id int64) error
}

// Evaluator answers authorization questions. Every decision is fail-closed:
// lookup errors are logged and yield a denial.
type Evaluator struct {
	repo   Repository
	groups GroupDirectory
	cache  *Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewEvaluator constructs the evaluator. cache may be nil.
func NewEvaluator(repo Repository, directory GroupDirectory, cache *Cache, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{repo: repo, groups: directory, cache: cache, logger: logger, now: time.Now}
}

// WithNow overrides the clock for tests.
func (e *Evaluator) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// grant loads the user's grant on a group through the cache. A missing grant
// is (nil, nil).
func (e *Evaluator) grant(ctx context.Context, actor shared.Actor, groupID int64) (*GroupPermission, error) {
	cached, hit, err := e.cache.Get(ctx, actor.TenantID, actor.UserID, groupID)
	if err != nil {
		e.logger.Warn("permission cache read", slog.Int64("group_id", groupID), slog.Any("error", err))
	} else if hit {
		return cached, nil
	}
	p, err := e.repo.Get(ctx, actor.TenantID, actor.UserID, groupID)
	var found *GroupPermission
	switch {
	case errors.Is(err, ErrGrantNotFound):
	case err != nil:
		return nil, err
	default:
		found = &p
	}
	if err := e.cache.Put(ctx, actor.TenantID, actor.UserID, groupID, found); err != nil {
		e.logger.Warn("permission cache write", slog.Int64("group_id", groupID), slog.Any("error", err))
	}
	return found, nil
}

func (e *Evaluator) deny(actor shared.Actor, check string, err error, attrs ...any) bool {
	attrs = append(attrs,
		slog.String("check", check),
		slog.Int64("tenant_id", actor.TenantID),
		slog.Int64("user_id", actor.UserID),
		slog.Any("error", err))
	e.logger.Error("permission lookup failed, denying", attrs...)
	return false
}

// HasPermission reports whether actor may perform action on the group.
func (e *Evaluator) HasPermission(ctx context.Context, actor shared.Actor, groupID int64, action Action) bool {
	if !action.Valid() {
		e.logger.Warn("unknown permission action", slog.String("action", string(action)))
		return false
	}
	if actor.IsAdmin() {
		return true
	}
	p, err := e.grant(ctx, actor, groupID)
	if err != nil {
		return e.deny(actor, "has_permission", err, slog.Int64("group_id", groupID))
	}
	return p != nil && p.Grants(action, e.now())
}

// HasAnyPermission reports whether any of the actor's grants confers action.
func (e *Evaluator) HasAnyPermission(ctx context.Context, actor shared.Actor, action Action) bool {
	if !action.Valid() {
		return false
	}
	if actor.IsAdmin() {
		return true
	}
	grants, err := e.repo.ListForUser(ctx, actor.TenantID, actor.UserID)
	if err != nil {
		return e.deny(actor, "has_any_permission", err)
	}
	now := e.now()
	for _, p := range grants {
		if p.Grants(action, now) {
			return true
		}
	}
	return false
}

// CanCreateSubGroup requires the parent to exist and the create flag on it.
func (e *Evaluator) CanCreateSubGroup(ctx context.Context, actor shared.Actor, parentID int64) bool {
	if _, err := e.groups.Get(ctx, actor.TenantID, parentID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false
		}
		return e.deny(actor, "can_create_sub_group", err, slog.Int64("group_id", parentID))
	}
	return e.HasPermission(ctx, actor, parentID, ActionCreateSubGroup)
}

// CanEditGroup requires a non-default, editable group and the edit flag.
func (e *Evaluator) CanEditGroup(ctx context.Context, actor shared.Actor, groupID int64) bool {
	g, err := e.groups.Get(ctx, actor.TenantID, groupID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false
		}
		return e.deny(actor, "can_edit_group", err, slog.Int64("group_id", groupID))
	}
	if g.IsDefault || !g.IsEditable {
		return false
	}
	return e.HasPermission(ctx, actor, groupID, ActionEditGroup)
}

// CanDeleteGroup requires every structural delete guard to pass and the delete flag.
func (e *Evaluator) CanDeleteGroup(ctx context.Context, actor shared.Actor, groupID int64) bool {
	if err := e.groups.DeletionBlockers(ctx, actor.TenantID, groupID); err != nil {
		if errors.Is(err, shared.ErrPermissionDenied) || errors.Is(err, shared.ErrNotFound) {
			return false
		}
		return e.deny(actor, "can_delete_group", err, slog.Int64("group_id", groupID))
	}
	return e.HasPermission(ctx, actor, groupID, ActionDeleteGroup)
}

// Authorize converts HasPermission into an error for service call sites.
func (e *Evaluator) Authorize(ctx context.Context, actor shared.Actor, groupID int64, action Action) error {
	if e.HasPermission(ctx, actor, groupID, action) {
		return nil
	}
	return fmt.Errorf("%w: %s on group %d", shared.ErrPermissionDenied, action, groupID)
}

// AccessibleGroups returns every active group for admins, otherwise the
// groups on which the actor holds a usable grant.
func (e *Evaluator) AccessibleGroups(ctx context.Context, actor shared.Actor) ([]groups.Group, error) {
	all, err := e.groups.List(ctx, actor.TenantID)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() {
		out := make([]groups.Group, 0, len(all))
		for _, g := range all {
			if g.IsActive {
				out = append(out, g)
			}
		}
		return out, nil
	}
	visible, err := e.visibleSet(ctx, actor)
	if err != nil {
		return nil, err
	}
	out := make([]groups.Group, 0, len(visible))
	for _, g := range all {
		if _, ok := visible[g.ID]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

// Hierarchy assembles the accessible groups into trees.
func (e *Evaluator) Hierarchy(ctx context.Context, actor shared.Actor) ([]*groups.Node, error) {
	all, err := e.groups.List(ctx, actor.TenantID)
	if err != nil {
		return nil, err
	}
	tree := groups.NewTree(all)
	if actor.IsAdmin() {
		return tree.Forest(func(g groups.Group) bool { return g.IsActive }), nil
	}
	visible, err := e.visibleSet(ctx, actor)
	if err != nil {
		return nil, err
	}
	return tree.Forest(func(g groups.Group) bool {
		_, ok := visible[g.ID]
		return ok
	}), nil
}

func (e *Evaluator) visibleSet(ctx context.Context, actor shared.Actor) (map[int64]struct{}, error) {
	grants, err := e.repo.ListForUser(ctx, actor.TenantID, actor.UserID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	visible := make(map[int64]struct{}, len(grants))
	for _, p := range grants {
		if p.Usable(now) {
			visible[p.GroupID] = struct{}{}
		}
	}
	return visible, nil
}
