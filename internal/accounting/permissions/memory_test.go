package permissions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/pharmaledger/internal/accounting/groups"
	"github.com/odyssey-erp/pharmaledger/internal/shared"
	"github.com/odyssey-erp/pharmaledger/internal/users"
)

type key struct {
	tenant, user, group int64
}

type memoryRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[key]GroupPermission
	err    error
	gets   int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: make(map[key]GroupPermission)}
}

func (r *memoryRepo) Get(ctx context.Context, tenantID, userID, groupID int64) (GroupPermission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	if r.err != nil {
		return GroupPermission{}, r.err
	}
	p, ok := r.rows[key{tenantID, userID, groupID}]
	if !ok {
		return GroupPermission{}, ErrGrantNotFound
	}
	return p, nil
}

func (r *memoryRepo) list(match func(GroupPermission) bool) ([]GroupPermission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []GroupPermission
	for _, p := range r.rows {
		if match(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) ListForUser(ctx context.Context, tenantID, userID int64) ([]GroupPermission, error) {
	return r.list(func(p GroupPermission) bool { return p.TenantID == tenantID && p.UserID == userID })
}

func (r *memoryRepo) ListForGroup(ctx context.Context, tenantID, groupID int64) ([]GroupPermission, error) {
	return r.list(func(p GroupPermission) bool { return p.TenantID == tenantID && p.GroupID == groupID })
}

func (r *memoryRepo) Upsert(ctx context.Context, p GroupPermission) (GroupPermission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{p.TenantID, p.UserID, p.GroupID}
	if existing, ok := r.rows[k]; ok {
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	} else {
		r.nextID++
		p.ID = r.nextID
		p.CreatedAt = p.UpdatedAt
	}
	r.rows[k] = p
	return p, nil
}

func (r *memoryRepo) Delete(ctx context.Context, tenantID, userID, groupID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{tenantID, userID, groupID}
	if _, ok := r.rows[k]; !ok {
		return ErrGrantNotFound
	}
	delete(r.rows, k)
	return nil
}

func (r *memoryRepo) ExpireBefore(ctx context.Context, now time.Time) ([]GroupPermission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []GroupPermission
	for k, p := range r.rows {
		if p.Status == StatusActive && p.EffectiveTo != nil && p.EffectiveTo.Before(now) {
			p.Status = StatusInactive
			r.rows[k] = p
			out = append(out, p)
		}
	}
	return out, nil
}

type stubDirectory struct {
	groups   map[int64]groups.Group
	blockers map[int64]error
	err      error
}

func (d stubDirectory) Get(ctx context.Context, tenantID, id int64) (groups.Group, error) {
	if d.err != nil {
		return groups.Group{}, d.err
	}
	g, ok := d.groups[id]
	if !ok || g.TenantID != tenantID {
		return groups.Group{}, groups.ErrGroupNotFound
	}
	return g, nil
}

func (d stubDirectory) List(ctx context.Context, tenantID int64) ([]groups.Group, error) {
	if d.err != nil {
		return nil, d.err
	}
	var out []groups.Group
	for _, g := range d.groups {
		if g.TenantID == tenantID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (d stubDirectory) DeletionBlockers(ctx context.Context, tenantID, id int64) error {
	if _, err := d.Get(ctx, tenantID, id); err != nil {
		return err
	}
	return d.blockers[id]
}

// stubUsers knows users by id; each belongs to its mapped tenant.
type stubUsers map[int64]int64

func (u stubUsers) GetUser(ctx context.Context, tenantID, userID int64) (users.User, error) {
	owner, ok := u[userID]
	if !ok || owner != tenantID {
		return users.User{}, shared.ErrNotFound
	}
	return users.User{ID: userID, TenantID: owner, IsActive: true}, nil
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}
