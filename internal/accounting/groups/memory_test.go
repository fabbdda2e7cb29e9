package groups

import (
	"context"
	"sort"
	"sync"

	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

type grantKey struct {
	tenant, user, group int64
}

type memoryRepo struct {
	mu      sync.Mutex
	nextID  int64
	groups  map[int64]Group
	keys    map[int64]string
	ledgers map[int64]int
	grants  map[grantKey]bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		groups:  make(map[int64]Group),
		keys:    make(map[int64]string),
		ledgers: make(map[int64]int),
		grants:  make(map[grantKey]bool),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := r.clone()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.restore(snapshot)
		return err
	}
	return nil
}

func (r *memoryRepo) clone() *memoryRepo {
	c := newMemoryRepo()
	c.nextID = r.nextID
	for k, v := range r.groups {
		c.groups[k] = v
	}
	for k, v := range r.keys {
		c.keys[k] = v
	}
	for k, v := range r.ledgers {
		c.ledgers[k] = v
	}
	for k, v := range r.grants {
		c.grants[k] = v
	}
	return c
}

func (r *memoryRepo) restore(c *memoryRepo) {
	r.nextID, r.groups, r.keys, r.ledgers, r.grants = c.nextID, c.groups, c.keys, c.ledgers, c.grants
}

func (r *memoryRepo) add(g Group) Group {
	r.nextID++
	g.ID = r.nextID
	r.groups[g.ID] = g
	r.keys[g.ID] = shared.NameKey(g.Name)
	return g
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) GetGroup(ctx context.Context, tenantID, id int64) (Group, error) {
	g, ok := tx.repo.groups[id]
	if !ok || g.TenantID != tenantID {
		return Group{}, ErrGroupNotFound
	}
	return g, nil
}

func (tx *memoryTx) GetGroupForUpdate(ctx context.Context, tenantID, id int64) (Group, error) {
	return tx.GetGroup(ctx, tenantID, id)
}

func (tx *memoryTx) ListGroups(ctx context.Context, tenantID int64) ([]Group, error) {
	var out []Group
	for _, g := range tx.repo.groups {
		if g.TenantID == tenantID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memoryTx) NameTaken(ctx context.Context, tenantID int64, nameKey string, excludeID int64) (bool, error) {
	for id, key := range tx.repo.keys {
		if key == nameKey && id != excludeID && tx.repo.groups[id].TenantID == tenantID {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) InsertGroup(ctx context.Context, g Group, nameKey string) (Group, error) {
	if taken, _ := tx.NameTaken(ctx, g.TenantID, nameKey, 0); taken {
		return Group{}, ErrDuplicateName
	}
	return tx.repo.add(g), nil
}

func (tx *memoryTx) UpdateGroup(ctx context.Context, g Group, nameKey string) error {
	if _, ok := tx.repo.groups[g.ID]; !ok {
		return ErrGroupNotFound
	}
	tx.repo.groups[g.ID] = g
	tx.repo.keys[g.ID] = nameKey
	return nil
}

func (tx *memoryTx) DeleteGroup(ctx context.Context, tenantID, id int64) error {
	if _, err := tx.GetGroup(ctx, tenantID, id); err != nil {
		return err
	}
	delete(tx.repo.groups, id)
	delete(tx.repo.keys, id)
	return nil
}

func (tx *memoryTx) CountChildren(ctx context.Context, tenantID, id int64) (int, error) {
	n := 0
	for _, g := range tx.repo.groups {
		if g.TenantID == tenantID && g.ParentID != nil && *g.ParentID == id {
			n++
		}
	}
	return n, nil
}

func (tx *memoryTx) CountLedgers(ctx context.Context, tenantID, id int64) (int, error) {
	return tx.repo.ledgers[id], nil
}

func (tx *memoryTx) DeleteGrants(ctx context.Context, tenantID, groupID int64) (int64, error) {
	var n int64
	for k := range tx.repo.grants {
		if k.tenant == tenantID && k.group == groupID {
			delete(tx.repo.grants, k)
			n++
		}
	}
	return n, nil
}

func (tx *memoryTx) InheritGrant(ctx context.Context, tenantID, userID, fromGroupID, toGroupID int64) (bool, error) {
	if !tx.repo.grants[grantKey{tenantID, userID, fromGroupID}] {
		return false, nil
	}
	tx.repo.grants[grantKey{tenantID, userID, toGroupID}] = true
	return true, nil
}

type allowAll struct{ allow bool }

func (a allowAll) CanCreateSubGroup(ctx context.Context, actor shared.Actor, parentID int64) bool {
	return a.allow
}

func (a allowAll) CanEditGroup(ctx context.Context, actor shared.Actor, groupID int64) bool {
	return a.allow
}

func (a allowAll) CanDeleteGroup(ctx context.Context, actor shared.Actor, groupID int64) bool {
	return a.allow
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type recordingCache struct {
	invalidated []int64
}

func (c *recordingCache) InvalidateGroup(ctx context.Context, tenantID, groupID int64) error {
	c.invalidated = append(c.invalidated, groupID)
	return nil
}
