package groups

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

var (
	tenant = int64(7)
	clerk  = shared.Actor{TenantID: 7, UserID: 42, Role: "accountant"}
	admin  = shared.Actor{TenantID: 7, UserID: 1, Role: shared.RoleAdmin}
)

func seededService(t *testing.T) (*Service, *memoryRepo, map[string]Group) {
	t.Helper()
	repo := newMemoryRepo()
	svc := NewService(repo, allowAll{allow: true}, &recordingAudit{})
	svc.WithNow(func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) })
	seeded, err := svc.Seed(context.Background(), tenant, admin.UserID)
	require.NoError(t, err)
	byName := make(map[string]Group, len(seeded))
	for _, g := range seeded {
		byName[g.Name] = g
	}
	return svc, repo, byName
}

func TestSeedIsIdempotent(t *testing.T) {
	svc, repo, chart := seededService(t)
	require.Len(t, chart, len(DefaultChart()))
	require.True(t, chart["Cash-in-Hand"].IsDefault)
	require.Equal(t, chart["Current Assets"].ID, *chart["Cash-in-Hand"].ParentID)

	again, err := svc.Seed(context.Background(), tenant, admin.UserID)
	require.NoError(t, err)
	require.Len(t, again, len(DefaultChart()))
	require.Len(t, repo.groups, len(DefaultChart()))
}

func TestCreateInheritsTypeAndGrant(t *testing.T) {
	svc, repo, chart := seededService(t)
	assets := chart["Current Assets"]
	repo.grants[grantKey{tenant, clerk.UserID, assets.ID}] = true

	g, err := svc.Create(context.Background(), clerk, CreateInput{Name: "  Petty Cash Boxes ", ParentID: assets.ID})
	require.NoError(t, err)
	require.Equal(t, "Petty Cash Boxes", g.Name)
	require.Equal(t, TypeAsset, g.Type)
	require.False(t, g.IsDefault)
	require.True(t, g.IsEditable)
	require.True(t, repo.grants[grantKey{tenant, clerk.UserID, g.ID}])
}

func TestCreateRejectsDuplicateNameCaseInsensitive(t *testing.T) {
	svc, _, chart := seededService(t)
	_, err := svc.Create(context.Background(), admin, CreateInput{Name: "sundry DEBTORS", ParentID: chart["Current Assets"].ID})
	require.ErrorIs(t, err, ErrDuplicateName)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreateRejectsUnknownParentAndDeniedCaller(t *testing.T) {
	svc, _, chart := seededService(t)
	_, err := svc.Create(context.Background(), admin, CreateInput{Name: "Orphans", ParentID: 9999})
	require.ErrorIs(t, err, shared.ErrNotFound)

	svc.authz = allowAll{allow: false}
	_, err = svc.Create(context.Background(), clerk, CreateInput{Name: "Blocked", ParentID: chart["Investments"].ID})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
}

func TestDefaultGroupsAreImmutable(t *testing.T) {
	svc, _, chart := seededService(t)
	name := "Renamed"
	_, err := svc.Update(context.Background(), admin, chart["Fixed Assets"].ID, UpdateInput{Name: &name})
	require.ErrorIs(t, err, ErrDefaultGroup)

	err = svc.Delete(context.Background(), admin, chart["Fixed Assets"].ID)
	require.ErrorIs(t, err, ErrDefaultGroup)
}

func TestUpdateDetectsCycleAndTypeMismatch(t *testing.T) {
	svc, _, chart := seededService(t)
	ctx := context.Background()
	parent, err := svc.Create(ctx, admin, CreateInput{Name: "Branch Cash", ParentID: chart["Cash-in-Hand"].ID})
	require.NoError(t, err)
	child, err := svc.Create(ctx, admin, CreateInput{Name: "Branch Cash North", ParentID: parent.ID})
	require.NoError(t, err)

	_, err = svc.Update(ctx, admin, parent.ID, UpdateInput{ParentID: &child.ID})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Equal(t, ErrCycle, err)

	_, err = svc.Update(ctx, admin, parent.ID, UpdateInput{ParentID: &parent.ID})
	require.Equal(t, ErrCycle, err)

	income := chart["Indirect Incomes"].ID
	_, err = svc.Update(ctx, admin, child.ID, UpdateInput{ParentID: &income})
	require.Equal(t, ErrTypeMismatch, err)

	banks := chart["Bank Accounts"].ID
	moved, err := svc.Update(ctx, admin, child.ID, UpdateInput{ParentID: &banks})
	require.NoError(t, err)
	require.Equal(t, banks, *moved.ParentID)
}

func TestDeleteReportsEveryBlocker(t *testing.T) {
	svc, repo, chart := seededService(t)
	ctx := context.Background()
	parent, err := svc.Create(ctx, admin, CreateInput{Name: "Regional Banks", ParentID: chart["Bank Accounts"].ID})
	require.NoError(t, err)
	child, err := svc.Create(ctx, admin, CreateInput{Name: "Regional Bank East", ParentID: parent.ID})
	require.NoError(t, err)
	repo.ledgers[parent.ID] = 2

	err = svc.Delete(ctx, admin, parent.ID)
	require.ErrorIs(t, err, ErrHasChildren)
	require.ErrorIs(t, err, ErrHasLedgers)
	require.ErrorIs(t, err, shared.ErrPermissionDenied)

	// Clearing both blockers lets the delete through.
	require.NoError(t, svc.Delete(ctx, admin, child.ID))
	err = svc.Delete(ctx, admin, parent.ID)
	require.ErrorIs(t, err, ErrHasLedgers)
	require.NotErrorIs(t, err, ErrHasChildren)
	repo.ledgers[parent.ID] = 0

	require.NoError(t, svc.Delete(ctx, admin, parent.ID))
	_, err = svc.Get(ctx, tenant, parent.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteCascadesGrantsAndInvalidatesCache(t *testing.T) {
	svc, repo, chart := seededService(t)
	cache := &recordingCache{}
	svc.WithGrantCache(cache)
	ctx := context.Background()
	g, err := svc.Create(ctx, admin, CreateInput{Name: "Temporary", ParentID: chart["Investments"].ID})
	require.NoError(t, err)
	repo.grants[grantKey{tenant, clerk.UserID, g.ID}] = true

	require.NoError(t, svc.Delete(ctx, admin, g.ID))
	require.False(t, repo.grants[grantKey{tenant, clerk.UserID, g.ID}])
	require.Equal(t, []int64{g.ID}, cache.invalidated)

	_, err = svc.Get(ctx, tenant, g.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCrossTenantLookupIsNotFound(t *testing.T) {
	svc, _, chart := seededService(t)
	_, err := svc.Get(context.Background(), tenant+1, chart["Investments"].ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
