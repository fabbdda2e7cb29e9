package ledgers

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/pharmaledger/internal/accounting/groups"
	"github.com/odyssey-erp/pharmaledger/internal/accounting/permissions"
	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

// grantTable is the smallest grant store the evaluator can run against.
type grantTable map[int64]permissions.GroupPermission

func (g grantTable) Get(ctx context.Context, tenantID, userID, groupID int64) (permissions.GroupPermission, error) {
	p, ok := g[groupID]
	if !ok || p.TenantID != tenantID || p.UserID != userID {
		return permissions.GroupPermission{}, permissions.ErrGrantNotFound
	}
	return p, nil
}

func (g grantTable) ListForUser(ctx context.Context, tenantID, userID int64) ([]permissions.GroupPermission, error) {
	var out []permissions.GroupPermission
	for _, p := range g {
		if p.TenantID == tenantID && p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (g grantTable) ListForGroup(ctx context.Context, tenantID, groupID int64) ([]permissions.GroupPermission, error) {
	return nil, nil
}

func (g grantTable) Upsert(ctx context.Context, p permissions.GroupPermission) (permissions.GroupPermission, error) {
	g[p.GroupID] = p
	return p, nil
}

func (g grantTable) Delete(ctx context.Context, tenantID, userID, groupID int64) error {
	delete(g, groupID)
	return nil
}

func (g grantTable) ExpireBefore(ctx context.Context, now time.Time) ([]permissions.GroupPermission, error) {
	return nil, nil
}

type noDirectory struct{}

func (noDirectory) Get(ctx context.Context, tenantID, id int64) (groups.Group, error) {
	return groups.Group{}, groups.ErrGroupNotFound
}

func (noDirectory) List(ctx context.Context, tenantID int64) ([]groups.Group, error) {
	return nil, nil
}

func (noDirectory) DeletionBlockers(ctx context.Context, tenantID, id int64) error {
	return nil
}

func TestUnknownGroupIsNotFoundBeforeAuthorization(t *testing.T) {
	const foreignGroup = int64(99)
	repo := newMemoryRepo(cashGroup, salesGroup)
	repo.groups[foreignGroup] = 2

	grants := grantTable{cashGroup: {
		TenantID: clerk.TenantID,
		UserID:   clerk.UserID,
		GroupID:  cashGroup,
		Status:   permissions.StatusActive,
		Capabilities: permissions.Capabilities{
			CanViewLedger: true, CanCreateLedger: true, CanEditLedger: true,
		},
	}}
	evaluator := permissions.NewEvaluator(grants, noDirectory{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	evaluator.WithNow(func() time.Time { return day(1) })
	svc := NewService(repo, evaluator, &recordingAudit{})
	svc.WithNow(func() time.Time { return day(1) })
	ctx := context.Background()

	for _, groupID := range []int64{777, foreignGroup} {
		_, err := svc.Create(ctx, clerk, CreateInput{Name: "Till", GroupID: groupID, BalanceType: "debit"})
		require.ErrorIs(t, err, shared.ErrNotFound)
		require.NotErrorIs(t, err, shared.ErrPermissionDenied)
	}

	// A known group without a grant is still a denial.
	_, err := svc.Create(ctx, clerk, CreateInput{Name: "Till", GroupID: salesGroup, BalanceType: "debit"})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)

	till, err := svc.Create(ctx, clerk, CreateInput{Name: "Till", GroupID: cashGroup, BalanceType: "debit"})
	require.NoError(t, err)

	for _, groupID := range []int64{777, foreignGroup} {
		target := groupID
		_, err = svc.Update(ctx, clerk, till.ID, UpdateInput{GroupID: &target})
		require.ErrorIs(t, err, shared.ErrNotFound)
	}
	target := salesGroup
	_, err = svc.Update(ctx, clerk, till.ID, UpdateInput{GroupID: &target})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
}
