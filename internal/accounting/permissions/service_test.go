package permissions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

func newService(repo *memoryRepo) (*Service, *recordingAudit) {
	audit := &recordingAudit{}
	svc := NewService(repo, chart(), staff(), nil, audit)
	svc.WithNow(func() time.Time { return now })
	return svc, audit
}

func TestGrantRequiresAdminAndKnownGroup(t *testing.T) {
	svc, _ := newService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Grant(ctx, clerk, GrantInput{UserID: 5, GroupID: 2})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)

	_, err = svc.Grant(ctx, admin, GrantInput{UserID: 5, GroupID: 77})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.Grant(ctx, admin, GrantInput{GroupID: 2})
	require.ErrorIs(t, err, shared.ErrValidation)

	from := now
	to := now.Add(-time.Hour)
	_, err = svc.Grant(ctx, admin, GrantInput{UserID: 5, GroupID: 2, EffectiveFrom: &from, EffectiveTo: &to})
	require.ErrorIs(t, err, ErrBadWindow)
}

func TestGrantRequiresKnownUserInTenant(t *testing.T) {
	repo := newMemoryRepo()
	svc, audit := newService(repo)
	ctx := context.Background()

	// 404 is unknown; 8 belongs to another tenant.
	for _, userID := range []int64{404, 8} {
		_, err := svc.Grant(ctx, admin, GrantInput{UserID: userID, GroupID: 2, Capabilities: Capabilities{CanViewLedger: true}})
		require.ErrorIs(t, err, ErrUserNotFound)
		require.ErrorIs(t, err, shared.ErrNotFound)
	}
	rows, err := repo.ListForGroup(ctx, admin.TenantID, 2)
	require.NoError(t, err)
	require.Empty(t, rows)
	require.Empty(t, audit.logs)
}

func TestGrantUpsertsAndAudits(t *testing.T) {
	repo := newMemoryRepo()
	svc, audit := newService(repo)
	ctx := context.Background()

	first, err := svc.Grant(ctx, admin, GrantInput{UserID: 5, GroupID: 2, Capabilities: Capabilities{CanViewLedger: true}})
	require.NoError(t, err)
	second, err := svc.Grant(ctx, admin, GrantInput{UserID: 5, GroupID: 2, Capabilities: Capabilities{CanEditLedger: true}})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.False(t, second.CanViewLedger)
	require.True(t, second.CanEditLedger)
	require.Equal(t, admin.UserID, second.GrantedBy)
	require.Len(t, audit.logs, 2)
	require.Equal(t, "permission.grant", audit.logs[0].Action)

	own, err := svc.ListForUser(ctx, shared.Actor{TenantID: 3, UserID: 5}, 5)
	require.NoError(t, err)
	require.Len(t, own, 1)
	_, err = svc.ListForUser(ctx, clerk, 5)
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
}

func TestExpireGrantsMarksInactive(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newService(repo)
	yesterday := now.Add(-24 * time.Hour)
	grant(repo, 2, Capabilities{CanViewLedger: true}, func(p *GroupPermission) { p.EffectiveTo = &yesterday })
	grant(repo, 3, Capabilities{CanViewLedger: true})

	n, err := svc.ExpireGrants(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, StatusInactive, repo.rows[key{3, 11, 2}].Status)
	require.Equal(t, StatusActive, repo.rows[key{3, 11, 3}].Status)

	err = svc.Revoke(context.Background(), admin, 11, 99)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
