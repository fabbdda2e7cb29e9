package users

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

type stubRepo struct {
	users map[int64]User
	err   error
}

func (r stubRepo) GetUser(ctx context.Context, tenantID, userID int64) (User, error) {
	if r.err != nil {
		return User{}, r.err
	}
	u, ok := r.users[userID]
	if !ok || u.TenantID != tenantID {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

func TestResolveActor(t *testing.T) {
	repo := stubRepo{users: map[int64]User{
		1: {ID: 1, TenantID: 10, Role: shared.RoleAdmin, IsActive: true},
		2: {ID: 2, TenantID: 10, Role: "pharmacist", IsActive: false},
	}}
	svc := NewService(repo)
	ctx := context.Background()

	actor, err := svc.ResolveActor(ctx, 10, 1)
	require.NoError(t, err)
	require.True(t, actor.IsAdmin())

	_, err = svc.ResolveActor(ctx, 10, 2)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)

	_, err = svc.ResolveActor(ctx, 11, 1)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)

	_, err = svc.ResolveActor(ctx, 0, 1)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestResolveActorSurfacesStoreErrors(t *testing.T) {
	svc := NewService(stubRepo{err: errors.New("db down")})
	_, err := svc.ResolveActor(context.Background(), 10, 1)
	require.Error(t, err)
	require.NotErrorIs(t, err, shared.ErrUnauthenticated)
}
