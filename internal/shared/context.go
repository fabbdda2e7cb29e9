package shared

import "context"

// RoleAdmin bypasses group permission checks entirely.
const RoleAdmin = "admin"

// Actor is the authenticated caller resolved by the HTTP layer.
type Actor struct {
	TenantID int64
	UserID   int64
	Role     string
}

// IsAdmin reports whether the actor carries the administrator role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	if !ok || actor.UserID == 0 || actor.TenantID == 0 {
		return Actor{}, false
	}
	return actor, true
}
