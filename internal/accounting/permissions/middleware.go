package permissions

import (
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/pharmaledger/internal/platform/httpx"
	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

// Middleware gates routes on capabilities held on any group. Group-scoped
// checks happen again inside the services once the target is known.
type Middleware struct {
	Evaluator *Evaluator
	Logger    *slog.Logger
}

// RequireAny lets the request through when the actor holds at least one of actions.
func (m Middleware) RequireAny(actions ...Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			if len(actions) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			for _, action := range actions {
				if m.Evaluator.HasAnyPermission(r.Context(), actor, action) {
					next.ServeHTTP(w, r)
					return
				}
			}
			if m.Logger != nil {
				m.Logger.Debug("route denied", slog.Int64("user_id", actor.UserID), slog.String("path", r.URL.Path))
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
		})
	}
}

// RequireAdmin restricts a route to administrators.
func (m Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := shared.ActorFromContext(r.Context())
		if !ok {
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}
		if !actor.IsAdmin() {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}
