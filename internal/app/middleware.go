package app

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/odyssey-erp/pharmaledger/internal/observability"
	"github.com/odyssey-erp/pharmaledger/internal/platform/httpx"
	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

const (
	// HeaderTenantID carries the tenant resolved by the upstream authenticator.
	HeaderTenantID = "X-Tenant-ID"
	// HeaderUserID carries the user resolved by the upstream authenticator.
	HeaderUserID = "X-User-ID"
)

// ActorResolver maps authenticated identifiers onto an actor with its role.
type ActorResolver interface {
	ResolveActor(ctx context.Context, tenantID, userID int64) (shared.Actor, error)
}

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack installs the middleware chain applied to every route.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 45 * time.Second
	limit := 120
	if cfg.Config != nil {
		if cfg.Config.AppRequestTimeout > 0 {
			timeout = cfg.Config.AppRequestTimeout
		}
		if cfg.Config.RateLimitPerMinute > 0 {
			limit = cfg.Config.RateLimitPerMinute
		}
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					logger(cfg.Logger).Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(limit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, cfg.Metrics.Middleware)
	}
	return middlewares
}

// ActorMiddleware resolves the calling actor from the upstream identity headers.
// Requests without headers pass through anonymously; handlers answer 401.
// Headers naming an unknown user are rejected here.
func ActorMiddleware(resolver ActorResolver, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawTenant := r.Header.Get(HeaderTenantID)
			rawUser := r.Header.Get(HeaderUserID)
			if rawTenant == "" && rawUser == "" {
				next.ServeHTTP(w, r)
				return
			}
			tenantID, errTenant := strconv.ParseInt(rawTenant, 10, 64)
			userID, errUser := strconv.ParseInt(rawUser, 10, 64)
			if errTenant != nil || errUser != nil || tenantID <= 0 || userID <= 0 {
				httpx.Problem(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized), "malformed identity headers")
				return
			}
			actor, err := resolver.ResolveActor(r.Context(), tenantID, userID)
			if err != nil {
				if !shared.Expected(err) {
					logger(log).Error("resolve actor", slog.Int64("tenant_id", tenantID), slog.Int64("user_id", userID), slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
		})
	}
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
