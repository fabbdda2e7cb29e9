package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/pharmaledger/internal/observability"
	"github.com/odyssey-erp/pharmaledger/internal/platform/httpx"
	"github.com/odyssey-erp/pharmaledger/internal/shared"
	_ "github.com/odyssey-erp/pharmaledger/internal/testing/guard"
	"github.com/odyssey-erp/pharmaledger/jobs"
)

type stubResolver struct {
	calls int
}

func (s *stubResolver) ResolveActor(_ context.Context, tenantID, userID int64) (shared.Actor, error) {
	s.calls++
	if userID == 99 {
		return shared.Actor{}, shared.ErrUnauthenticated
	}
	if userID == 1 {
		return shared.Actor{TenantID: tenantID, UserID: userID, Role: shared.RoleAdmin}, nil
	}
	return shared.Actor{TenantID: tenantID, UserID: userID, Role: "accountant"}, nil
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 500, cfg.ReportBatchSize)
	require.Equal(t, 120, cfg.RateLimitPerMinute)
	require.Equal(t, "0 3 * * *", cfg.IntegrityCron)
	require.Equal(t, 366*24, int(cfg.ReportMaxRange.Hours()))
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsNonPositive(t *testing.T) {
	t.Setenv("REPORT_BATCH_SIZE", "0")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "-1")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "REPORT_BATCH_SIZE")
	require.ErrorContains(t, err, "RATE_LIMIT_PER_MINUTE")
}

func TestInTestMode(t *testing.T) {
	RefreshTestMode()
	require.True(t, InTestMode())
}

func TestRouterHealthAndHeaders(t *testing.T) {
	metrics := observability.NewMetrics()
	router := NewRouter(RouterParams{Config: &Config{AppEnv: "test"}, Metrics: metrics})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "pharmaledger_http_requests_total")
}

func TestJobRoutesRequireAdmin(t *testing.T) {
	router := NewRouter(RouterParams{
		Config:        &Config{AppEnv: "test"},
		ActorResolver: &stubResolver{},
		JobHandler:    jobs.NewHandler(nil, nil),
	})
	cases := []struct {
		name   string
		user   string
		status int
	}{
		{name: "anonymous", status: http.StatusUnauthorized},
		{name: "accountant", user: "5", status: http.StatusForbidden},
		{name: "admin", user: "1", status: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/jobs/health", nil)
			if tc.user != "" {
				req.Header.Set(HeaderTenantID, "9")
				req.Header.Set(HeaderUserID, tc.user)
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			require.Equal(t, tc.status, rr.Code)
		})
	}
}

func actorEcho() http.Handler {
	r := chi.NewRouter()
	r.Use(ActorMiddleware(&stubResolver{}, nil))
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		actor, ok := httpx.RequireActor(w, r)
		if !ok {
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"tenant": actor.TenantID, "user": actor.UserID})
	})
	return r
}

func TestActorMiddleware(t *testing.T) {
	cases := []struct {
		name   string
		tenant string
		user   string
		status int
	}{
		{name: "resolved", tenant: "9", user: "5", status: http.StatusOK},
		{name: "anonymous", status: http.StatusUnauthorized},
		{name: "malformed", tenant: "nine", user: "5", status: http.StatusUnauthorized},
		{name: "missing user", tenant: "9", status: http.StatusUnauthorized},
		{name: "unknown user", tenant: "9", user: "99", status: http.StatusUnauthorized},
	}
	handler := actorEcho()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.tenant != "" {
				req.Header.Set(HeaderTenantID, tc.tenant)
			}
			if tc.user != "" {
				req.Header.Set(HeaderUserID, tc.user)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			require.Equal(t, tc.status, rr.Code)
			if tc.status == http.StatusOK {
				require.JSONEq(t, `{"tenant":9,"user":5}`, rr.Body.String())
			}
		})
	}
}
