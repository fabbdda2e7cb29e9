package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/pharmaledger/internal/accounting/groups"
	"github.com/odyssey-erp/pharmaledger/internal/accounting/ledgers"
	"github.com/odyssey-erp/pharmaledger/internal/accounting/permissions"
	"github.com/odyssey-erp/pharmaledger/internal/accounting/reports"
	"github.com/odyssey-erp/pharmaledger/internal/accounting/vouchers"
	"github.com/odyssey-erp/pharmaledger/internal/observability"
	"github.com/odyssey-erp/pharmaledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger        *slog.Logger
	Config        *Config
	ActorResolver ActorResolver
	Evaluator     *permissions.Evaluator
	Metrics       *observability.Metrics

	GroupsHandler      *groups.Handler
	PermissionsHandler *permissions.Handler
	LedgersHandler     *ledgers.Handler
	VouchersHandler    *vouchers.Handler
	ReportsHandler     *reports.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with the ledger API mounted.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	r.Group(func(r chi.Router) {
		if params.ActorResolver != nil {
			r.Use(ActorMiddleware(params.ActorResolver, params.Logger))
		}
		if params.GroupsHandler != nil {
			r.Route("/groups", params.GroupsHandler.MountRoutes)
		}
		if params.PermissionsHandler != nil {
			r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		}
		if params.LedgersHandler != nil {
			r.Route("/ledgers", params.LedgersHandler.MountRoutes)
		}
		if params.VouchersHandler != nil {
			r.Route("/vouchers", params.VouchersHandler.MountRoutes)
		}
		if params.ReportsHandler != nil {
			r.Route("/reports", func(r chi.Router) {
				if params.Evaluator != nil {
					gate := permissions.Middleware{Evaluator: params.Evaluator, Logger: params.Logger}
					r.Use(gate.RequireAny(permissions.ActionViewReport, permissions.ActionViewBalance))
				}
				params.ReportsHandler.MountRoutes(r)
			})
		}
		if params.JobHandler != nil {
			r.Route("/jobs", func(r chi.Router) {
				gate := permissions.Middleware{Evaluator: params.Evaluator, Logger: params.Logger}
				r.Use(gate.RequireAdmin)
				params.JobHandler.MountRoutes(r)
			})
		}
	})

	return r
}
