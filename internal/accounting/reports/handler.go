package reports

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/pharmaledger/internal/platform/httpx"
	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

// Handler exposes the reporting engine.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/trial-balance", h.trialBalance)
	r.Get("/balance-sheet", h.balanceSheet)
	r.Get("/profit-and-loss", h.profitAndLoss)
	r.Get("/cash-flow", h.cashFlow)
	r.Get("/ledger-summary", h.ledgerSummary)
	r.Get("/ledgers/{id}/statement", h.statement)
}

func asOfQuery(r *http.Request) (time.Time, error) {
	asOf, err := httpx.DateQuery(r, "as_of")
	if err != nil || asOf == nil {
		return time.Time{}, err
	}
	return *asOf, nil
}

func periodQuery(r *http.Request) (Period, error) {
	from, err := httpx.DateQuery(r, "from")
	if err != nil {
		return Period{}, err
	}
	to, err := httpx.DateQuery(r, "to")
	if err != nil {
		return Period{}, err
	}
	p := Period{From: from}
	if to != nil {
		p.To = *to
	}
	return p, nil
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	asOf, err := asOfQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), actor, asOf)
	h.respond(w, tb, err)
}

func (h *Handler) balanceSheet(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	asOf, err := asOfQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	bs, err := h.service.BalanceSheet(r.Context(), actor, asOf)
	h.respond(w, bs, err)
}

func (h *Handler) ledgerSummary(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	asOf, err := asOfQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	summary, err := h.service.LedgerSummary(r.Context(), actor, asOf)
	h.respond(w, summary, err)
}

func (h *Handler) profitAndLoss(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	period, err := periodQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	pl, err := h.service.ProfitAndLoss(r.Context(), actor, period)
	h.respond(w, pl, err)
}

func (h *Handler) cashFlow(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	period, err := periodQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	cf, err := h.service.CashFlow(r.Context(), actor, period)
	h.respond(w, cf, err)
}

func (h *Handler) statement(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	period, err := periodQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	st, err := h.service.LedgerStatement(r.Context(), actor, id, period)
	h.respond(w, st, err)
}

func (h *Handler) respond(w http.ResponseWriter, body any, err error) {
	if err != nil {
		if h.logger != nil && !shared.Expected(err) {
			h.logger.Error("report failed", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, body)
}
