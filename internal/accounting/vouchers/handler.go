package vouchers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/pharmaledger/internal/platform/httpx"
	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

// Handler exposes the transaction engine.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers voucher routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/stats", h.stats)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.update)
	r.Delete("/{id}", h.delete)
	r.Post("/{id}/post", h.post)
	r.Post("/{id}/cancel", h.cancel)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, page, err := h.service.List(r.Context(), actor, filter)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"vouchers": out, "pagination": page})
}

func parseFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	filter := ListFilter{
		LedgerID: int64(httpx.IntQuery(r, "ledger_id", 0)),
		Page:     shared.Pagination{Page: httpx.IntQuery(r, "page", 1), PerPage: httpx.IntQuery(r, "per_page", 20)},
	}
	if raw := q.Get("type"); raw != "" {
		t, err := ParseType(raw)
		if err != nil {
			return ListFilter{}, err
		}
		filter.Type = t
	}
	if raw := q.Get("status"); raw != "" {
		s := Status(raw)
		if s != StatusDraft && s != StatusPosted && s != StatusCancelled {
			return ListFilter{}, shared.NewValidationError("unknown voucher status", "status")
		}
		filter.Status = s
	}
	var err error
	if filter.From, err = httpx.DateQuery(r, "from"); err != nil {
		return ListFilter{}, err
	}
	if filter.To, err = httpx.DateQuery(r, "to"); err != nil {
		return ListFilter{}, err
	}
	return filter, nil
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, v)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in UpdateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.Update(r.Context(), actor, id, in)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.Post(r.Context(), actor, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req cancelRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
		if err := shared.Validate(req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	v, err := h.service.Cancel(r.Context(), actor, id, req.Reason)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	from, err := httpx.DateQuery(r, "from")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := httpx.DateQuery(r, "to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Stats(r.Context(), actor, from, to)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"stats": rows})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if h.logger != nil && !shared.Expected(err) {
		h.logger.Error("voucher request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
