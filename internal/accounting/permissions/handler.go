package permissions

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/pharmaledger/internal/platform/httpx"
	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

// Handler exposes grant management and permission checks.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	evaluator *Evaluator
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, evaluator *Evaluator) *Handler {
	return &Handler{logger: logger, service: service, evaluator: evaluator}
}

// MountRoutes registers permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/check", h.check)
	r.Get("/users/{userID}", h.listForUser)
	r.Group(func(r chi.Router) {
		r.Use(Middleware{Evaluator: h.evaluator, Logger: h.logger}.RequireAdmin)
		r.Post("/", h.grant)
		r.Get("/groups/{groupID}", h.listForGroup)
		r.Delete("/users/{userID}/groups/{groupID}", h.revoke)
	})
}

type checkResponse struct {
	GroupID int64  `json:"group_id,omitempty"`
	Action  Action `json:"action"`
	Allowed bool   `json:"allowed"`
}

// check evaluates the caller's own capability, on one group when group_id is
// given and on any group otherwise.
func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	action, err := ParseAction(r.URL.Query().Get("action"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := checkResponse{Action: action}
	if raw := r.URL.Query().Get("group_id"); raw != "" {
		groupID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || groupID <= 0 {
			httpx.RespondError(w, shared.NewValidationError("invalid identifier", "group_id"))
			return
		}
		resp.GroupID = groupID
		resp.Allowed = h.evaluator.HasPermission(r.Context(), actor, groupID, action)
	} else {
		resp.Allowed = h.evaluator.HasAnyPermission(r.Context(), actor, action)
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	var in GrantInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	gp, err := h.service.Grant(r.Context(), actor, in)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, gp)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	userID, err := httpx.IDParam(r, "userID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	groupID, err := httpx.IDParam(r, "groupID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Revoke(r.Context(), actor, userID, groupID); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listForUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	userID, err := httpx.IDParam(r, "userID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.ListForUser(r.Context(), actor, userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": out})
}

func (h *Handler) listForGroup(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	groupID, err := httpx.IDParam(r, "groupID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.ListForGroup(r.Context(), actor, groupID)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": out})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if h.logger != nil && !shared.Expected(err) {
		h.logger.Error("permission request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
