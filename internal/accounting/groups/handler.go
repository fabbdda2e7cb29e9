package groups

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/pharmaledger/internal/platform/httpx"
	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

// Visibility limits which groups an actor may see.
type Visibility interface {
	AccessibleGroups(ctx context.Context, actor shared.Actor) ([]Group, error)
	Hierarchy(ctx context.Context, actor shared.Actor) ([]*Node, error)
}

// Handler exposes the chart of accounts over JSON.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	visibility Visibility
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, visibility Visibility) *Handler {
	return &Handler{logger: logger, service: service, visibility: visibility}
}

// MountRoutes registers group routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/hierarchy", h.hierarchy)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.update)
	r.Delete("/{id}", h.delete)
	r.Get("/{id}/subtree", h.subtree)
	r.Get("/{id}/ancestors", h.ancestors)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	out, err := h.visibility.AccessibleGroups(r.Context(), actor)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"groups": out})
}

func (h *Handler) hierarchy(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	roots, err := h.visibility.Hierarchy(r.Context(), actor)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roots": roots})
}

// visible loads a group and hides it when the actor holds no grant on it.
func (h *Handler) visible(r *http.Request, actor shared.Actor) (Group, error) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		return Group{}, err
	}
	g, err := h.service.Get(r.Context(), actor.TenantID, id)
	if err != nil || actor.IsAdmin() {
		return g, err
	}
	accessible, err := h.visibility.AccessibleGroups(r.Context(), actor)
	if err != nil {
		return Group{}, err
	}
	for _, a := range accessible {
		if a.ID == g.ID {
			return g, nil
		}
	}
	return Group{}, ErrGroupNotFound
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	g, err := h.visible(r, actor)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, g)
}

func (h *Handler) subtree(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	g, err := h.visible(r, actor)
	if err != nil {
		h.fail(w, err)
		return
	}
	out, err := h.service.Subtree(r.Context(), actor.TenantID, g.ID)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"groups": out})
}

func (h *Handler) ancestors(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	g, err := h.visible(r, actor)
	if err != nil {
		h.fail(w, err)
		return
	}
	out, err := h.service.Ancestors(r.Context(), actor.TenantID, g.ID)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"groups": out})
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
	g, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, g)
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
	g, err := h.service.Update(r.Context(), actor, id, in)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, g)
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

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if h.logger != nil && !shared.Expected(err) {
		h.logger.Error("group request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
