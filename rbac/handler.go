package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flightmap/tracker/httpx"
)

// Handler exposes the caller's resolved access.
type Handler struct {
	resolve RoleResolver
}

// NewHandler creates an RBAC handler.
func NewHandler(resolver RoleResolver) *Handler {
	return &Handler{resolve: resolver}
}

// Routes registers access routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/access", h.access)
	return r
}

type Access struct {
	Roles       []Role       `json:"roles"`
	Permissions []Permission `json:"permissions"`
}

func (h *Handler) access(w http.ResponseWriter, r *http.Request) {
	roles := h.resolve(r)
	if len(roles) == 0 {
		httpx.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, Access{Roles: roles, Permissions: Permissions(roles)})
}
