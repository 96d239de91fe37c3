package handlers

import (
	"net/http"

	"github.com/markdave123-py/cova/internal/services"
)

type TenantHandler struct {
	users *services.UserService
}

func NewTenantHandler(users *services.UserService) *TenantHandler {
	return &TenantHandler{users: users}
}

// GetTenant returns the caller's tenant with its welcome questions.
func (h *TenantHandler) GetTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	tenant, err := h.users.Tenant(r.Context(), id.TenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}
