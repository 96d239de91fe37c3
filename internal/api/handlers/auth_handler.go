package handlers

import (
	"net/http"
	"time"

	middleware "github.com/markdave123-py/cova/internal/api/middlewares"
	"github.com/markdave123-py/cova/internal/services"
)

const tokenTTL = 24 * time.Hour

type AuthHandler struct {
	users  *services.UserService
	secret []byte
}

func NewAuthHandler(users *services.UserService, secret []byte) *AuthHandler {
	return &AuthHandler{users: users, secret: secret}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req services.SignupInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.Signup(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	h.respondToken(w, http.StatusCreated, middleware.Identity{UserID: user.ID, TenantID: user.TenantID})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	h.respondToken(w, http.StatusOK, middleware.Identity{UserID: user.ID, TenantID: user.TenantID})
}

func (h *AuthHandler) respondToken(w http.ResponseWriter, status int, id middleware.Identity) {
	token, err := middleware.IssueToken(h.secret, id, tokenTTL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, map[string]string{"token": token})
}
