package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/markdave123-py/cova/internal/services"
)

type ConversationHandler struct {
	convs *services.ConversationService
}

func NewConversationHandler(convs *services.ConversationService) *ConversationHandler {
	return &ConversationHandler{convs: convs}
}

type createConversationRequest struct {
	Title string `json:"title" validate:"required"`
}

func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req createConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	conv, err := h.convs.Create(r.Context(), id.TenantID, id.UserID, req.Title)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": conv.ID})
}

func (h *ConversationHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	msgs, err := h.convs.Messages(r.Context(), id.UserID, chi.URLParam(r, "conversationID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// GetMessage returns the sources of one message.
func (h *ConversationHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	src, err := h.convs.Sources(r.Context(), id.UserID, chi.URLParam(r, "conversationID"), chi.URLParam(r, "messageID"))
	if err != nil {
		sourceLookups.WithLabelValues("miss").Inc()
		writeError(w, err)
		return
	}
	sourceLookups.WithLabelValues("hit").Inc()
	writeJSON(w, http.StatusOK, src)
}
