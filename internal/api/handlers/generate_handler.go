package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/markdave123-py/cova/internal/services"
)

const (
	headerMessageID = "x-message-id"
	headerExpanded  = "x-expanded"
)

type GenerateHandler struct {
	gens *services.GenerationService
}

func NewGenerateHandler(gens *services.GenerationService) *GenerateHandler {
	return &GenerateHandler{gens: gens}
}

// Generate answers the user's turn as a streamed {"message": "..."} object.
// The assistant message id is sent in the headers before any text; a stream
// that breaks off leaves the object unterminated.
func (h *GenerateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req services.GenerateInput
	if err := decodeJSON(w, r, &req); err != nil {
		generations.WithLabelValues("rejected").Inc()
		writeError(w, err)
		return
	}

	gen, err := h.gens.Prepare(r.Context(), id.TenantID, id.UserID, req)
	if err != nil {
		generations.WithLabelValues("rejected").Inc()
		writeError(w, err)
		return
	}

	logger := log.WithFields(log.Fields{"conversation": req.ConversationID, "message": gen.MessageID})
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set(headerMessageID, gen.MessageID)
	if gen.Expanded {
		w.Header().Set(headerExpanded, "true")
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.WriteString(w, `{"message":"`); err != nil {
		logger.WithError(err).Warn("client went away")
		generations.WithLabelValues("aborted").Inc()
		return
	}
	_ = rc.Flush()

	err = h.gens.Stream(r.Context(), gen, func(delta string) error {
		if _, err := io.WriteString(w, jsonStringBody(delta)); err != nil {
			return fmt.Errorf("write delta: %w", err)
		}
		generationDeltas.Inc()
		return rc.Flush()
	})
	if err != nil {
		logger.WithError(err).Warn("generation ended early")
		generations.WithLabelValues("failed").Inc()
		return
	}

	if _, err := io.WriteString(w, `"}`); err != nil {
		logger.WithError(err).Warn("client went away")
		generations.WithLabelValues("aborted").Inc()
		return
	}
	_ = rc.Flush()
	generations.WithLabelValues("completed").Inc()
}

// jsonStringBody returns s escaped for use between the quotes of a JSON string.
func jsonStringBody(s string) string {
	b, _ := json.Marshal(s)
	return string(b[1 : len(b)-1])
}
