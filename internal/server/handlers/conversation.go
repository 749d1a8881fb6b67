package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/chattwin/chattwin/internal/errors"
	"github.com/chattwin/chattwin/internal/memory"
)

// ConversationResponse is the GET /conversation/{session_id} reply.
type ConversationResponse struct {
	SessionID string           `json:"session_id"`
	Messages  []memory.Message `json:"messages"`
}

// ConversationHandler serves stored transcripts.
type ConversationHandler struct {
	Store memory.Store
}

// Handle returns the transcript for one session. Unknown sessions
// return an empty message list rather than 404 so a fresh frontend
// session can poll before its first message.
func (h *ConversationHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "session_id")

	messages, err := h.Store.LoadConversation(ctx, sessionID)
	if err != nil {
		if errors.Is(err, memory.ErrInvalidSessionID) {
			respondWithError(w, r, apperrors.NewInvalidInputError("Session ID contains invalid characters"))
			return
		}
		respondWithError(w, r, apperrors.WrapStorage(ctx, err, "Unable to load conversation history"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(ConversationResponse{SessionID: sessionID, Messages: messages})
}
