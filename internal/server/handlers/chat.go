package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chattwin/chattwin/internal/auth"
	"github.com/chattwin/chattwin/internal/config"
	apperrors "github.com/chattwin/chattwin/internal/errors"
	"github.com/chattwin/chattwin/internal/llm"
	"github.com/chattwin/chattwin/internal/llm/driver"
	"github.com/chattwin/chattwin/internal/memory"
	"github.com/chattwin/chattwin/internal/metrics"
	"github.com/chattwin/chattwin/internal/observability"
	"github.com/chattwin/chattwin/internal/ratelimit"
)

// ChatRequest is the POST /chat payload.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse is the POST /chat reply.
type ChatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

// ChatHandler runs the chat pipeline: identity, content validation,
// rate limiting, history load, completion, history save.
type ChatHandler struct {
	Limiter  *ratelimit.Limiter
	Policy   config.RateLimitConfig
	Store    memory.Store
	Chat     *llm.Service
	Verifier *auth.Verifier
}

// Handle processes one chat request.
func (h *ChatHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(ctx, err, "Request body must be valid JSON"))
		return
	}

	userID := h.Verifier.UserID(r)

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if _, err := memory.SanitizeSessionID(sessionID); err != nil {
		respondWithError(w, r, apperrors.NewInvalidInputError("Session ID contains invalid characters"))
		return
	}

	if ok, reason := ratelimit.ValidateMessageContent(req.Message); !ok {
		metrics.RecordValidationReject(rejectLabel(reason))
		respondWithError(w, r, apperrors.NewValidationError(reason))
		return
	}

	identifier := ratelimit.ClientIdentifier(r, userID, sessionID)
	allowed, denial := h.Limiter.CheckAndRecord(identifier, h.Policy.MaxRequests, h.Policy.Window, h.Policy.Cooldown)
	if !allowed {
		gate := "window"
		if strings.HasPrefix(denial, "Please wait") {
			gate = "cooldown"
		}
		metrics.RecordAdmission(gate)

		envelope := apperrors.NewRateLimitedError(denial)
		if retry := retryAfterSeconds(denial); retry > 0 {
			envelope = envelope.WithDetails(map[string]interface{}{
				"retry_after_seconds": retry,
			})
			w.Header().Set("Retry-After", strconv.Itoa(retry))
		}
		respondWithError(w, r, envelope)
		return
	}
	metrics.RecordAdmission("allowed")

	conversation, err := h.Store.LoadConversation(ctx, sessionID)
	if err != nil {
		respondWithError(w, r, apperrors.WrapStorage(ctx, err, "Unable to load conversation history"))
		return
	}

	history := make([]driver.Message, 0, len(conversation))
	for _, msg := range conversation {
		history = append(history, driver.Message{Role: msg.Role, Content: msg.Content})
	}

	reply, err := h.Chat.Respond(ctx, history, req.Message)
	if err != nil {
		respondWithError(w, r, providerEnvelope(err))
		return
	}

	now := time.Now().Format(time.RFC3339)
	conversation = append(conversation,
		memory.Message{Role: driver.RoleUser, Content: req.Message, Timestamp: now},
		memory.Message{Role: driver.RoleAssistant, Content: reply, Timestamp: now},
	)

	if err := h.Store.SaveConversation(ctx, sessionID, conversation); err != nil {
		respondWithError(w, r, apperrors.WrapStorage(ctx, err, "Unable to save conversation history"))
		return
	}

	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Chat turn completed",
			zap.String("session_id", sessionID),
			zap.String("identifier", identifier),
			zap.Int("history_length", len(conversation)),
			zap.Int("response_length", len(reply)))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(ChatResponse{Response: reply, SessionID: sessionID})
}

// providerEnvelope maps a completion failure to the closest API error.
// Provider-reported 4xx conditions surface as caller errors, matching
// how Bedrock validation and access failures are handled upstream.
func providerEnvelope(err error) error {
	var provErr *driver.ProviderError
	if !errors.As(err, &provErr) {
		return apperrors.NewProviderError("AI provider request failed")
	}

	switch provErr.StatusCode {
	case http.StatusBadRequest:
		return apperrors.NewInvalidInputError("Invalid message format for " + provErr.Provider)
	case http.StatusForbidden:
		return apperrors.NewForbiddenError("Access denied to " + provErr.Provider + " model")
	default:
		return apperrors.NewProviderError("AI provider request failed")
	}
}

// retryAfterSeconds extracts the wait hint from a denial message,
// rounding sub-second cooldowns up to a whole second.
func retryAfterSeconds(denial string) int {
	var secs int
	if _, err := fmt.Sscanf(denial, "Rate limit exceeded. Please try again in %d seconds.", &secs); err == nil {
		return secs
	}

	var wait float64
	if _, err := fmt.Sscanf(denial, "Please wait %f seconds before sending another message.", &wait); err == nil {
		return int(math.Ceil(wait))
	}
	return 0
}

// rejectLabel compresses a validation reason into a low-cardinality
// metric label.
func rejectLabel(reason string) string {
	switch {
	case strings.Contains(reason, "empty"):
		return "empty"
	case strings.Contains(reason, "too short"):
		return "too_short"
	case strings.Contains(reason, "too long"):
		return "too_long"
	default:
		return "suspicious"
	}
}
