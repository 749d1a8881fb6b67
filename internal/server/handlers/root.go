package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/chattwin/chattwin/internal/config"
)

// RootResponse describes the running service.
type RootResponse struct {
	Message    string         `json:"message"`
	Provider   string         `json:"ai_provider"`
	Model      string         `json:"ai_model"`
	Storage    string         `json:"storage"`
	RateLimits RateLimitsInfo `json:"rate_limits"`
}

// RateLimitsInfo mirrors the active admission policy.
type RateLimitsInfo struct {
	MaxRequests     int `json:"max_requests"`
	WindowSeconds   int `json:"window_seconds"`
	CooldownSeconds int `json:"cooldown_seconds"`
}

// RootHandler serves GET / with service information.
type RootHandler struct {
	Config *config.Config
}

// Handle writes the service info document.
func (h *RootHandler) Handle(w http.ResponseWriter, r *http.Request) {
	cfg := h.Config

	response := RootResponse{
		Message:  "AI Digital Twin API (Powered by " + strings.ToUpper(cfg.Provider.Name) + ")",
		Provider: cfg.Provider.Name,
		Model:    cfg.Provider.Model(),
		Storage:  cfg.Memory.Backend,
		RateLimits: RateLimitsInfo{
			MaxRequests:     cfg.RateLimit.MaxRequests,
			WindowSeconds:   int(cfg.RateLimit.Window.Seconds()),
			CooldownSeconds: int(cfg.RateLimit.Cooldown.Seconds()),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}
