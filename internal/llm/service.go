// Package llm turns a conversation plus a new user message into an
// assistant reply using the configured completion provider.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chattwin/chattwin/internal/llm/driver"
	"github.com/chattwin/chattwin/internal/llm/driver/bedrock"
	"github.com/chattwin/chattwin/internal/llm/driver/ollama"
	"github.com/chattwin/chattwin/internal/llm/driver/openai"
	"github.com/chattwin/chattwin/internal/metrics"
)

// PromptFunc renders the current system prompt. It is called per
// request so time-sensitive template fields stay fresh.
type PromptFunc func() (string, error)

// Service drives one completion provider with persona and history
// handling applied uniformly across providers.
type Service struct {
	cfg    Config
	drv    driver.Driver
	prompt PromptFunc
}

// NewService builds the provider named in cfg and wires it to the
// given system prompt source.
func NewService(ctx context.Context, cfg Config, prompt PromptFunc) (*Service, error) {
	var drv driver.Driver

	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case "openai":
		client := openai.NewClient(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey)
		client.Timeout = cfg.Timeout
		drv = client
	case "ollama":
		client := ollama.NewClient(cfg.Ollama.BaseURL)
		client.Timeout = cfg.Timeout
		drv = client
	case "bedrock":
		client, err := bedrock.NewClient(ctx, cfg.Bedrock.Region)
		if err != nil {
			return nil, err
		}
		drv = client
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}

	return NewServiceWithDriver(cfg, drv, prompt), nil
}

// NewServiceWithDriver wires an explicit driver. Used by tests.
func NewServiceWithDriver(cfg Config, drv driver.Driver, prompt PromptFunc) *Service {
	return &Service{cfg: cfg, drv: drv, prompt: prompt}
}

// Provider returns the active driver name.
func (s *Service) Provider() string {
	return s.drv.Name()
}

// Respond generates an assistant reply for userMessage given the prior
// conversation. History beyond the configured limit is dropped oldest
// first.
func (s *Service) Respond(ctx context.Context, history []driver.Message, userMessage string) (string, error) {
	system, err := s.prompt()
	if err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}

	truncated := truncateHistory(history, s.cfg.HistoryLimit)

	messages := make([]driver.Message, 0, len(truncated)+2)
	messages = append(messages, driver.Message{Role: driver.RoleSystem, Content: system})
	messages = append(messages, truncated...)
	messages = append(messages, driver.Message{Role: driver.RoleUser, Content: userMessage})

	req := &driver.Request{
		Model:       s.cfg.Model(),
		Messages:    messages,
		Temperature: &s.cfg.Temperature,
	}
	if s.cfg.MaxTokens > 0 {
		req.MaxTokens = &s.cfg.MaxTokens
	}
	if s.drv.Name() == "bedrock" && s.cfg.Bedrock.TopP > 0 {
		req.TopP = &s.cfg.Bedrock.TopP
	}

	start := time.Now()
	resp, err := s.drv.Complete(ctx, req)
	metrics.RecordProviderLatency(s.drv.Name(), time.Since(start), err == nil)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("provider %s returned empty content", s.drv.Name())
	}

	return resp.Content, nil
}

func truncateHistory(history []driver.Message, limit int) []driver.Message {
	if limit <= 0 || len(history) <= limit {
		return history
	}
	return history[len(history)-limit:]
}
