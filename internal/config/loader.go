// Package config provides centralized configuration management for
// chattwin. Values resolve in three layers: baked-in defaults, an
// optional YAML config file (flag or XDG discovery, handled by the CLI
// bootstrap), and environment variables using the app identity prefix.
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

var (
	appConfig *Config
	configMu  sync.RWMutex
)

// Load unmarshals the current viper state into a validated Config and
// caches it as the process config. Safe to call again on reload.
func Load() (*Config, error) {
	setDefaults()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()

	return &cfg, nil
}

// Get returns the cached process config, loading it on first use.
func Get() (*Config, error) {
	configMu.RLock()
	cached := appConfig
	configMu.RUnlock()

	if cached != nil {
		return cached, nil
	}
	return Load()
}

func setDefaults() {
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.shutdown_timeout", "10s")

	viper.SetDefault("provider.name", "bedrock")
	viper.SetDefault("provider.history_limit", 20)
	viper.SetDefault("provider.max_tokens", 2000)
	viper.SetDefault("provider.temperature", 0.7)
	viper.SetDefault("provider.timeout", "60s")
	viper.SetDefault("provider.openai.model", "gpt-4o-mini")
	viper.SetDefault("provider.openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("provider.bedrock.model_id", "eu.amazon.nova-lite-v1:0")
	viper.SetDefault("provider.bedrock.region", "eu-central-1")
	viper.SetDefault("provider.bedrock.top_p", 0.9)
	viper.SetDefault("provider.ollama.model", "llama3.2")
	viper.SetDefault("provider.ollama.base_url", "http://127.0.0.1:11434")

	viper.SetDefault("memory.backend", "local")
	viper.SetDefault("memory.history_dir", "./history")

	viper.SetDefault("ratelimit.max_requests", 10)
	viper.SetDefault("ratelimit.window", "60s")
	viper.SetDefault("ratelimit.cooldown", "2s")
	viper.SetDefault("ratelimit.cleanup_interval", "1h")
	viper.SetDefault("ratelimit.max_age", "1h")

	viper.SetDefault("logging.level", "info")

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", 9090)

	viper.SetDefault("cors.origins", []string{"http://localhost:3000"})
}

// Validate rejects configurations that cannot produce a working
// process. Policy knobs are configuration, not user input, so a bad
// value here is fatal at startup rather than handled per request.
func (c *Config) Validate() error {
	var problems []string

	switch strings.ToLower(strings.TrimSpace(c.Provider.Name)) {
	case "openai", "bedrock", "ollama":
	default:
		problems = append(problems, fmt.Sprintf("provider.name must be openai, bedrock, or ollama (got %q)", c.Provider.Name))
	}

	switch strings.ToLower(strings.TrimSpace(c.Memory.Backend)) {
	case "local", "s3", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("memory.backend must be local, s3, or sqlite (got %q)", c.Memory.Backend))
	}

	if strings.EqualFold(c.Memory.Backend, "s3") && strings.TrimSpace(c.Memory.S3.Bucket) == "" {
		problems = append(problems, "memory.s3.bucket is required when memory.backend is s3")
	}

	if c.RateLimit.MaxRequests < 1 {
		problems = append(problems, fmt.Sprintf("ratelimit.max_requests must be >= 1 (got %d)", c.RateLimit.MaxRequests))
	}
	if c.RateLimit.Window <= 0 {
		problems = append(problems, fmt.Sprintf("ratelimit.window must be positive (got %v)", c.RateLimit.Window))
	}
	if c.RateLimit.Cooldown < 0 {
		problems = append(problems, fmt.Sprintf("ratelimit.cooldown must not be negative (got %v)", c.RateLimit.Cooldown))
	}
	if c.RateLimit.MaxAge < c.RateLimit.Window {
		problems = append(problems, "ratelimit.max_age must be at least ratelimit.window")
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port out of range (got %d)", c.Server.Port))
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
