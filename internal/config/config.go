package config

import (
	"time"

	"github.com/chattwin/chattwin/internal/llm"
)

// Config represents the complete application configuration, assembled
// from defaults, an optional config file, and environment variables
// (prefix from app identity, e.g. CHATTWIN_SERVER_PORT).
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Provider  llm.Config      `mapstructure:"provider"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Prompt    PromptConfig    `mapstructure:"prompt"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	CORS      CORSConfig      `mapstructure:"cors"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// MemoryConfig selects and configures the transcript storage backend.
type MemoryConfig struct {
	// Backend is "local", "s3", or "sqlite".
	Backend string `mapstructure:"backend"`

	// HistoryDir is the directory for the local backend.
	HistoryDir string `mapstructure:"history_dir"`

	S3     S3Config     `mapstructure:"s3"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

// S3Config configures the S3 transcript backend.
type S3Config struct {
	Bucket string `mapstructure:"bucket"`
	Region string `mapstructure:"region"`
	Prefix string `mapstructure:"prefix"`
}

// SQLiteConfig configures the libsql transcript backend.
type SQLiteConfig struct {
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// RateLimitConfig is the process-wide admission policy. The limiter
// takes policy per call, so different call sites could apply different
// policies, but serve wires this one everywhere.
type RateLimitConfig struct {
	MaxRequests     int           `mapstructure:"max_requests"`
	Window          time.Duration `mapstructure:"window"`
	Cooldown        time.Duration `mapstructure:"cooldown"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxAge          time.Duration `mapstructure:"max_age"`
}

// PromptConfig configures the persona prompt.
type PromptConfig struct {
	// Path overrides the embedded default persona file.
	Path string `mapstructure:"path"`
}

// AuthConfig configures the optional bearer-token check. With an empty
// secret every request is anonymous, matching the pre-identity
// deployment the service currently runs in.
type AuthConfig struct {
	Secret string `mapstructure:"secret"`
}

// LoggingConfig contains logging configuration.
// Valid levels: trace, debug, info, warn, error.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// CORSConfig lists allowed browser origins.
type CORSConfig struct {
	Origins []string `mapstructure:"origins"`
}
