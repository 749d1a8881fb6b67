package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/chattwin/chattwin/internal/auth"
	"github.com/chattwin/chattwin/internal/config"
	errwrap "github.com/chattwin/chattwin/internal/errors"
	"github.com/chattwin/chattwin/internal/llm"
	"github.com/chattwin/chattwin/internal/memory"
	"github.com/chattwin/chattwin/internal/metrics"
	"github.com/chattwin/chattwin/internal/observability"
	"github.com/chattwin/chattwin/internal/prompt"
	"github.com/chattwin/chattwin/internal/ratelimit"
	"github.com/chattwin/chattwin/internal/server"
	"github.com/chattwin/chattwin/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// identityHealthChecker validates app identity metadata
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (i identityHealthChecker) CheckHealth(ctx context.Context) error {
	switch {
	case i.binaryName == "":
		return errwrap.NewConfigInvalidError("app identity missing binary name")
	case i.envPrefix == "":
		return errwrap.NewConfigInvalidError("app identity missing env prefix")
	case i.configName == "":
		return errwrap.NewConfigInvalidError("app identity missing config name")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat HTTP server",
	Long: `Start the chat HTTP server with graceful shutdown support.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config reload (placeholder - restart recommended)

The server will cleanly shut down the HTTP server, close the
conversation store, and flush logs on shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "configuration is invalid")
		}

		// Get app identity for telemetry namespace
		identity := GetAppIdentity()
		namespace := identity.TelemetryNamespace()

		// Initialize server logger with namespace
		observability.InitServerLogger(identity.BinaryName, cfg.Logging.Level, namespace)

		metricsPort := cfg.Metrics.Port
		if metricsPort == 0 {
			metricsPort = 9090
		}

		// Initialize metrics with namespace
		if err := observability.InitMetrics(identity.BinaryName, metricsPort, namespace); err != nil {
			observability.ServerLogger.Error("Failed to initialize metrics",
				zap.Error(err))
			return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
		}

		observability.ServerLogger.Info("Initializing server",
			zap.String("service", identity.BinaryName),
			zap.String("namespace", namespace),
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Int("metrics_port", metricsPort),
			zap.String("provider", cfg.Provider.Name),
			zap.String("memory_backend", cfg.Memory.Backend))

		// Conversation store
		store, err := memory.Open(cmd.Context(), cfg.Memory)
		if err != nil {
			return errwrap.WrapStorage(cmd.Context(), err, "failed to open conversation store")
		}

		// Persona prompt: config path overrides the embedded default
		persona, err := loadPersona(cfg.Prompt.Path)
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "failed to load persona prompt")
		}

		chat, err := llm.NewService(cmd.Context(), cfg.Provider, persona.Render)
		if err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "failed to initialize chat provider")
		}

		limiter := ratelimit.New()

		// Initialize health manager
		handlers.InitHealthManager(versionInfo.Version)
		hm := handlers.GetHealthManager()
		hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		hm.RegisterChecker("app_identity", identityHealthChecker{
			binaryName: identity.BinaryName,
			envPrefix:  identity.EnvPrefix,
			configName: identity.ConfigName,
		})
		hm.RegisterChecker("conversation_store", handlers.HealthCheckerFunc(func(ctx context.Context) error {
			_, err := store.ListSessions(ctx)
			return err
		}))
		hm.RegisterChecker("chat_provider", handlers.HealthCheckerFunc(func(ctx context.Context) error {
			if chat.Provider() == "" {
				return errwrap.NewConfigInvalidError("chat provider not initialized")
			}
			return nil
		}))

		// Create server
		srv := server.New(cfg, server.Dependencies{
			Limiter:  limiter,
			Store:    store,
			Chat:     chat,
			Verifier: auth.NewVerifier(cfg.Auth.Secret),
		})

		// Set app identity for handlers
		handlers.SetAppIdentity(identity)

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Background sweep of idle rate limiter state
		cleanupCtx, stopCleanup := context.WithCancel(cmd.Context())
		go runLimiterCleanup(cleanupCtx, limiter, cfg.RateLimit)

		// Register graceful shutdown handlers (LIFO order - last registered, first executed)
		// Handler 1: Flush logger (executed last)
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Flushing logger...")
			if err := observability.ServerLogger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				observability.ServerLogger.Warn("Logger sync returned error (may be benign)",
					zap.Error(err))
			}
			return nil
		})

		// Handler 2: Close conversation store
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Closing conversation store...")
			stopCleanup()
			if err := store.Close(); err != nil {
				observability.ServerLogger.Warn("Conversation store close returned error",
					zap.Error(err))
			}
			return nil
		})

		// Handler 3: Shutdown HTTP server (executed first)
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			observability.ServerLogger.Info("HTTP server stopped gracefully")
			return nil
		})

		// Register config reload handler (SIGHUP)
		signals.OnReload(func(ctx context.Context) error {
			observability.ServerLogger.Info("Received SIGHUP: attempting config reload")

			if err := viper.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); ok {
					observability.ServerLogger.Info("No config file found - using defaults and environment variables")
					return nil
				}
				observability.ServerLogger.Error("Failed to reload config file",
					zap.String("file", viper.ConfigFileUsed()),
					zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}

			// Provider and storage wiring only change on restart; the
			// reload refreshes policy knobs read per request.
			if _, err := config.Load(); err != nil {
				observability.ServerLogger.Error("Reloaded config failed validation",
					zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}

			observability.ServerLogger.Info("Configuration reloaded successfully",
				zap.String("file", viper.ConfigFileUsed()))
			return nil
		})

		// Enable double-tap force quit (Ctrl+C within 2 seconds)
		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			observability.ServerLogger.Warn("Failed to enable double-tap force quit",
				zap.Error(err))
		}

		// Start server in background goroutine
		errChan := make(chan error, 1)
		go func() {
			observability.ServerLogger.Info("Starting HTTP server...",
				zap.String("host", cfg.Server.Host),
				zap.Int("port", cfg.Server.Port))
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		// Start signal listener in background
		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				observability.ServerLogger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		// Wait for error or shutdown completion
		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}

		return nil
	},
}

// loadPersona resolves the persona definition, preferring an explicit
// file path over the embedded default.
func loadPersona(path string) (*prompt.Persona, error) {
	if path != "" {
		return prompt.LoadFile(path)
	}
	return prompt.Default()
}

// runLimiterCleanup periodically discards rate limiter state for
// clients idle longer than the configured max age.
func runLimiterCleanup(ctx context.Context, limiter *ratelimit.Limiter, policy config.RateLimitConfig) {
	interval := policy.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}
	maxAge := policy.MaxAge
	if maxAge <= 0 {
		maxAge = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reclaimed := limiter.Cleanup(maxAge)
			metrics.RecordCleanupReclaimed(reclaimed)
			if observability.ServerLogger != nil && reclaimed > 0 {
				observability.ServerLogger.Debug("Rate limiter cleanup completed",
					zap.Int("clients_reclaimed", reclaimed),
					zap.Int("clients_tracked", limiter.TrackedClients()))
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
