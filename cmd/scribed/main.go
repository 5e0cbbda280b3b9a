package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RitamPal26/ScribeAI/internal/auth"
	"github.com/RitamPal26/ScribeAI/internal/config"
	"github.com/RitamPal26/ScribeAI/internal/metrics"
	"github.com/RitamPal26/ScribeAI/internal/server"
	"github.com/RitamPal26/ScribeAI/internal/session"
	"github.com/RitamPal26/ScribeAI/internal/store"
	"github.com/RitamPal26/ScribeAI/internal/summary"
	"github.com/RitamPal26/ScribeAI/internal/transcription"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "scribed"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("ws_port", cfg.Server.Port),
		slog.Int("http_port", cfg.Server.HTTPPort),
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.Int("max_concurrent_sessions", cfg.Server.MaxConcurrentSessions),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Float64("flush_interval", cfg.Audio.FlushInterval),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.String("summary_model", cfg.Summary.Model),
		slog.String("database_path", cfg.Database.Path),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Open the session database
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("Failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Database opened", slog.String("path", cfg.Database.Path))

	// Initialize the transcription client
	transcriber, err := transcription.NewClient(transcription.Config{
		Endpoint:      cfg.Transcription.Endpoint,
		APIKey:        cfg.Transcription.APIKey,
		Timeout:       cfg.Transcription.GetTimeoutDuration(),
		MaxRetries:    cfg.Transcription.MaxRetries,
		MaxConcurrent: cfg.Transcription.MaxConcurrent,
	})
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize the summarization client
	summarizer, err := summary.NewClient(summary.Config{
		APIKey:  cfg.Summary.APIKey,
		Model:   cfg.Summary.Model,
		Timeout: cfg.Summary.GetTimeoutDuration(),
	})
	if err != nil {
		logger.Error("Failed to create summarization client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize the token authenticator
	authenticator, err := auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.GetTokenTTL())
	if err != nil {
		logger.Error("Failed to create authenticator", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Wire the broadcast hub and the session coordinator
	hub := server.NewHub(logger, appMetrics)
	coordinator := session.NewCoordinator(logger, st, transcriber, summarizer, hub, appMetrics, session.Config{
		SampleRate:  cfg.Audio.SampleRate,
		MaxSessions: cfg.Server.MaxConcurrentSessions,
	})
	logger.Info("Session coordinator initialized")

	// Initialize the WebSocket endpoint
	wsServer := server.NewWSServer(logger, &cfg.Server, authenticator, coordinator, hub, appMetrics)

	// Initialize the HTTP API server
	httpServer := server.NewHTTPServer(logger, cfg, st, coordinator, hub, transcriber, appMetrics)

	// Start servers
	if err := wsServer.Start(); err != nil {
		logger.Error("Failed to start WebSocket server", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("ws_address", fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port)),
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.HTTPPort)),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	// Stop accepting new connections first
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}
	if err := wsServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping WebSocket server", slog.String("error", err.Error()))
	}

	// Let in-flight finalize jobs complete before closing their dependencies
	coordinator.Shutdown()

	if err := transcriber.Close(); err != nil {
		logger.Error("Error closing transcription client", slog.String("error", err.Error()))
	}
	if err := st.Close(); err != nil {
		logger.Error("Error closing database", slog.String("error", err.Error()))
	}

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
