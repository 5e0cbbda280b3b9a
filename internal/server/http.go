package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/RitamPal26/ScribeAI/internal/config"
	"github.com/RitamPal26/ScribeAI/internal/metrics"
	"github.com/RitamPal26/ScribeAI/internal/protocol"
	"github.com/RitamPal26/ScribeAI/internal/session"
	"github.com/RitamPal26/ScribeAI/internal/store"
	"github.com/RitamPal26/ScribeAI/internal/transcription"
)

// HTTPServer provides HTTP API endpoints for monitoring and management
type HTTPServer struct {
	server      *http.Server
	logger      *slog.Logger
	config      *config.Config
	store       *store.Store
	coordinator *session.Coordinator
	hub         *Hub
	transcriber *transcription.Client
	metrics     *metrics.Metrics

	// Server state
	startTime time.Time
	mu        sync.RWMutex
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(logger *slog.Logger, appConfig *config.Config, st *store.Store,
	coordinator *session.Coordinator, hub *Hub, transcriber *transcription.Client, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:      logger,
		config:      appConfig,
		store:       st,
		coordinator: coordinator,
		hub:         hub,
		transcriber: transcriber,
		metrics:     m,
		startTime:   time.Now(),
	}

	// Create HTTP server with routes
	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", appConfig.Server.BindAddress, appConfig.Server.HTTPPort),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Session monitoring endpoints
	mux.HandleFunc("/sessions", h.withMetrics("/sessions", h.handleSessions))
	mux.HandleFunc("/sessions/", h.withMetrics("/sessions/{id}", h.handleSessionDetail))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Statistics endpoint
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Transcription statistics
	mux.HandleFunc("/stats/transcription", h.withMetrics("/stats/transcription", h.handleTranscriptionStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		// Call the original handler
		handler(ww, r)

		// Record metrics
		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		// Record error if status code indicates an error
		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)
	transcriptionStats := h.transcriber.GetStats()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "scribed",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"websocket": map[string]interface{}{
				"status":      "running",
				"connections": h.hub.ConnectionCount(),
				"groups":      h.hub.GroupCount(),
			},
			"sessions": map[string]interface{}{
				"status": "running",
				"active": h.coordinator.Registry().ActiveCount(),
			},
			"transcription": map[string]interface{}{
				"status":          "running",
				"total_requests":  transcriptionStats.TotalRequests,
				"success_rate":    transcriptionStats.SuccessRate,
				"active_requests": transcriptionStats.ActiveRequests,
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleSessions implements the /sessions endpoint. The user query parameter
// scopes the listing to one owner.
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, "user query parameter required", http.StatusBadRequest)
		return
	}

	sessions, err := h.store.ListSessions(userID)
	if err != nil {
		h.logger.Error("Failed to list sessions", slog.String("error", err.Error()))
		http.Error(w, "Failed to list sessions", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"total_sessions": len(sessions),
		"timestamp":      time.Now().UTC(),
		"sessions":       sessions,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleSessionDetail implements the /sessions/{session_id} endpoint
func (h *HTTPServer) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Extract session ID from URL path
	sessionID := r.URL.Path[len("/sessions/"):]
	if sessionID == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	record, err := h.store.GetSession(sessionID)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	fragments, err := h.store.FragmentsInOrder(sessionID)
	if err != nil {
		h.logger.Error("Failed to load fragments",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Failed to load fragments", http.StatusInternalServerError)
		return
	}

	detail := map[string]interface{}{
		"session":   record,
		"fragments": fragments,
	}

	if record.Status == protocol.StatusCompleted {
		if summary, err := h.store.GetSummary(sessionID); err == nil {
			detail["summary"] = summary
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(detail)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Return sanitized configuration (remove sensitive data)
	sanitizedConfig := map[string]interface{}{
		"server": map[string]interface{}{
			"port":                    h.config.Server.Port,
			"bind_address":            h.config.Server.BindAddress,
			"http_port":               h.config.Server.HTTPPort,
			"max_concurrent_sessions": h.config.Server.MaxConcurrentSessions,
		},
		"audio": map[string]interface{}{
			"sample_rate":    h.config.Audio.SampleRate,
			"channels":       h.config.Audio.Channels,
			"bit_depth":      h.config.Audio.BitDepth,
			"slice_interval": h.config.Audio.SliceInterval,
			"flush_interval": h.config.Audio.FlushInterval,
		},
		"transcription": map[string]interface{}{
			"endpoint":       h.config.Transcription.Endpoint,
			"timeout":        h.config.Transcription.Timeout,
			"max_retries":    h.config.Transcription.MaxRetries,
			"max_concurrent": h.config.Transcription.MaxConcurrent,
			// Note: API key is intentionally omitted for security
		},
		"summary": map[string]interface{}{
			"model":   h.config.Summary.Model,
			"timeout": h.config.Summary.Timeout,
		},
		"database": map[string]interface{}{
			"path": h.config.Database.Path,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	transcriptionStats := h.transcriber.GetStats()
	uptime := time.Since(h.startTime)

	byStatus := make(map[string]int64)
	for _, status := range []string{
		protocol.StatusRecording, protocol.StatusPaused, protocol.StatusProcessing,
		protocol.StatusCompleted, protocol.StatusFailed,
	} {
		count, err := h.store.CountByStatus(status)
		if err != nil {
			h.logger.Error("Failed to count sessions", slog.String("error", err.Error()))
			continue
		}
		byStatus[status] = count
	}

	stats := map[string]interface{}{
		"uptime":    uptime.String(),
		"timestamp": time.Now().UTC(),
		"websocket": map[string]interface{}{
			"connections": h.hub.ConnectionCount(),
			"groups":      h.hub.GroupCount(),
		},
		"sessions": map[string]interface{}{
			"active_bindings": h.coordinator.Registry().ActiveCount(),
			"by_status":       byStatus,
		},
		"transcription": transcriptionStats,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleTranscriptionStats implements the /stats/transcription endpoint
func (h *HTTPServer) handleTranscriptionStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := h.transcriber.GetStats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "ScribeAI Recording Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                        "API documentation",
			"GET /health":                  "Service health check",
			"GET /sessions?user={id}":      "List a user's recording sessions",
			"GET /sessions/{session_id}":   "Get session detail with fragments and summary",
			"GET /config":                  "Get service configuration",
			"GET /stats":                   "Get service statistics",
			"GET /stats/transcription":     "Get transcription statistics",
			"GET /metrics":                 "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
