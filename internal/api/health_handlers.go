// Package api provides the HTTP surface of the chat server: the websocket
// endpoint, chat history, and health probes.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/bhieu79/Torilab-backend-test/internal/chat"
	"github.com/bhieu79/Torilab-backend-test/internal/middleware"
)

// HealthChecker defines the interface for components that can be health checked.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandlers provides health and readiness check endpoints.
type HealthHandlers struct {
	registry *chat.Registry

	// Database checker (optional, for when real DB is used)
	dbChecker HealthChecker
}

// NewHealthHandlers creates a new health check handler.
func NewHealthHandlers(registry *chat.Registry, dbChecker HealthChecker) *HealthHandlers {
	return &HealthHandlers{
		registry:  registry,
		dbChecker: dbChecker,
	}
}

// HealthResponse represents the JSON response for the health check. It
// exposes the live gate counters alongside their limits.
type HealthResponse struct {
	Status             string `json:"status"`
	ActiveConnections  int    `json:"active_connections"`
	CurrentlySending   int    `json:"currently_sending"`
	MessagesProcessing int    `json:"messages_processing"`
	MaxSending         int    `json:"max_sending"`
	MaxProcessing      int    `json:"max_processing"`
}

// ReadyResponse represents the JSON response for the readiness probe.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health handles GET /health (liveness probe).
// Reports the gate counters so operators can watch admission pressure.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	response := HealthResponse{
		Status:             "healthy",
		ActiveConnections:  h.registry.ActiveConnections(),
		CurrentlySending:   h.registry.SendingCount(),
		MessagesProcessing: h.registry.ProcessingCount(),
		MaxSending:         chat.MaxSending,
		MaxProcessing:      chat.MaxProcessing,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("failed to encode health response", "error", err)
	}
}

// Ready handles GET /ready (readiness probe).
// Returns 503 when the database is unreachable.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	healthy := true

	// Check database connectivity (if configured)
	if h.dbChecker != nil {
		if err := h.dbChecker.HealthCheck(ctx); err != nil {
			checks["database"] = "error"
			healthy = false
			slog.WarnContext(ctx, "database health check failed", "error", err)
		} else {
			checks["database"] = "ok"
		}
	} else {
		// Database not configured (using in-memory store)
		checks["database"] = "ok"
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	response := ReadyResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("failed to encode readiness response", "error", err)
	}
}
