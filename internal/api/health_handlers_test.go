package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bhieu79/Torilab-backend-test/internal/chat"
)

// mockHealthChecker is a mock implementation of HealthChecker for testing.
type mockHealthChecker struct {
	shouldFail bool
	err        error
}

func (m *mockHealthChecker) HealthCheck(ctx context.Context) error {
	if m.shouldFail {
		if m.err != nil {
			return m.err
		}
		return errors.New("health check failed")
	}
	return nil
}

func TestHealth_Success(t *testing.T) {
	registry := chat.NewRegistry(slog.Default(), nil)
	handlers := NewHealthHandlers(registry, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handlers.Health(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var response HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Status != "healthy" {
		t.Errorf("expected status 'healthy', got %s", response.Status)
	}
	if response.MaxSending != chat.MaxSending {
		t.Errorf("max_sending = %d, want %d", response.MaxSending, chat.MaxSending)
	}
	if response.MaxProcessing != chat.MaxProcessing {
		t.Errorf("max_processing = %d, want %d", response.MaxProcessing, chat.MaxProcessing)
	}
	if response.ActiveConnections != 0 || response.CurrentlySending != 0 || response.MessagesProcessing != 0 {
		t.Errorf("expected zero counters on a fresh registry, got %+v", response)
	}
}

func TestHealth_ReportsGateCounters(t *testing.T) {
	registry := chat.NewRegistry(slog.Default(), nil)
	if err := registry.AcquireProcessing(); err != nil {
		t.Fatal(err)
	}
	handlers := NewHealthHandlers(registry, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handlers.Health(w, req)

	var response HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.MessagesProcessing != 1 {
		t.Errorf("messages_processing = %d, want 1", response.MessagesProcessing)
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	handlers := NewHealthHandlers(chat.NewRegistry(slog.Default(), nil), nil)

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	w := httptest.NewRecorder()

	handlers.Health(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", w.Code)
	}
}

func TestReady_Success(t *testing.T) {
	handlers := NewHealthHandlers(chat.NewRegistry(slog.Default(), nil), &mockHealthChecker{})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()

	handlers.Ready(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var response ReadyResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != "healthy" {
		t.Errorf("expected status 'healthy', got %s", response.Status)
	}
	if response.Checks["database"] != "ok" {
		t.Errorf("expected database check 'ok', got %s", response.Checks["database"])
	}
	if response.Timestamp == "" {
		t.Error("expected timestamp to be set")
	}
}

func TestReady_DatabaseDown(t *testing.T) {
	checker := &mockHealthChecker{shouldFail: true, err: errors.New("connection refused")}
	handlers := NewHealthHandlers(chat.NewRegistry(slog.Default(), nil), checker)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()

	handlers.Ready(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var response ReadyResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != "unhealthy" {
		t.Errorf("expected status 'unhealthy', got %s", response.Status)
	}
	if response.Checks["database"] != "error" {
		t.Errorf("expected database check 'error', got %s", response.Checks["database"])
	}
}

func TestReady_NoDatabaseConfigured(t *testing.T) {
	handlers := NewHealthHandlers(chat.NewRegistry(slog.Default(), nil), nil)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()

	handlers.Ready(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}
