package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func serveWithRequestID(t *testing.T, headerID string) (*httptest.ResponseRecorder, string) {
	t.Helper()

	var contextID string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contextID = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/chat-history/alice", nil)
	if headerID != "" {
		req.Header.Set(RequestIDHeader, headerID)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr, contextID
}

func TestRequestIDGeneratesUUID(t *testing.T) {
	rr, contextID := serveWithRequestID(t, "")

	responseID := rr.Header().Get(RequestIDHeader)
	if responseID == "" {
		t.Fatal("expected X-Request-ID header in response")
	}
	// uuid.New() format: 8-4-4-4-12.
	if len(responseID) != 36 || strings.Count(responseID, "-") != 4 {
		t.Errorf("response ID %q does not look like a UUID", responseID)
	}
	if contextID != responseID {
		t.Errorf("context ID %q != response header %q", contextID, responseID)
	}
}

func TestRequestIDKeepsSuppliedID(t *testing.T) {
	supplied := "upstream-req-42"
	rr, contextID := serveWithRequestID(t, supplied)

	if contextID != supplied {
		t.Errorf("context ID = %q, want %q", contextID, supplied)
	}
	if got := rr.Header().Get(RequestIDHeader); got != supplied {
		t.Errorf("response header = %q, want %q", got, supplied)
	}
}

func TestRequestIDReplacesInvalidID(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"log injection", "evil\nfake-log-line"},
		{"special characters", "id;drop table"},
		{"too long", strings.Repeat("a", maxRequestIDLen+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, contextID := serveWithRequestID(t, tt.id)

			responseID := rr.Header().Get(RequestIDHeader)
			if responseID == "" {
				t.Fatal("expected X-Request-ID header in response")
			}
			if responseID == tt.id {
				t.Errorf("invalid ID %q was not replaced", tt.id)
			}
			if contextID != responseID {
				t.Errorf("context ID %q != response header %q", contextID, responseID)
			}
		})
	}
}

func TestGetRequestIDMissing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	if id := GetRequestID(req.Context()); id != "" {
		t.Errorf("expected empty ID without middleware, got %q", id)
	}
}
