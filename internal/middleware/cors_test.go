package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveCORS(cfg CORSConfig, method, origin string) *httptest.ResponseRecorder {
	handler := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(method, "/chat-history/alice", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestCORSOriginHandling(t *testing.T) {
	webClient := CORSConfig{
		AllowedOrigins: []string{"http://localhost:3000", "https://chat.example.com"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}

	tests := []struct {
		name       string
		cfg        CORSConfig
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{
			name:       "allowed origin echoed",
			cfg:        webClient,
			origin:     "http://localhost:3000",
			wantStatus: http.StatusOK,
			wantAllow:  "http://localhost:3000",
		},
		{
			name:       "second allowed origin",
			cfg:        webClient,
			origin:     "https://chat.example.com",
			wantStatus: http.StatusOK,
			wantAllow:  "https://chat.example.com",
		},
		{
			name:       "unknown origin rejected",
			cfg:        webClient,
			origin:     "https://evil.example",
			wantStatus: http.StatusForbidden,
			wantAllow:  "",
		},
		{
			name:       "same-origin request passes without headers",
			cfg:        webClient,
			origin:     "",
			wantStatus: http.StatusOK,
			wantAllow:  "",
		},
		{
			name:       "empty allowlist disables CORS",
			cfg:        CORSConfig{},
			origin:     "https://evil.example",
			wantStatus: http.StatusOK,
			wantAllow:  "",
		},
		{
			name: "wildcard echoes the requesting origin",
			cfg: CORSConfig{
				AllowedOrigins: []string{"*"},
			},
			origin:     "https://anything.example",
			wantStatus: http.StatusOK,
			wantAllow:  "https://anything.example",
		},
		{
			name: "allowlist entries are trimmed",
			cfg: CORSConfig{
				AllowedOrigins: []string{"  http://localhost:3000  "},
			},
			origin:     "http://localhost:3000",
			wantStatus: http.StatusOK,
			wantAllow:  "http://localhost:3000",
		},
		{
			name: "empty allowlist entries are ignored",
			cfg: CORSConfig{
				AllowedOrigins: []string{"", "http://localhost:3000", ""},
			},
			origin:     "http://localhost:3000",
			wantStatus: http.StatusOK,
			wantAllow:  "http://localhost:3000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serveCORS(tt.cfg, http.MethodGet, tt.origin)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	cfg := CORSConfig{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           3600,
	}

	handler := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run for a preflight request")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/chat-history/alice", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want %d", rr.Code, http.StatusNoContent)
	}

	want := map[string]string{
		"Access-Control-Allow-Origin":      "http://localhost:3000",
		"Access-Control-Allow-Methods":     "GET, POST, OPTIONS",
		"Access-Control-Allow-Headers":     "Content-Type, X-Request-ID",
		"Access-Control-Allow-Credentials": "true",
		"Access-Control-Max-Age":           "3600",
	}
	for header, value := range want {
		if got := rr.Header().Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}
}

func TestCORSPreflightRejectsUnknownOrigin(t *testing.T) {
	cfg := CORSConfig{
		AllowedOrigins: []string{"http://localhost:3000"},
		AllowedMethods: []string{"GET"},
	}

	rr := serveCORS(cfg, http.MethodOptions, "https://evil.example")
	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusForbidden)
	}
}

// Methods, headers and Max-Age describe preflight permissions only. On the
// request itself the browser ignores them, so the middleware omits them.
func TestCORSActualRequestOmitsPreflightHeaders(t *testing.T) {
	cfg := CORSConfig{
		AllowedOrigins: []string{"http://localhost:3000"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         3600,
	}

	rr := serveCORS(cfg, http.MethodGet, "http://localhost:3000")

	for _, header := range []string{
		"Access-Control-Allow-Methods",
		"Access-Control-Allow-Headers",
		"Access-Control-Max-Age",
	} {
		if got := rr.Header().Get(header); got != "" {
			t.Errorf("%s = %q on a non-preflight request, want empty", header, got)
		}
	}
}

func TestCORSCredentialsHeaderOnlyWhenEnabled(t *testing.T) {
	cfg := CORSConfig{
		AllowedOrigins: []string{"http://localhost:3000"},
	}

	rr := serveCORS(cfg, http.MethodGet, "http://localhost:3000")
	if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Errorf("Access-Control-Allow-Credentials = %q with credentials disabled, want empty", got)
	}
}
