// Package middleware provides the HTTP middleware chain for the chat
// server: request IDs, structured request logging, CORS, metrics, and
// tracing.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures the CORS middleware.
type CORSConfig struct {
	AllowedOrigins   []string // allowed origins, or "*" for any; empty disables CORS
	AllowedMethods   []string // methods advertised on preflight
	AllowedHeaders   []string // headers advertised on preflight
	AllowCredentials bool
	MaxAge           int // preflight cache lifetime in seconds
}

// CORS validates the Origin header against the allowlist and answers
// preflight OPTIONS requests. Browser chat clients connect from their own
// origins, so the server typically runs with "*".
//
// The allowed origin is echoed back rather than a literal "*" so the
// header stays valid alongside credentials. Disallowed origins get 403
// before the request reaches a handler. Requests without an Origin header
// are same-origin and pass through untouched.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool)
	for _, origin := range cfg.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		switch origin {
		case "*":
			allowAll = true
		case "":
		default:
			allowed[origin] = true
		}
	}

	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allowAll && len(allowed) == 0 {
				// CORS disabled.
				next.ServeHTTP(w, r)
				return
			}

			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !allowAll && !allowed[origin] {
				http.Error(w, "Origin not allowed", http.StatusForbidden)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			if cfg.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions {
				// Method and header allowances only matter on preflight.
				w.Header().Set("Access-Control-Allow-Methods", methods)
				w.Header().Set("Access-Control-Allow-Headers", headers)
				if cfg.MaxAge > 0 {
					w.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
