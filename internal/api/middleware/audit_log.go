package middleware

import (
	"net/http"
	"strings"

	"github.com/kubilitics/kubilitics-backend/internal/auth"
	"github.com/kubilitics/kubilitics-backend/internal/pkg/audit"
)

// responseRecorder wraps http.ResponseWriter to capture status code.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// AuditLog returns middleware that logs mutating requests (POST, PATCH, DELETE) to the
// structured audit log, skipping auth routes and login/refresh/logout. Every other
// mutating path is audited, including POST /api/v1/evaluate; the entry records the
// method, path and HTTP status class, not the rule engine's allow/forbid decision.
func AuditLog() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			method := r.Method
			if method != http.MethodPost && method != http.MethodPatch && method != http.MethodDelete {
				next.ServeHTTP(w, r)
				return
			}
			path := r.URL.Path
			if path == "" {
				path = r.URL.RawPath
			}
			// Skip auth routes
			if strings.HasPrefix(path, "/api/v1/auth/") || strings.HasPrefix(path, "/auth/") {
				next.ServeHTTP(w, r)
				return
			}
			// Skip login, refresh, logout
			if strings.HasSuffix(path, "/login") || strings.HasSuffix(path, "/refresh") || strings.HasSuffix(path, "/logout") {
				next.ServeHTTP(w, r)
				return
			}

			rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			username := "anonymous"
			if claims := auth.ClaimsFromContext(r.Context()); claims != nil {
				username = claims.Username
			}
			outcome := "success"
			if rec.statusCode >= http.StatusBadRequest {
				outcome = "failure"
			}
			requestID := r.Header.Get("X-Request-ID")
			audit.LogMutation(requestID, username, method, "admin_endpoint", "", path, outcome, method+" "+path)
		})
	}
}
