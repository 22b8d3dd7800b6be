package middleware

import (
	"net/http"

	"github.com/kubilitics/kubilitics-backend/internal/auth"
)

// RequireRole returns middleware guarding a REST host-adapter admin endpoint (rule-config
// reload, history query) by the caller's JWT role claim. This is unrelated to the rule
// engine's own allow/forbid decision, which never consults a fixed role hierarchy.
func RequireRole(minRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := auth.ClaimsFromContext(r.Context())
			if claims == nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"Authentication required"}`))
				return
			}
			if !auth.HasRole(claims.Role, minRole) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"Insufficient permissions"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func RequireAdmin() func(http.Handler) http.Handler    { return RequireRole(auth.RoleAdmin) }
func RequireOperator() func(http.Handler) http.Handler { return RequireRole(auth.RoleOperator) }
func RequireViewer() func(http.Handler) http.Handler   { return RequireRole(auth.RoleViewer) }
