package middleware

import (
	"net/http"

	"github.com/quillforum/quill/pkg/auth"
	"github.com/quillforum/quill/pkg/httputil"
	"github.com/quillforum/quill/pkg/observability"
)

// RequireNotBanned rejects requests from banned users. It runs after
// the auth gate and expects a principal in the context.
func RequireNotBanned(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := PrincipalFrom(r.Context())
			if !ok {
				if metrics != nil {
					metrics.GateRejectionsTotal.WithLabelValues("ban").Inc()
				}
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			if user.IsBanned() {
				if metrics != nil {
					metrics.GateRejectionsTotal.WithLabelValues("ban").Inc()
				}
				httputil.WriteForbidden(w, "account is banned")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRoles rejects requests whose principal holds none of the given
// roles. It runs after the auth gate.
func RequireRoles(metrics *observability.Metrics, roles ...auth.Role) func(http.Handler) http.Handler {
	allowed := make(map[auth.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := PrincipalFrom(r.Context())
			if !ok {
				if metrics != nil {
					metrics.GateRejectionsTotal.WithLabelValues("role").Inc()
				}
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			if _, ok := allowed[user.Role]; !ok {
				if metrics != nil {
					metrics.GateRejectionsTotal.WithLabelValues("role").Inc()
				}
				httputil.WriteForbidden(w, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
