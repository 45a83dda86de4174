package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/quillforum/quill/pkg/auth"
	"github.com/quillforum/quill/pkg/contextkeys"
	"github.com/quillforum/quill/pkg/httputil"
	"github.com/quillforum/quill/pkg/observability"
	"github.com/quillforum/quill/pkg/storage"
)

// SessionCookie is the cookie carrying the session token.
const SessionCookie = "token"

// Auth is the authentication gate. It resolves the session token from
// the cookie first, then the Authorization header, loads the principal,
// and injects it into the request context. It never writes to the
// presence registry; activity stamps belong to the business handlers
// so a request rejected by a later gate leaves no trace.
type Auth struct {
	codec    *auth.Codec
	users    storage.UserStore
	metrics  *observability.Metrics
	optional bool
}

// NewAuth creates the gate. With optional set, requests without a valid
// session pass through anonymously instead of being rejected.
func NewAuth(codec *auth.Codec, users storage.UserStore, metrics *observability.Metrics, optional bool) *Auth {
	return &Auth{
		codec:    codec,
		users:    users,
		metrics:  metrics,
		optional: optional,
	}
}

// extractToken pulls the session token from the cookie, falling back to
// a Bearer Authorization header.
func extractToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	authHeader := r.Header.Get("Authorization")
	if parts := strings.SplitN(authHeader, " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}

// Handler wraps an HTTP handler with authentication.
func (a *Auth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			a.pass(w, r, next, "missing session token")
			return
		}

		subject, err := a.codec.Verify(token)
		if err != nil {
			a.pass(w, r, next, "invalid or expired token")
			return
		}

		userID, err := uuid.Parse(subject)
		if err != nil {
			a.pass(w, r, next, "invalid or expired token")
			return
		}

		user, err := a.users.GetUserByID(r.Context(), userID)
		if err != nil {
			a.pass(w, r, next, "unknown user")
			return
		}

		ctx := contextkeys.WithPrincipal(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// pass either continues anonymously (optional mode) or rejects.
func (a *Auth) pass(w http.ResponseWriter, r *http.Request, next http.Handler, message string) {
	if a.optional {
		next.ServeHTTP(w, r)
		return
	}
	if a.metrics != nil {
		a.metrics.GateRejectionsTotal.WithLabelValues("auth").Inc()
	}
	httputil.WriteUnauthorized(w, message)
}

// PrincipalFrom extracts the authenticated user placed by the auth gate.
func PrincipalFrom(ctx context.Context) (*storage.User, bool) {
	user, ok := contextkeys.Principal(ctx).(*storage.User)
	return user, ok
}
