package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/quillforum/quill/pkg/auth"
	"github.com/quillforum/quill/pkg/contextkeys"
	"github.com/quillforum/quill/pkg/observability"
	"github.com/quillforum/quill/pkg/storage"
)

func requestWithPrincipal(user *storage.User) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if user == nil {
		return req
	}
	return req.WithContext(contextkeys.WithPrincipal(req.Context(), user))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireNotBanned(t *testing.T) {
	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name     string
		user     *storage.User
		wantCode int
	}{
		{"clean user passes", &storage.User{Role: auth.RoleUser}, http.StatusOK},
		{"expired ban passes", &storage.User{Role: auth.RoleUser, BannedUntil: &past}, http.StatusOK},
		{"active ban rejected", &storage.User{Role: auth.RoleUser, BannedUntil: &future}, http.StatusForbidden},
		{"no principal rejected", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireNotBanned(nil)(okHandler())
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, requestWithPrincipal(tt.user))
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestRequireRoles(t *testing.T) {
	tests := []struct {
		name     string
		allowed  []auth.Role
		user     *storage.User
		wantCode int
	}{
		{"admin allowed", []auth.Role{auth.RoleAdmin}, &storage.User{Role: auth.RoleAdmin}, http.StatusOK},
		{"mod allowed among several", []auth.Role{auth.RoleAdmin, auth.RoleMod}, &storage.User{Role: auth.RoleMod}, http.StatusOK},
		{"plain user rejected", []auth.Role{auth.RoleAdmin, auth.RoleMod}, &storage.User{Role: auth.RoleUser}, http.StatusForbidden},
		{"no principal rejected", []auth.Role{auth.RoleAdmin}, nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireRoles(nil, tt.allowed...)(okHandler())
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, requestWithPrincipal(tt.user))
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestGateRejectionMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	future := time.Now().Add(time.Hour)
	banned := &storage.User{Role: auth.RoleUser, BannedUntil: &future}

	banGate := RequireNotBanned(metrics)(okHandler())
	rec := httptest.NewRecorder()
	banGate.ServeHTTP(rec, requestWithPrincipal(banned))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	roleGate := RequireRoles(metrics, auth.RoleAdmin)(okHandler())
	rec = httptest.NewRecorder()
	roleGate.ServeHTTP(rec, requestWithPrincipal(&storage.User{Role: auth.RoleUser}))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.GateRejectionsTotal.WithLabelValues("ban")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.GateRejectionsTotal.WithLabelValues("role")))
}
