// Package contextkeys provides centralized context key definitions.
//
// All context keys used across the application are defined here so that
// middleware and handlers agree on what travels through the request context.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions.
type Key string

const (
	// PrincipalKey contains the authenticated user loaded by the auth gate.
	// Set by: middleware.Auth
	// Type: *storage.User
	PrincipalKey Key = "principal"

	// RequestIDKey contains the per-request ID string.
	// Set by: httputil.RequestIDMiddleware
	// Type: string
	RequestIDKey Key = "request_id"

	// LoggerKey contains the request-scoped structured logger.
	// Set by: httputil.LoggingMiddleware
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)

// WithPrincipal adds the authenticated user to the context. Stored as
// interface{} to keep this package free of storage imports.
func WithPrincipal(ctx context.Context, principal interface{}) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// Principal retrieves whatever the auth gate stored, or nil.
func Principal(ctx context.Context) interface{} {
	return ctx.Value(PrincipalKey)
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}
