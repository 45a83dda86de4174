// Package observability provides structured logging, Prometheus metrics,
// health checks, and graceful-shutdown plumbing for the Quill server.
package observability
