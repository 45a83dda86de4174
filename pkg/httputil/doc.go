// Package httputil provides JSON response and request helpers plus the
// outer middleware stack (request IDs, logging, recovery, CORS) shared
// by all API handlers.
package httputil
