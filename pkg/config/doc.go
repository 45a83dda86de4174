// Package config loads and validates server configuration from QUILL_*
// environment variables.
package config
