// Package presence tracks which users are currently active. The
// registry is purely in-memory: it is rebuilt empty on restart and
// repopulates as sessions touch it.
package presence
