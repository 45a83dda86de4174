// Package postgres implements the storage interfaces on PostgreSQL via
// database/sql and lib/pq, and carries the schema migrations.
package postgres
