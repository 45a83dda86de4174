// Package storage defines the forum's data model and the store
// interfaces the API layer depends on. The PostgreSQL implementation
// lives in the postgres subpackage.
package storage
