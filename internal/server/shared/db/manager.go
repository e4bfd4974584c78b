// Package db wires the object repositories to a concrete backing store.
package db

import (
	"context"
	"database/sql"

	"github.com/moltmd/moltd/internal/server/repositories/objects"
)

// RepositoryManager hands out the per-kind object repositories.
type RepositoryManager interface {
	RunMigrations(context.Context) error
	Conn() *sql.DB
	Documents() objects.Repository
	Workspaces() objects.Repository
}
