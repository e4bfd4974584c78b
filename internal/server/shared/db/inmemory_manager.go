package db

import (
	"context"
	"database/sql"

	"github.com/moltmd/moltd/internal/server/repositories/objects"
)

// InMemoryRepositoryManager serves the in-memory repositories; used by
// tests and by the dev server when no DSN is configured.
type InMemoryRepositoryManager struct {
	documents  objects.Repository
	workspaces objects.Repository
}

func (m *InMemoryRepositoryManager) Conn() *sql.DB {
	return nil
}

func (m *InMemoryRepositoryManager) RunMigrations(ctx context.Context) error {
	return nil
}

func (m *InMemoryRepositoryManager) Documents() objects.Repository {
	return m.documents
}

func (m *InMemoryRepositoryManager) Workspaces() objects.Repository {
	return m.workspaces
}

func NewInMemoryRepositoryManager() RepositoryManager {
	return &InMemoryRepositoryManager{
		documents:  objects.NewInMemoryRepository(),
		workspaces: objects.NewInMemoryRepository(),
	}
}
