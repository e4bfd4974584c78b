package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/moltmd/moltd/internal/server/migrations"
	"github.com/moltmd/moltd/internal/server/repositories/objects"
)

type PostgresRepositoryManager struct {
	db         *sql.DB
	documents  objects.Repository
	workspaces objects.Repository
}

func (m *PostgresRepositoryManager) Conn() *sql.DB {
	return m.db
}

func (m *PostgresRepositoryManager) Documents() objects.Repository {
	return m.documents
}

func (m *PostgresRepositoryManager) Workspaces() objects.Repository {
	return m.workspaces
}

func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.UpContext(ctx, m.db, "."); err != nil {
		return err
	}

	return nil
}

func NewPostgresRepositoryManager(dsn string) (RepositoryManager, error) {

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	documents, err := objects.NewPostgresRepository(db, objects.TableDocuments)
	if err != nil {
		return nil, fmt.Errorf("document repo creation error: %w", err)
	}

	workspaces, err := objects.NewPostgresRepository(db, objects.TableWorkspaces)
	if err != nil {
		return nil, fmt.Errorf("workspace repo creation error: %w", err)
	}

	m := &PostgresRepositoryManager{
		db:         db,
		documents:  documents,
		workspaces: workspaces,
	}

	err = m.RunMigrations(context.Background())
	if err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return m, nil
}
