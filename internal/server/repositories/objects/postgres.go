package objects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/moltmd/moltd/internal/common"
	"github.com/moltmd/moltd/internal/cryptox"
	"github.com/moltmd/moltd/internal/dbx"
	"github.com/moltmd/moltd/internal/server/models"
)

// pgUniqueViolation is the PostgreSQL error code for a unique constraint
// violation, used to recognize id collisions on insert.
const pgUniqueViolation = "23505"

// PostgresRepository implements object storage over *sql.DB for a single
// record set. Statements run through the dbx.DBTX seam so they compose
// into transactions where needed.
type PostgresRepository struct {
	conn  *sql.DB
	db    dbx.DBTX
	table string
}

// NewPostgresRepository constructs a repository bound to the given
// connection and record set. Only the fixed table names are accepted; the
// table is baked into the SQL text, never interpolated from request data.
func NewPostgresRepository(conn *sql.DB, table string) (*PostgresRepository, error) {
	if table != TableDocuments && table != TableWorkspaces {
		return nil, fmt.Errorf("unknown record set: %q", table)
	}
	return &PostgresRepository{conn: conn, db: conn, table: table}, nil
}

// Create inserts obj with version forced to 1 and server-side timestamps.
// An id collision surfaces as common.ErrorConflict so the caller can retry
// with a fresh id.
func (r *PostgresRepository) Create(ctx context.Context, obj *models.StoredObject) error {
	query := fmt.Sprintf(`
		INSERT INTO %s
			(id, write_ciphertext, write_nonce, read_ciphertext, read_nonce, read_verifier, version, last_accessed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 1, now(), now());
	`, r.table)

	_, err := r.db.ExecContext(ctx, query,
		obj.ID, obj.WriteCiphertext, obj.WriteNonce, obj.ReadCiphertext, obj.ReadNonce, obj.ReadVerifier)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return common.ErrorConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Get fetches an object by id and stamps last_accessed in the same
// statement, so a read is one round trip and the stamp can never be lost
// between a select and a separate update.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.StoredObject, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET last_accessed = now()
		WHERE id = $1
		RETURNING id, write_ciphertext, write_nonce, read_ciphertext, read_nonce, read_verifier, version, last_accessed, created_at;
	`, r.table)

	var obj models.StoredObject
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&obj.ID, &obj.WriteCiphertext, &obj.WriteNonce, &obj.ReadCiphertext, &obj.ReadNonce,
		&obj.ReadVerifier, &obj.Version, &obj.LastAccessed, &obj.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &obj, nil
}

// ConditionalUpdate replaces both ciphertext sides and increments the
// version by exactly 1 in a single compare-and-set UPDATE. With a nil
// expectedVersion the update always applies (last-write-wins) and still
// increments the stored version.
func (r *PostgresRepository) ConditionalUpdate(ctx context.Context, id string, expectedVersion *int64, payload *cryptox.SealedPair) (int64, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET
			write_ciphertext = $2,
			write_nonce = $3,
			read_ciphertext = $4,
			read_nonce = $5,
			version = version + 1,
			last_accessed = now()
		WHERE id = $1 AND ($6::bigint IS NULL OR version = $6::bigint)
		RETURNING version;
	`, r.table)

	var newVersion int64
	err := r.db.QueryRowContext(ctx, query,
		id, payload.WriteCiphertext, payload.WriteNonce, payload.ReadCiphertext, payload.ReadNonce,
		expectedVersion).Scan(&newVersion)
	if err == nil {
		return newVersion, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("db error: %w", err)
	}

	// No row matched: either the id is unknown or the precondition lost a
	// race. Re-check in a transaction so the not-found decision and the
	// reported current version come from one consistent snapshot.
	var current int64
	found := false
	selectQuery := fmt.Sprintf(`SELECT version FROM %s WHERE id = $1;`, r.table)
	txErr := dbx.WithTx(ctx, r.conn, nil, func(ctx context.Context, tx dbx.DBTX) error {
		err := tx.QueryRowContext(ctx, selectQuery, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if txErr != nil {
		return 0, fmt.Errorf("db error: %w", txErr)
	}
	if !found {
		return 0, common.ErrorNotFound
	}
	return 0, &common.VersionMismatchError{Current: current}
}

// Delete permanently removes an object by id.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1;`, r.table)

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// PurgeBefore bulk-deletes objects whose last access predates cutoff.
func (r *PostgresRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE last_accessed < $1;`, r.table)

	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

// Count returns the number of stored objects, backing the metrics endpoint.
func (r *PostgresRepository) Count(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`SELECT count(*) FROM %s;`, r.table)

	var n int64
	if err := r.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
