// Package objects provides the versioned, atomic storage primitive shared
// by documents and workspaces. Each object kind lives in its own record
// set, but the schema and the concurrency contract are identical, so one
// repository implementation serves both.
package objects

import (
	"context"
	"time"

	"github.com/moltmd/moltd/internal/cryptox"
	"github.com/moltmd/moltd/internal/server/models"
)

// Record-set names accepted by the repositories.
const (
	TableDocuments  = "documents"
	TableWorkspaces = "workspaces"
)

// Repository is the atomic store for one object kind.
//
// ConditionalUpdate is the concurrency core: the version check and the
// increment happen in a single indivisible step against the backing store,
// so two writers racing from the same prior version can never both
// succeed. The loser receives *common.VersionMismatchError carrying the
// current version. A nil expectedVersion means last-write-wins: the update
// always applies and still increments the version.
type Repository interface {
	// Create inserts obj with version 1 and fresh timestamps. Returns
	// common.ErrorConflict on an id collision.
	Create(ctx context.Context, obj *models.StoredObject) error

	// Get fetches an object and stamps its last-access time in the same
	// operation. Returns common.ErrorNotFound for unknown ids.
	Get(ctx context.Context, id string) (*models.StoredObject, error)

	// ConditionalUpdate atomically replaces both ciphertext sides and
	// increments the version by exactly 1, returning the new version.
	ConditionalUpdate(ctx context.Context, id string, expectedVersion *int64, payload *cryptox.SealedPair) (int64, error)

	// Delete permanently removes an object. No tombstones.
	Delete(ctx context.Context, id string) error

	// PurgeBefore bulk-deletes objects whose last access predates cutoff
	// and returns how many rows went away.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Count returns the number of stored objects.
	Count(ctx context.Context) (int64, error)
}
