package objects

import (
	"context"
	"sync"
	"time"

	"github.com/moltmd/moltd/internal/common"
	"github.com/moltmd/moltd/internal/cryptox"
	"github.com/moltmd/moltd/internal/server/models"
)

// InMemoryRepository is a mutex-guarded Repository with the same semantics
// as the Postgres one. It backs service tests and the dev server; a single
// lock around each operation gives the same atomicity the database gives
// via its conditional UPDATE.
type InMemoryRepository struct {
	mu      sync.Mutex
	items   map[string]*models.StoredObject
	nowFunc func() time.Time
}

// NewInMemoryRepository returns an empty in-memory store.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		items:   make(map[string]*models.StoredObject),
		nowFunc: time.Now,
	}
}

func cloneObject(o *models.StoredObject) *models.StoredObject {
	c := *o
	return &c
}

func (r *InMemoryRepository) Create(ctx context.Context, obj *models.StoredObject) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[obj.ID]; ok {
		return common.ErrorConflict
	}

	now := r.nowFunc()
	c := cloneObject(obj)
	c.Version = 1
	c.LastAccessed = now
	c.CreatedAt = now
	r.items[obj.ID] = c
	return nil
}

func (r *InMemoryRepository) Get(ctx context.Context, id string) (*models.StoredObject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj, ok := r.items[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	obj.LastAccessed = r.nowFunc()
	return cloneObject(obj), nil
}

func (r *InMemoryRepository) ConditionalUpdate(ctx context.Context, id string, expectedVersion *int64, payload *cryptox.SealedPair) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj, ok := r.items[id]
	if !ok {
		return 0, common.ErrorNotFound
	}
	if expectedVersion != nil && obj.Version != *expectedVersion {
		return 0, &common.VersionMismatchError{Current: obj.Version}
	}

	obj.SetPayload(payload)
	obj.Version++
	obj.LastAccessed = r.nowFunc()
	return obj.Version, nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *InMemoryRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, obj := range r.items {
		if obj.LastAccessed.Before(cutoff) {
			delete(r.items, id)
			n++
		}
	}
	return n, nil
}

func (r *InMemoryRepository) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.items)), nil
}
