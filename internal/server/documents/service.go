// Package documents implements document operations over the encrypted
// object store: create, read (full or first-N-lines), replace, append and
// delete, each authenticated solely by the presented capability key.
package documents

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/moltmd/moltd/internal/common"
	"github.com/moltmd/moltd/internal/cryptox"
	"github.com/moltmd/moltd/internal/server/access"
	"github.com/moltmd/moltd/internal/server/models"
	"github.com/moltmd/moltd/internal/server/repositories/objects"
)

// createRetries bounds the fresh-id retries on the astronomically rare
// uuid collision.
const createRetries = 3

// Service implements document CRUD over an objects.Repository. It holds
// no key material: keys arrive as parameters and die with the request.
type Service struct {
	repo objects.Repository
}

// NewService constructs a document service over the given repository.
func NewService(repo objects.Repository) *Service {
	return &Service{repo: repo}
}

// CreateResult carries the only observable copy of a new document's keys.
type CreateResult struct {
	ID       string
	WriteKey []byte
	ReadKey  []byte
	Version  int64
}

// ReadResult is decrypted document content, possibly clipped to the first
// N lines.
type ReadResult struct {
	ID         string
	Content    string
	Version    int64
	Truncated  bool
	TotalLines int
}

// Create mints a fresh key pair, seals content under both keys and stores
// the document with version 1. The returned keys are never persisted;
// losing them makes the document unrecoverable.
func (s *Service) Create(ctx context.Context, content string) (*CreateResult, error) {
	if len(content) > common.MaxContentSize {
		return nil, common.ErrorPayloadTooLarge
	}

	writeKey, err := cryptox.GenerateKey()
	if err != nil {
		return nil, err
	}
	readKey, err := cryptox.DeriveReadKey(writeKey)
	if err != nil {
		return nil, err
	}
	pair, err := cryptox.SealPair(writeKey, []byte(content))
	if err != nil {
		return nil, err
	}

	obj := &models.StoredObject{ReadVerifier: cryptox.MakeVerifier(readKey)}
	obj.SetPayload(pair)

	for i := 0; i < createRetries; i++ {
		obj.ID = uuid.NewString()
		err = s.repo.Create(ctx, obj)
		if err == nil {
			return &CreateResult{ID: obj.ID, WriteKey: writeKey, ReadKey: readKey, Version: 1}, nil
		}
		if !errors.Is(err, common.ErrorConflict) {
			return nil, err
		}
	}
	return nil, err
}

// Read decrypts a document with either key. lines == 0 returns the full
// content; lines > 0 returns the first min(lines, total) lines and flags
// whether clipping occurred; lines < 0 is rejected before any decryption.
func (s *Service) Read(ctx context.Context, id string, key []byte, lines int) (*ReadResult, error) {
	if lines < 0 {
		return nil, common.ErrorInvalidArgument
	}

	obj, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	level, plaintext := access.Classify(key, obj)
	if level == access.None {
		return nil, common.ErrorForbidden
	}

	result := &ReadResult{ID: obj.ID, Content: string(plaintext), Version: obj.Version}
	if lines > 0 {
		result.Content, result.Truncated, result.TotalLines = clipLines(result.Content, lines)
	}
	return result, nil
}

// Replace swaps the full content. Requires write access; the version
// precondition, when given, is enforced atomically by the store.
func (s *Service) Replace(ctx context.Context, id string, key []byte, content string, expectedVersion *int64) (int64, error) {
	if len(content) > common.MaxContentSize {
		return 0, common.ErrorPayloadTooLarge
	}

	obj, err := s.repo.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if level, _ := access.Classify(key, obj); level != access.Write {
		return 0, common.ErrorForbidden
	}

	pair, err := cryptox.SealPair(key, []byte(content))
	if err != nil {
		return 0, err
	}
	return s.repo.ConditionalUpdate(ctx, id, expectedVersion, pair)
}

// Append joins the current content and suffix with a line break and writes
// the result through the same conditional-update path as Replace. With a
// precondition, a concurrent writer between the decrypt and the update is
// caught by the store's version check; without one the append is
// last-write-wins, as for Replace.
func (s *Service) Append(ctx context.Context, id string, key []byte, suffix string, expectedVersion *int64) (int64, error) {
	obj, err := s.repo.Get(ctx, id)
	if err != nil {
		return 0, err
	}

	level, plaintext := access.Classify(key, obj)
	if level != access.Write {
		return 0, common.ErrorForbidden
	}

	content := string(plaintext) + "\n" + suffix
	if len(content) > common.MaxContentSize {
		return 0, common.ErrorPayloadTooLarge
	}

	pair, err := cryptox.SealPair(key, []byte(content))
	if err != nil {
		return 0, err
	}
	return s.repo.ConditionalUpdate(ctx, id, expectedVersion, pair)
}

// Delete permanently removes a document. Requires write access.
func (s *Service) Delete(ctx context.Context, id string, key []byte) error {
	obj, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if level, _ := access.Classify(key, obj); level != access.Write {
		return common.ErrorForbidden
	}
	return s.repo.Delete(ctx, id)
}

// clipLines returns the first n lines of content joined by "\n", whether
// anything was clipped, and the total line count.
func clipLines(content string, n int) (clipped string, truncated bool, total int) {
	all := strings.Split(content, "\n")
	total = len(all)
	if n >= total {
		return content, false, total
	}
	return strings.Join(all[:n], "\n"), true, total
}
