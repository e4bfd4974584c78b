// Package workspaces implements workspace operations: CRUD over the
// encrypted JSON structure, entry previews, and scoped document access
// where the workspace's own access level caps what the embedded keys can
// do.
package workspaces

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/moltmd/moltd/internal/common"
	"github.com/moltmd/moltd/internal/cryptox"
	"github.com/moltmd/moltd/internal/server/access"
	"github.com/moltmd/moltd/internal/server/documents"
	"github.com/moltmd/moltd/internal/server/models"
	"github.com/moltmd/moltd/internal/server/repositories/objects"
)

const createRetries = 3

// Service implements workspace operations. It reuses the document service
// for entry previews and scoped access so document semantics live in one
// place.
type Service struct {
	repo objects.Repository
	docs *documents.Service
}

// NewService constructs a workspace service over the workspace repository
// and the document service.
func NewService(repo objects.Repository, docs *documents.Service) *Service {
	return &Service{repo: repo, docs: docs}
}

// CreateResult carries the only observable copy of a new workspace's keys.
type CreateResult struct {
	ID       string
	WriteKey []byte
	ReadKey  []byte
	Version  int64
}

// Preview is the first-N-lines projection of a document entry.
type Preview struct {
	Content    string `json:"content"`
	Truncated  bool   `json:"truncated"`
	TotalLines int    `json:"total_lines"`
}

// EntryDetail is an entry as returned on read, optionally enriched with a
// resolved target name (sub-workspaces) or content preview (documents).
type EntryDetail struct {
	Kind     string   `json:"type"`
	TargetID string   `json:"id"`
	Key      string   `json:"key"`
	Name     string   `json:"name,omitempty"`
	Preview  *Preview `json:"preview,omitempty"`
}

// Detail is a decrypted workspace.
type Detail struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Entries []EntryDetail `json:"entries"`
	Version int64         `json:"version"`
}

// Create validates and stores a new workspace with a fresh key pair.
func (s *Service) Create(ctx context.Context, payload Payload) (*CreateResult, error) {
	plaintext, err := s.marshalPayload(payload)
	if err != nil {
		return nil, err
	}

	writeKey, err := cryptox.GenerateKey()
	if err != nil {
		return nil, err
	}
	readKey, err := cryptox.DeriveReadKey(writeKey)
	if err != nil {
		return nil, err
	}
	pair, err := cryptox.SealPair(writeKey, plaintext)
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

// Read decrypts a workspace with either key. With previewLines > 0,
// document entries are resolved through their embedded keys and carry a
// first-N-lines preview; sub-workspace entries are resolved to their name
// only, never into their own entries. Entries whose target is gone or
// whose embedded key no longer opens it are returned unenriched rather
// than failing the read.
func (s *Service) Read(ctx context.Context, id string, key []byte, previewLines int) (*Detail, error) {
	if previewLines < 0 {
		return nil, common.ErrorInvalidArgument
	}

	obj, payload, _, err := s.open(ctx, id, key)
	if err != nil {
		return nil, err
	}

	detail := &Detail{ID: obj.ID, Name: payload.Name, Version: obj.Version, Entries: make([]EntryDetail, 0, len(payload.Entries))}
	for _, e := range payload.Entries {
		d := EntryDetail{Kind: e.Kind, TargetID: e.TargetID, Key: e.Key}
		if previewLines > 0 {
			s.enrich(ctx, &d, e, previewLines)
		}
		detail.Entries = append(detail.Entries, d)
	}
	return detail, nil
}

// Replace swaps the workspace structure. Requires write access; the
// payload is validated before anything is encrypted.
func (s *Service) Replace(ctx context.Context, id string, key []byte, payload Payload, expectedVersion *int64) (int64, error) {
	plaintext, err := s.marshalPayload(payload)
	if err != nil {
		return 0, err
	}

	obj, err := s.repo.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if level, _ := access.Classify(key, obj); level != access.Write {
		return 0, common.ErrorForbidden
	}

	pair, err := cryptox.SealPair(key, plaintext)
	if err != nil {
		return 0, err
	}
	return s.repo.ConditionalUpdate(ctx, id, expectedVersion, pair)
}

// Delete permanently removes a workspace. Referenced objects are left
// untouched: entries are references, not ownership.
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

// ReadDocument reads a document through a workspace entry's embedded key.
// Requires at least read access to the workspace.
func (s *Service) ReadDocument(ctx context.Context, wsID string, wsKey []byte, docID string, lines int) (*documents.ReadResult, error) {
	entryKey, _, err := s.resolveEntry(ctx, wsID, wsKey, docID)
	if err != nil {
		return nil, err
	}
	return s.docs.Read(ctx, docID, entryKey, lines)
}

// ReplaceDocument mutates an entry's document through its embedded key.
// The workspace access level is authoritative: a read-classified workspace
// key forces read-only regardless of the embedded key's power, so the
// mutation is rejected before the document is even fetched.
func (s *Service) ReplaceDocument(ctx context.Context, wsID string, wsKey []byte, docID, content string, expectedVersion *int64) (int64, error) {
	entryKey, level, err := s.resolveEntry(ctx, wsID, wsKey, docID)
	if err != nil {
		return 0, err
	}
	if level != access.Write {
		return 0, common.ErrorForbidden
	}
	return s.docs.Replace(ctx, docID, entryKey, content, expectedVersion)
}

// AppendDocument appends to an entry's document; same capping rule as
// ReplaceDocument.
func (s *Service) AppendDocument(ctx context.Context, wsID string, wsKey []byte, docID, suffix string, expectedVersion *int64) (int64, error) {
	entryKey, level, err := s.resolveEntry(ctx, wsID, wsKey, docID)
	if err != nil {
		return 0, err
	}
	if level != access.Write {
		return 0, common.ErrorForbidden
	}
	return s.docs.Append(ctx, docID, entryKey, suffix, expectedVersion)
}

// DeleteDocument deletes an entry's document; same capping rule as
// ReplaceDocument. The workspace entry itself is not rewritten.
func (s *Service) DeleteDocument(ctx context.Context, wsID string, wsKey []byte, docID string) error {
	entryKey, level, err := s.resolveEntry(ctx, wsID, wsKey, docID)
	if err != nil {
		return err
	}
	if level != access.Write {
		return common.ErrorForbidden
	}
	return s.docs.Delete(ctx, docID, entryKey)
}

// open fetches and decrypts a workspace, returning the stored object, the
// parsed payload and the caller's access level.
func (s *Service) open(ctx context.Context, id string, key []byte) (*models.StoredObject, *Payload, access.Level, error) {
	obj, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, access.None, err
	}

	level, plaintext := access.Classify(key, obj)
	if level == access.None {
		return nil, nil, access.None, common.ErrorForbidden
	}

	var payload Payload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, nil, access.None, common.ErrorInternal
	}
	return obj, &payload, level, nil
}

// resolveEntry opens the workspace, locates the document entry for docID
// and returns its decoded embedded key plus the workspace access level.
func (s *Service) resolveEntry(ctx context.Context, wsID string, wsKey []byte, docID string) ([]byte, access.Level, error) {
	_, payload, level, err := s.open(ctx, wsID, wsKey)
	if err != nil {
		return nil, access.None, err
	}

	for _, e := range payload.Entries {
		if e.Kind == KindDocument && e.TargetID == docID {
			key, err := e.DecodeKey()
			if err != nil {
				return nil, access.None, err
			}
			return key, level, nil
		}
	}
	return nil, access.None, common.ErrorNotFound
}

// enrich resolves one entry best-effort: a preview for documents, a name
// for sub-workspaces. Resolution failures leave the entry bare.
func (s *Service) enrich(ctx context.Context, d *EntryDetail, e Entry, previewLines int) {
	entryKey, err := e.DecodeKey()
	if err != nil {
		return
	}

	switch e.Kind {
	case KindDocument:
		res, err := s.docs.Read(ctx, e.TargetID, entryKey, previewLines)
		if err != nil {
			return
		}
		d.Preview = &Preview{Content: res.Content, Truncated: res.Truncated, TotalLines: res.TotalLines}
	case KindWorkspace:
		// One hop only: the sub-workspace's name, never its entries.
		obj, err := s.repo.Get(ctx, e.TargetID)
		if err != nil {
			return
		}
		level, plaintext := access.Classify(entryKey, obj)
		if level == access.None {
			return
		}
		var payload Payload
		if err := json.Unmarshal(plaintext, &payload); err != nil {
			return
		}
		d.Name = payload.Name
	}
}

// marshalPayload validates and serializes a workspace structure, applying
// the same plaintext size ceiling documents have.
func (s *Service) marshalPayload(payload Payload) ([]byte, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, common.ErrorInvalidArgument
	}
	if len(plaintext) > common.MaxContentSize {
		return nil, common.ErrorPayloadTooLarge
	}
	return plaintext, nil
}
