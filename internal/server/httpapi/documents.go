// Package httpapi is the thin HTTP surface over the core services. It
// extracts capability keys from headers, validates query parameters, and
// maps core errors to transport responses; all semantics live below it.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/moltmd/moltd/internal/common"
	"github.com/moltmd/moltd/internal/logging"
	"github.com/moltmd/moltd/internal/server/documents"
	"github.com/moltmd/moltd/internal/server/repositories/objects"
	"github.com/moltmd/moltd/internal/server/workspaces"
)

// maxRequestBody caps request bodies slightly above the content ceiling so
// oversize payloads still reach the core's own size check and produce 413.
const maxRequestBody = common.MaxContentSize + 1<<20

// Handler holds API route handlers.
type Handler struct {
	docs    *documents.Service
	ws      *workspaces.Service
	docRepo objects.Repository
	wsRepo  objects.Repository
	logger  logging.Logger
}

// NewHandler creates a new Handler.
func NewHandler(docs *documents.Service, ws *workspaces.Service, docRepo, wsRepo objects.Repository, logger logging.Logger) *Handler {
	return &Handler{docs: docs, ws: ws, docRepo: docRepo, wsRepo: wsRepo, logger: logger}
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Metrics handles GET /metrics with object counts per kind.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	docCount, err := h.docRepo.Count(r.Context())
	if err != nil {
		h.writeCoreError(w, r, err)
		return
	}
	wsCount, err := h.wsRepo.Count(r.Context())
	if err != nil {
		h.writeCoreError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int64{
		"documents":  docCount,
		"workspaces": wsCount,
	})
}

// CreateDocument handles POST /api/v1/docs. The response is the only
// moment the write and read keys are observable.
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeJSON(w, http.StatusBadRequest, errorBody("bad_request", "Malformed JSON body."))
		return
	}

	res, err := h.docs.Create(r.Context(), req.Content)
	if err != nil {
		h.writeCoreError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{
		"id":        res.ID,
		"write_key": encodeKey(res.WriteKey),
		"read_key":  encodeKey(res.ReadKey),
		"version":   res.Version,
	})
}

// GetDocument handles GET /api/v1/docs/{docID}, with optional ?lines=N
// partial fetch. Markdown is the default representation; a JSON envelope
// is returned on Accept: application/json.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromHeader(r)
	if err != nil {
		h.writeCoreError(w, r, err)
		return
	}
	lines, err := parseLinesParam(r, "lines")
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody("bad_request", "lines must be a positive integer"))
		return
	}

	res, err := h.docs.Read(r.Context(), chi.URLParam(r, "docID"), key, lines)
	if err != nil {
		h.writeCoreError(w, r, err)
		return
	}

	w.Header().Set("ETag", etag(res.Version))
	if res.Truncated {
		w.Header().Set("X-Molt-Truncated", "true")
		w.Header().Set("X-Molt-Total-Lines", strconv.Itoa(res.TotalLines))
	}

	if wantsJSON(r) {
		h.writeJSON(w, http.StatusOK, map[string]any{
			"id":      res.ID,
			"content": res.Content,
			"version": res.Version,
		})
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(res.Content))
}

// ReplaceDocument handles PUT /api/v1/docs/{docID} with a text/markdown
// body and an optional If-Match version precondition.
func (h *Handler) ReplaceDocument(w http.ResponseWriter, r *http.Request) {
	h.mutateDocument(w, r, h.docs.Replace)
}

// AppendDocument handles PATCH /api/v1/docs/{docID}; the body is joined to
// the current content with a line break.
func (h *Handler) AppendDocument(w http.ResponseWriter, r *http.Request) {
	h.mutateDocument(w, r, h.docs.Append)
}

func (h *Handler) mutateDocument(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id string, key []byte, body string, expectedVersion *int64) (int64, error)) {
	key, err := keyFromHeader(r)
	if err != nil {
		h.writeCoreError(w, r, err)
		return
	}
	body, ok := h.markdownBody(w, r)
	if !ok {
		return
	}
	expected, err := parseIfMatch(r)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody("bad_request", `Malformed If-Match header. Expected format: "v<number>".`))
		return
	}

	version, err := op(r.Context(), chi.URLParam(r, "docID"), key, body, expected)
	if err != nil {
		h.writeCoreError(w, r, err)
		return
	}
	w.Header().Set("ETag", etag(version))
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "version": version})
}

// DeleteDocument handles DELETE /api/v1/docs/{docID}.
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromHeader(r)
	if err != nil {
		h.writeCoreError(w, r, err)
		return
	}
	if err := h.docs.Delete(r.Context(), chi.URLParam(r, "docID"), key); err != nil {
		h.writeCoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// markdownBody reads a text/markdown request body, rejecting other content
// types the way the protocol always has.
func (h *Handler) markdownBody(w http.ResponseWriter, r *http.Request) (string, bool) {
	if ct := r.Header.Get("Content-Type"); ct != "" && ct != "text/markdown" && ct != "text/markdown; charset=utf-8" {
		h.writeJSON(w, http.StatusBadRequest, errorBody("bad_request", "Content-Type must be text/markdown."))
		return "", false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody("bad_request", "Could not read request body."))
		return "", false
	}
	return string(body), true
}
