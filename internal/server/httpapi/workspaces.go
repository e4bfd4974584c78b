package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/moltmd/moltd/internal/server/workspaces"
)

// CreateWorkspace handles POST /api/v1/workspaces.
func (h *Handler) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	var payload workspaces.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody("bad_request", "Malformed JSON body."))
		return
	}

	res, err := h.ws.Create(r.Context(), payload)
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

// GetWorkspace handles GET /api/v1/workspaces/{wsID}, with optional
// ?preview_lines=N entry enrichment.
func (h *Handler) GetWorkspace(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromHeader(r)
	if err != nil {
		h.writeCoreError(w, r, err)
		return
	}
	previewLines, err := parseLinesParam(r, "preview_lines")
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody("bad_request", "preview_lines must be a positive integer"))
		return
	}

	detail, err := h.ws.Read(r.Context(), chi.URLParam(r, "wsID"), key, previewLines)
	if err != nil {
		h.writeCoreError(w, r, err)
		return
	}
	w.Header().Set("ETag", etag(detail.Version))
	h.writeJSON(w, http.StatusOK, detail)
}

// ReplaceWorkspace handles PUT /api/v1/workspaces/{wsID} with an optional
// If-Match version precondition.
func (h *Handler) ReplaceWorkspace(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromHeader(r)
	if err != nil {
		h.writeCoreError(w, r, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	var payload workspaces.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody("bad_request", "Malformed JSON body."))
		return
	}
	expected, err := parseIfMatch(r)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody("bad_request", `Malformed If-Match header. Expected format: "v<number>".`))
		return
	}

	version, err := h.ws.Replace(r.Context(), chi.URLParam(r, "wsID"), key, payload, expected)
	if err != nil {
		h.writeCoreError(w, r, err)
		return
	}
	w.Header().Set("ETag", etag(version))
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "version": version})
}

// DeleteWorkspace handles DELETE /api/v1/workspaces/{wsID}. Referenced
// documents survive; entries are references, not ownership.
func (h *Handler) DeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromHeader(r)
	if err != nil {
		h.writeCoreError(w, r, err)
		return
	}
	if err := h.ws.Delete(r.Context(), chi.URLParam(r, "wsID"), key); err != nil {
		h.writeCoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetWorkspaceDocument handles GET /api/v1/workspaces/{wsID}/docs/{docID}:
// a document read authenticated by the workspace key, decrypted through
// the entry's embedded key.
func (h *Handler) GetWorkspaceDocument(w http.ResponseWriter, r *http.Request) {
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

	res, err := h.ws.ReadDocument(r.Context(), chi.URLParam(r, "wsID"), key, chi.URLParam(r, "docID"), lines)
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

// ReplaceWorkspaceDocument handles PUT /api/v1/workspaces/{wsID}/docs/{docID}.
func (h *Handler) ReplaceWorkspaceDocument(w http.ResponseWriter, r *http.Request) {
	h.mutateWorkspaceDocument(w, r, h.ws.ReplaceDocument)
}

// AppendWorkspaceDocument handles PATCH /api/v1/workspaces/{wsID}/docs/{docID}.
func (h *Handler) AppendWorkspaceDocument(w http.ResponseWriter, r *http.Request) {
	h.mutateWorkspaceDocument(w, r, h.ws.AppendDocument)
}

func (h *Handler) mutateWorkspaceDocument(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, wsID string, wsKey []byte, docID, body string, expectedVersion *int64) (int64, error)) {
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

	version, err := op(r.Context(), chi.URLParam(r, "wsID"), key, chi.URLParam(r, "docID"), body, expected)
	if err != nil {
		h.writeCoreError(w, r, err)
		return
	}
	w.Header().Set("ETag", etag(version))
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "version": version})
}

// DeleteWorkspaceDocument handles DELETE /api/v1/workspaces/{wsID}/docs/{docID}.
func (h *Handler) DeleteWorkspaceDocument(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromHeader(r)
	if err != nil {
		h.writeCoreError(w, r, err)
		return
	}
	if err := h.ws.DeleteDocument(r.Context(), chi.URLParam(r, "wsID"), key, chi.URLParam(r, "docID")); err != nil {
		h.writeCoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
