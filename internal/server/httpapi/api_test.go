package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moltmd/moltd/internal/common"
	"github.com/moltmd/moltd/internal/logging"
	"github.com/moltmd/moltd/internal/server/documents"
	"github.com/moltmd/moltd/internal/server/repositories/objects"
	"github.com/moltmd/moltd/internal/server/workspaces"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	docRepo := objects.NewInMemoryRepository()
	wsRepo := objects.NewInMemoryRepository()
	docSvc := documents.NewService(docRepo)
	wsSvc := workspaces.NewService(wsRepo, docSvc)
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	srv := httptest.NewServer(NewRouter(NewHandler(docSvc, wsSvc, docRepo, wsRepo, logger)))
	t.Cleanup(srv.Close)
	return srv
}

type createdDoc struct {
	ID       string `json:"id"`
	WriteKey string `json:"write_key"`
	ReadKey  string `json:"read_key"`
	Version  int64  `json:"version"`
}

func doRequest(t *testing.T, srv *httptest.Server, method, path, key string, headers map[string]string, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, srv.URL+path, bytes.NewBufferString(body))
	require.NoError(t, err)
	if key != "" {
		req.Header.Set(common.KeyHeaderName, key)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func createDoc(t *testing.T, srv *httptest.Server, content string) createdDoc {
	t.Helper()

	body, err := json.Marshal(map[string]string{"content": content})
	require.NoError(t, err)
	resp := doRequest(t, srv, http.MethodPost, "/api/v1/docs", "",
		map[string]string{"Content-Type": "application/json"}, string(body))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	doc := decodeBody[createdDoc](t, resp)
	require.NotEmpty(t, doc.ID)
	require.NotEmpty(t, doc.WriteKey)
	require.NotEmpty(t, doc.ReadKey)
	require.Equal(t, int64(1), doc.Version)
	return doc
}

func TestDocumentLifecycle(t *testing.T) {
	srv := newTestServer(t)

	doc := createDoc(t, srv, "# Hello")

	// Read with the read key: markdown body, version ETag.
	resp := doRequest(t, srv, http.MethodGet, "/api/v1/docs/"+doc.ID, doc.ReadKey, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `"v1"`, resp.Header.Get("ETag"))
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/markdown")
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "# Hello", string(raw))

	// Conditional replace from v1 succeeds and moves the ETag to v2.
	resp = doRequest(t, srv, http.MethodPut, "/api/v1/docs/"+doc.ID, doc.WriteKey,
		map[string]string{"Content-Type": "text/markdown", "If-Match": `"v1"`}, "# Updated")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `"v2"`, resp.Header.Get("ETag"))
	resp.Body.Close()

	// A stale precondition conflicts and reports the current version.
	resp = doRequest(t, srv, http.MethodPut, "/api/v1/docs/"+doc.ID, doc.WriteKey,
		map[string]string{"Content-Type": "text/markdown", "If-Match": `"v1"`}, "# Stale")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	conflict := decodeBody[struct {
		Error          string `json:"error"`
		CurrentVersion int64  `json:"current_version"`
	}](t, resp)
	assert.Equal(t, "conflict", conflict.Error)
	assert.Equal(t, int64(2), conflict.CurrentVersion)

	// Delete with the read key is forbidden.
	resp = doRequest(t, srv, http.MethodDelete, "/api/v1/docs/"+doc.ID, doc.ReadKey, nil, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// Delete with the write key succeeds, then the document is gone.
	resp = doRequest(t, srv, http.MethodDelete, "/api/v1/docs/"+doc.ID, doc.WriteKey, nil, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = doRequest(t, srv, http.MethodGet, "/api/v1/docs/"+doc.ID, doc.ReadKey, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestGetDocument_JSONRepresentation(t *testing.T) {
	srv := newTestServer(t)
	doc := createDoc(t, srv, "# Hello")

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/docs/"+doc.ID, doc.ReadKey,
		map[string]string{"Accept": "application/json"}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[struct {
		ID      string `json:"id"`
		Content string `json:"content"`
		Version int64  `json:"version"`
	}](t, resp)
	assert.Equal(t, doc.ID, body.ID)
	assert.Equal(t, "# Hello", body.Content)
	assert.Equal(t, int64(1), body.Version)
}

func TestGetDocument_PartialFetch(t *testing.T) {
	srv := newTestServer(t)
	doc := createDoc(t, srv, "Line 1\nLine 2\nLine 3")

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/docs/"+doc.ID+"?lines=2", doc.ReadKey, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get("X-Molt-Truncated"))
	assert.Equal(t, "3", resp.Header.Get("X-Molt-Total-Lines"))
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "Line 1\nLine 2", string(raw))

	// Asking for more lines than exist is not a truncation.
	resp = doRequest(t, srv, http.MethodGet, "/api/v1/docs/"+doc.ID+"?lines=10", doc.ReadKey, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("X-Molt-Truncated"))
	resp.Body.Close()

	// lines must be a positive integer.
	for _, q := range []string{"?lines=0", "?lines=-3", "?lines=abc"} {
		resp = doRequest(t, srv, http.MethodGet, "/api/v1/docs/"+doc.ID+q, doc.ReadKey, nil, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
		resp.Body.Close()
	}
}

func TestDocument_KeyHandling(t *testing.T) {
	srv := newTestServer(t)
	doc := createDoc(t, srv, "# Hello")

	// Missing key.
	resp := doRequest(t, srv, http.MethodGet, "/api/v1/docs/"+doc.ID, "", nil, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// Undecodable key: indistinguishable from a wrong one.
	resp = doRequest(t, srv, http.MethodGet, "/api/v1/docs/"+doc.ID, "!!!", nil, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	body := decodeBody[errResponse](t, resp)
	assert.Equal(t, "Invalid encryption key.", body.Message)

	// Another document's key.
	other := createDoc(t, srv, "# Other")
	resp = doRequest(t, srv, http.MethodGet, "/api/v1/docs/"+doc.ID, other.WriteKey, nil, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// Read key cannot replace.
	resp = doRequest(t, srv, http.MethodPut, "/api/v1/docs/"+doc.ID, doc.ReadKey,
		map[string]string{"Content-Type": "text/markdown"}, "# Nope")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestAppendDocument(t *testing.T) {
	srv := newTestServer(t)
	doc := createDoc(t, srv, "# Notes")

	resp := doRequest(t, srv, http.MethodPatch, "/api/v1/docs/"+doc.ID, doc.WriteKey,
		map[string]string{"Content-Type": "text/markdown"}, "- first item")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `"v2"`, resp.Header.Get("ETag"))
	resp.Body.Close()

	resp = doRequest(t, srv, http.MethodGet, "/api/v1/docs/"+doc.ID, doc.ReadKey, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "# Notes\n- first item", string(raw))
}

func TestMutateDocument_BadHeaders(t *testing.T) {
	srv := newTestServer(t)
	doc := createDoc(t, srv, "# Hello")

	// Wrong content type.
	resp := doRequest(t, srv, http.MethodPut, "/api/v1/docs/"+doc.ID, doc.WriteKey,
		map[string]string{"Content-Type": "application/json"}, `{"content":"x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Malformed If-Match.
	resp = doRequest(t, srv, http.MethodPut, "/api/v1/docs/"+doc.ID, doc.WriteKey,
		map[string]string{"Content-Type": "text/markdown", "If-Match": "banana"}, "# X")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestWorkspaceLifecycle(t *testing.T) {
	srv := newTestServer(t)
	doc := createDoc(t, srv, "Line 1\nLine 2\nLine 3")

	payload, err := json.Marshal(map[string]any{
		"name": "Project",
		"entries": []map[string]string{
			{"type": "md", "id": doc.ID, "key": doc.WriteKey},
		},
	})
	require.NoError(t, err)

	resp := doRequest(t, srv, http.MethodPost, "/api/v1/workspaces", "",
		map[string]string{"Content-Type": "application/json"}, string(payload))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ws := decodeBody[createdDoc](t, resp)

	// Read with previews.
	resp = doRequest(t, srv, http.MethodGet, "/api/v1/workspaces/"+ws.ID+"?preview_lines=1", ws.ReadKey, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `"v1"`, resp.Header.Get("ETag"))
	detail := decodeBody[workspaces.Detail](t, resp)
	assert.Equal(t, "Project", detail.Name)
	require.Len(t, detail.Entries, 1)
	require.NotNil(t, detail.Entries[0].Preview)
	assert.Equal(t, "Line 1", detail.Entries[0].Preview.Content)
	assert.True(t, detail.Entries[0].Preview.Truncated)

	// Scoped document read through the workspace.
	resp = doRequest(t, srv, http.MethodGet, "/api/v1/workspaces/"+ws.ID+"/docs/"+doc.ID, ws.ReadKey, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "Line 1\nLine 2\nLine 3", string(raw))

	// Read-level workspace key cannot mutate through the entry, even though
	// the entry embeds the document's write key.
	resp = doRequest(t, srv, http.MethodPut, "/api/v1/workspaces/"+ws.ID+"/docs/"+doc.ID, ws.ReadKey,
		map[string]string{"Content-Type": "text/markdown"}, "# Blocked")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// Write-level workspace key can.
	resp = doRequest(t, srv, http.MethodPatch, "/api/v1/workspaces/"+ws.ID+"/docs/"+doc.ID, ws.WriteKey,
		map[string]string{"Content-Type": "text/markdown"}, "Line 4")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `"v2"`, resp.Header.Get("ETag"))
	resp.Body.Close()

	// Replace the workspace payload itself.
	empty, err := json.Marshal(map[string]any{"name": "Renamed"})
	require.NoError(t, err)
	resp = doRequest(t, srv, http.MethodPut, "/api/v1/workspaces/"+ws.ID, ws.WriteKey,
		map[string]string{"Content-Type": "application/json", "If-Match": `"v1"`}, string(empty))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `"v2"`, resp.Header.Get("ETag"))
	resp.Body.Close()

	// Delete the workspace; the document survives.
	resp = doRequest(t, srv, http.MethodDelete, "/api/v1/workspaces/"+ws.ID, ws.WriteKey, nil, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = doRequest(t, srv, http.MethodGet, "/api/v1/docs/"+doc.ID, doc.ReadKey, nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestCreateWorkspace_InvalidPayload(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, srv, http.MethodPost, "/api/v1/workspaces", "",
		map[string]string{"Content-Type": "application/json"}, `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = doRequest(t, srv, http.MethodPost, "/api/v1/workspaces", "",
		map[string]string{"Content-Type": "application/json"}, `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)
	createDoc(t, srv, "# One")
	createDoc(t, srv, "# Two")

	resp := doRequest(t, srv, http.MethodGet, "/health", "", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decodeBody[map[string]string](t, resp)
	assert.Equal(t, "ok", health["status"])

	resp = doRequest(t, srv, http.MethodGet, "/metrics", "", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	metrics := decodeBody[map[string]int64](t, resp)
	assert.Equal(t, int64(2), metrics["documents"])
	assert.Equal(t, int64(0), metrics["workspaces"])
}

func TestPayloadTooLarge(t *testing.T) {
	srv := newTestServer(t)
	doc := createDoc(t, srv, "# Small")

	big := strings.Repeat("x", common.MaxContentSize+1)
	resp := doRequest(t, srv, http.MethodPut, "/api/v1/docs/"+doc.ID, doc.WriteKey,
		map[string]string{"Content-Type": "text/markdown"}, big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	resp.Body.Close()
}
