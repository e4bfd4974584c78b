package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/moltmd/moltd/internal/common"
)

type errResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type conflictResponse struct {
	Error          string `json:"error"`
	CurrentVersion int64  `json:"current_version"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error(context.Background(), "json encode failed", "error", err.Error())
	}
}

func errorBody(code, msg string) errResponse {
	return errResponse{Error: code, Message: msg}
}

// writeCoreError maps core errors onto transport responses. AuthFailure is
// collapsed into the same 403 as Forbidden so the response never reveals
// which failure mode occurred.
func (h *Handler) writeCoreError(w http.ResponseWriter, r *http.Request, err error) {
	if vm, ok := common.AsVersionMismatch(err); ok {
		h.writeJSON(w, http.StatusConflict, conflictResponse{Error: "conflict", CurrentVersion: vm.Current})
		return
	}

	switch {
	case errors.Is(err, common.ErrorNotFound):
		h.writeJSON(w, http.StatusNotFound, errorBody("not_found", "Object not found."))
	case errors.Is(err, common.ErrorForbidden), errors.Is(err, common.ErrAuthFailure):
		h.writeJSON(w, http.StatusForbidden, errorBody("forbidden", "Invalid encryption key."))
	case errors.Is(err, common.ErrorPayloadTooLarge):
		h.writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("payload_too_large", "Content exceeds 5 MB limit."))
	case errors.Is(err, common.ErrorInvalidArgument):
		h.writeJSON(w, http.StatusBadRequest, errorBody("bad_request", "Invalid request."))
	default:
		h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err.Error())
		h.writeJSON(w, http.StatusInternalServerError, errorBody("error", "Internal error."))
	}
}

// keyFromHeader extracts and decodes the capability key. Missing or
// undecodable keys are a permission failure, not a validation one: the
// response must not distinguish a bad header from a wrong key.
func keyFromHeader(r *http.Request) ([]byte, error) {
	encoded := r.Header.Get(common.KeyHeaderName)
	if encoded == "" {
		return nil, common.ErrorForbidden
	}
	key, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, common.ErrorForbidden
	}
	return key, nil
}

// encodeKey renders a raw capability key for a create response.
func encodeKey(key []byte) string {
	return base64.URLEncoding.EncodeToString(key)
}

// parseIfMatch reads an optional `If-Match: "v<N>"` precondition.
// A malformed header is a bad request, never silently ignored.
func parseIfMatch(r *http.Request) (*int64, error) {
	raw := r.Header.Get("If-Match")
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(strings.TrimPrefix(strings.Trim(raw, `"`), "v"), 10, 64)
	if err != nil {
		return nil, common.ErrorInvalidArgument
	}
	return &v, nil
}

// parseLinesParam reads an optional positive-integer query parameter.
// Returns 0 when absent; anything non-numeric or < 1 is a bad request.
func parseLinesParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, common.ErrorInvalidArgument
	}
	return n, nil
}

func etag(version int64) string {
	return fmt.Sprintf(`"v%d"`, version)
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
