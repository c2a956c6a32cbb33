package adminapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	gateway "github.com/eugener/gandalf/internal"
)

// maxAdminBody is the maximum allowed admin request body size (1 MB).
const maxAdminBody = 1 << 20

// jsonCT is a pre-allocated header value slice, avoiding the []string{v}
// alloc that Header.Set creates on every response.
var jsonCT = []string{"application/json"}

// apiError is the JSON error envelope returned by admin endpoints.
type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func errorResponse(msg string) apiError {
	var e apiError
	e.Error.Message = msg
	return e
}

// writeJSON marshals v, sets the response status, and writes the body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		w.Header()["Content-Type"] = jsonCT
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"encode response"}}`))
		return
	}
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	w.Write(body)
}

// decodeJSON limits body size, decodes JSON into v, and writes a 400 on error.
// Returns true if decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxAdminBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body"))
		return false
	}
	return true
}

// errorStatus maps a domain error to its HTTP status code.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, gateway.ErrUnauthorized), errors.Is(err, gateway.ErrKeyExpired):
		return http.StatusUnauthorized
	case errors.Is(err, gateway.ErrForbidden), errors.Is(err, gateway.ErrKeyBlocked):
		return http.StatusForbidden
	case errors.Is(err, gateway.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, gateway.ErrRateLimited), errors.Is(err, gateway.ErrUpstreamDown):
		return http.StatusTooManyRequests
	case errors.Is(err, gateway.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, gateway.ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeAdminError logs the full error server-side and returns a sanitized
// message to the client to avoid leaking internal details (e.g. SQLite errors).
func writeAdminError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	switch {
	case errors.Is(err, gateway.ErrNotFound):
		writeJSON(w, status, errorResponse("not found"))
	case errors.Is(err, gateway.ErrConflict):
		writeJSON(w, status, errorResponse("conflict"))
	default:
		slog.LogAttrs(r.Context(), slog.LevelError, "admin error",
			slog.String("error", err.Error()),
		)
		writeJSON(w, status, errorResponse("internal error"))
	}
}

// --- Pagination helpers ---

type pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}

type listResponse struct {
	Data       any        `json:"data"`
	Pagination pagination `json:"pagination"`
}

func parsePagination(r *http.Request) (offset, limit int) {
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return
}

// resolveOrgID returns the org_id from the query string, defaulting to the
// caller's org. Writes 403 and returns "" if the requested org differs.
func resolveOrgID(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity := gateway.IdentityFromContext(r.Context())
	orgID := r.URL.Query().Get("org_id")
	if orgID == "" {
		orgID = identity.OrgID
	}
	if orgID != identity.OrgID {
		writeJSON(w, http.StatusForbidden, errorResponse("cannot access resources outside your organization"))
		return "", false
	}
	return orgID, true
}

// parseExpiresAt parses an optional RFC3339 expires_at string pointer.
// Writes 400 and returns false on invalid format.
func parseExpiresAt(w http.ResponseWriter, raw *string) (*time.Time, bool) {
	if raw == nil {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid expires_at format"))
		return nil, false
	}
	return &t, true
}
