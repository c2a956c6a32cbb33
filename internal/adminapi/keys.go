package adminapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	gateway "github.com/eugener/gandalf/internal"
	"github.com/eugener/gandalf/internal/app"
)

// keyCreateRequest is the payload for creating a new admin API key.
type keyCreateRequest struct {
	OrgID     string  `json:"org_id"`
	UserID    string  `json:"user_id,omitempty"`
	TeamID    string  `json:"team_id,omitempty"`
	Role      string  `json:"role,omitempty"`
	RPMLimit  *int64  `json:"rpm_limit,omitempty"`
	TPMLimit  *int64  `json:"tpm_limit,omitempty"`
	ExpiresAt *string `json:"expires_at,omitempty"` // RFC3339
}

// keyCreateResponse includes the plaintext key (shown only once).
type keyCreateResponse struct {
	*gateway.APIKey
	PlaintextKey string `json:"key"`
}

func (s *server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	orgID, ok := resolveOrgID(w, r)
	if !ok {
		return
	}
	offset, limit := parsePagination(r)

	keys, err := s.deps.Store.ListKeys(r.Context(), orgID, offset, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse("failed to list keys"))
		return
	}
	total, _ := s.deps.Store.CountKeys(r.Context(), orgID)
	if keys == nil {
		keys = []*gateway.APIKey{}
	}
	writeJSON(w, http.StatusOK, listResponse{
		Data:       keys,
		Pagination: pagination{Offset: offset, Limit: limit, Total: total},
	})
}

func (s *server) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	var req keyCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	// Reject unknown roles early to prevent storing invalid data in DB.
	if req.Role != "" && !gateway.ValidRole(req.Role) {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid role"))
		return
	}
	identity := gateway.IdentityFromContext(r.Context())
	if req.OrgID == "" {
		req.OrgID = identity.OrgID
	}
	if req.OrgID != identity.OrgID {
		writeJSON(w, http.StatusForbidden, errorResponse("cannot create keys outside your organization"))
		return
	}

	expiresAt, ok := parseExpiresAt(w, req.ExpiresAt)
	if !ok {
		return
	}

	plaintext, key, err := s.deps.Keys.CreateKey(r.Context(), app.CreateKeyOpts{
		OrgID:     req.OrgID,
		UserID:    req.UserID,
		TeamID:    req.TeamID,
		Role:      req.Role,
		RPMLimit:  req.RPMLimit,
		TPMLimit:  req.TPMLimit,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		writeAdminError(w, r, err)
		return
	}

	w.Header().Set("Location", "/admin/v1/keys/"+key.ID)
	writeJSON(w, http.StatusCreated, keyCreateResponse{
		APIKey:       key,
		PlaintextKey: plaintext,
	})
}

func (s *server) handleGetKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	key, err := s.deps.Store.GetKey(r.Context(), id)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	identity := gateway.IdentityFromContext(r.Context())
	if key.OrgID != identity.OrgID {
		writeJSON(w, http.StatusNotFound, errorResponse("not found"))
		return
	}
	writeJSON(w, http.StatusOK, key)
}

func (s *server) handleUpdateKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := s.deps.Store.GetKey(r.Context(), id)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	identity := gateway.IdentityFromContext(r.Context())
	if existing.OrgID != identity.OrgID {
		writeJSON(w, http.StatusNotFound, errorResponse("not found"))
		return
	}

	var update struct {
		Role      *string `json:"role,omitempty"`
		RPMLimit  *int64  `json:"rpm_limit,omitempty"`
		TPMLimit  *int64  `json:"tpm_limit,omitempty"`
		ExpiresAt *string `json:"expires_at,omitempty"`
		Blocked   *bool   `json:"blocked,omitempty"`
	}
	if !decodeJSON(w, r, &update) {
		return
	}

	// Reject unknown roles early to prevent storing invalid data in DB.
	if update.Role != nil {
		if !gateway.ValidRole(*update.Role) {
			writeJSON(w, http.StatusBadRequest, errorResponse("invalid role"))
			return
		}
		existing.Role = *update.Role
	}
	if update.RPMLimit != nil {
		existing.RPMLimit = update.RPMLimit
	}
	if update.TPMLimit != nil {
		existing.TPMLimit = update.TPMLimit
	}
	if update.ExpiresAt != nil {
		expiresAt, ok := parseExpiresAt(w, update.ExpiresAt)
		if !ok {
			return
		}
		existing.ExpiresAt = expiresAt
	}
	if update.Blocked != nil {
		existing.Blocked = *update.Blocked
	}

	if err := s.deps.Store.UpdateKey(r.Context(), existing); err != nil {
		writeAdminError(w, r, err)
		return
	}
	if s.deps.KeyInvalidator != nil {
		s.deps.KeyInvalidator.InvalidateByKeyID(id)
	}
	writeJSON(w, http.StatusOK, existing)
}

func (s *server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	key, err := s.deps.Store.GetKey(r.Context(), id)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	identity := gateway.IdentityFromContext(r.Context())
	if key.OrgID != identity.OrgID {
		writeJSON(w, http.StatusNotFound, errorResponse("not found"))
		return
	}
	if err := s.deps.Store.DeleteKey(r.Context(), id); err != nil {
		writeAdminError(w, r, err)
		return
	}
	if s.deps.KeyInvalidator != nil {
		s.deps.KeyInvalidator.InvalidateByKeyID(id)
	}
	w.WriteHeader(http.StatusNoContent)
}
