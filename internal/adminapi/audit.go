package adminapi

import (
	"net/http"

	gateway "github.com/eugener/gandalf/internal"
)

func (s *server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	offset, limit := parsePagination(r)
	entries, err := s.deps.Store.ListIngressAudit(r.Context(), offset, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse("failed to list audit log"))
		return
	}
	if entries == nil {
		entries = []gateway.IngressAuditEntry{}
	}
	writeJSON(w, http.StatusOK, listResponse{
		Data:       entries,
		Pagination: pagination{Offset: offset, Limit: limit, Total: len(entries)},
	})
}
