package adminapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	gateway "github.com/eugener/gandalf/internal"
)

// routeCreateRequest is the payload for registering a new ingress route
// binding. PoolWorkers/PoolQueueSize default to a modest worker pool
// when omitted, matching the built-in bindings seeded at startup.
type routeCreateRequest struct {
	Kind          string `json:"kind"` // "code" or "uri"
	Match         string `json:"match"`
	ProcessorName string `json:"processor_name"`
	PoolWorkers   int    `json:"pool_workers,omitempty"`
	PoolQueueSize int    `json:"pool_queue_size,omitempty"`
}

const (
	defaultPoolWorkers   = 8
	defaultPoolQueueSize = 256
)

func (s *server) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := s.deps.Store.ListIngressRoutes(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse("failed to list routes"))
		return
	}
	if routes == nil {
		routes = []*gateway.IngressRouteBinding{}
	}
	writeJSON(w, http.StatusOK, listResponse{
		Data:       routes,
		Pagination: pagination{Offset: 0, Limit: len(routes), Total: len(routes)},
	})
}

func (s *server) handleCreateRoute(w http.ResponseWriter, r *http.Request) {
	var req routeCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Kind != "code" && req.Kind != "uri" {
		writeJSON(w, http.StatusBadRequest, errorResponse("kind must be \"code\" or \"uri\""))
		return
	}
	if req.Match == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse("match is required"))
		return
	}
	if req.ProcessorName == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse("processor_name is required"))
		return
	}
	workers := req.PoolWorkers
	if workers <= 0 {
		workers = defaultPoolWorkers
	}
	queueSize := req.PoolQueueSize
	if queueSize <= 0 {
		queueSize = defaultPoolQueueSize
	}

	binding := &gateway.IngressRouteBinding{
		ID:            uuid.Must(uuid.NewV7()).String(),
		Kind:          req.Kind,
		Match:         req.Match,
		ProcessorName: req.ProcessorName,
		PoolWorkers:   workers,
		PoolQueueSize: queueSize,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.deps.Store.CreateIngressRoute(r.Context(), binding); err != nil {
		writeAdminError(w, r, err)
		return
	}

	if s.deps.Audit != nil {
		identity := gateway.IdentityFromContext(r.Context())
		s.deps.Audit.Record(identity.Subject, "register_"+req.Kind, req.Match, req.ProcessorName)
	}

	w.Header().Set("Location", "/admin/v1/routes/"+binding.ID)
	writeJSON(w, http.StatusCreated, binding)
}

// handleDeleteRoute removes a persisted route binding. The live route
// table is frozen at startup and does not support unregistration, so
// the effect takes hold on the next restart.
func (s *server) handleDeleteRoute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Store.DeleteIngressRoute(r.Context(), id); err != nil {
		writeAdminError(w, r, err)
		return
	}
	if s.deps.Audit != nil {
		identity := gateway.IdentityFromContext(r.Context())
		s.deps.Audit.Record(identity.Subject, "delete_route", id, "")
	}
	w.WriteHeader(http.StatusNoContent)
}
