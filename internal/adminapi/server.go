// Package adminapi implements the HTTP control-plane surface for the
// event-mesh ingress: admin API key lifecycle, ingress route-binding
// CRUD, and system health/metrics endpoints. It is deliberately small
// compared to the ingress data-plane -- admin traffic is low volume
// and authenticated, so it reuses a conventional chi middleware chain
// instead of the ingress's async worker-pool pipeline.
package adminapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	gateway "github.com/eugener/gandalf/internal"
	"github.com/eugener/gandalf/internal/app"
	"github.com/eugener/gandalf/internal/ratelimit"
	"github.com/eugener/gandalf/internal/storage"
	"github.com/eugener/gandalf/internal/telemetry"
	"github.com/eugener/gandalf/internal/worker"
)

// ReadyChecker reports whether the system is ready to serve traffic.
type ReadyChecker func(ctx context.Context) error

// KeyInvalidator evicts a cached API key so admin mutations take
// effect on the next request instead of waiting out the cache TTL.
type KeyInvalidator interface {
	InvalidateByKeyID(keyID string)
}

// Deps holds all dependencies for the admin HTTP server.
type Deps struct {
	Auth           gateway.Authenticator
	Keys           *app.KeyManager
	Store          storage.Store
	Audit          *worker.IngressAuditWorker
	KeyInvalidator KeyInvalidator
	Metrics        *telemetry.Metrics // nil = no Prometheus metrics
	MetricsHandler http.Handler       // nil = no /metrics endpoint
	Tracer         trace.Tracer       // nil = no distributed tracing
	ReadyCheck     ReadyChecker       // nil = always ready (for tests)
	RateLimiter    *ratelimit.Registry
	DefaultRPM     int64 // fallback RPM when per-key is 0
	DefaultTPM     int64 // fallback TPM when per-key is 0
}

// New creates an http.Handler with all admin routes and middleware wired.
func New(deps Deps) http.Handler {
	s := &server{deps: deps}

	r := chi.NewRouter()

	r.Use(s.securityHeaders)
	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.logging)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}
	if deps.Tracer != nil {
		r.Use(tracingMiddleware(deps.Tracer))
	}

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	if deps.Store != nil {
		r.Route("/admin/v1", func(r chi.Router) {
			r.Use(s.authenticate)
			r.Use(s.rateLimit)

			r.Group(func(r chi.Router) {
				r.Use(s.requirePerm(gateway.PermManageAdminKeys))
				r.Get("/keys", s.handleListKeys)
				r.Post("/keys", s.handleCreateKey)
				r.Get("/keys/{id}", s.handleGetKey)
				r.Put("/keys/{id}", s.handleUpdateKey)
				r.Delete("/keys/{id}", s.handleDeleteKey)
			})

			r.Group(func(r chi.Router) {
				r.Use(s.requirePerm(gateway.PermManageIngressRoutes))
				r.Get("/routes", s.handleListRoutes)
				r.Post("/routes", s.handleCreateRoute)
				r.Delete("/routes/{id}", s.handleDeleteRoute)
			})

			r.Group(func(r chi.Router) {
				r.Use(s.requirePerm(gateway.PermViewIngressAudit))
				r.Get("/audit", s.handleListAudit)
			})
		})
	}

	return r
}

type server struct {
	deps Deps
}
