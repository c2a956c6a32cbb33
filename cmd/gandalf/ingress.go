package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rs/dnscache"
	"go.opentelemetry.io/otel/trace"

	gateway "github.com/eugener/gandalf/internal"
	"github.com/eugener/gandalf/internal/cache"
	"github.com/eugener/gandalf/internal/circuitbreaker"
	"github.com/eugener/gandalf/internal/config"
	"github.com/eugener/gandalf/internal/ingress"
	"github.com/eugener/gandalf/internal/ingress/codeproc"
	"github.com/eugener/gandalf/internal/ingress/forward"
	"github.com/eugener/gandalf/internal/ingress/pool"
	"github.com/eugener/gandalf/internal/ingress/route"
	"github.com/eugener/gandalf/internal/ratelimit"
	"github.com/eugener/gandalf/internal/storage"
	"github.com/eugener/gandalf/internal/telemetry"
	"github.com/eugener/gandalf/internal/worker"
)

// ingressDefaultPool is the worker pool sizing for built-in processors
// (the echo code processor, the eventmesh forward processor) when no
// admin-persisted binding overrides it.
var ingressDefaultPool = pool.Config{Workers: 8, QueueSize: 256}

// buildIngressServer constructs the ingress front-end, rebuilding its
// route table from storage.IngressRouteStore when bindings already exist
// there, or seeding the built-in defaults (and persisting them) on a
// fresh database.
func buildIngressServer(
	ctx context.Context,
	cfg *config.Config,
	store storage.Store,
	resolver *dnscache.Resolver,
	metrics *telemetry.Metrics,
	tracer trace.Tracer,
	audit *worker.IngressAuditWorker,
) (*ingress.Server, error) {
	var tlsConfig *tls.Config
	if cfg.Ingress.TLS != nil && cfg.Ingress.TLS.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.Ingress.TLS.CertFile, cfg.Ingress.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load ingress tls keypair: %w", err)
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	srv := ingress.New(ingress.Config{
		Addr:           cfg.Ingress.Addr,
		TLSConfig:      tlsConfig,
		MaxConnections: cfg.Ingress.MaxConnections,
		IdleTimeout:    cfg.Ingress.IdleTimeout,
		CompleterSize:  cfg.Ingress.CompleterSize,
		ServerIP:       cfg.Ingress.ServerIP,
	}, metrics, tracer)

	bindings, err := store.ListIngressRoutes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list persisted ingress routes: %w", err)
	}

	if len(bindings) == 0 {
		bindings, err = seedDefaultIngressRoutes(ctx, cfg, store)
		if err != nil {
			return nil, fmt.Errorf("seed ingress routes: %w", err)
		}
	}

	var forwardCache cache.Cache
	if cfg.Cache.Enabled {
		mc, err := cache.NewMemory(cfg.Cache.MaxSize, cfg.Cache.DefaultTTL)
		if err != nil {
			return nil, fmt.Errorf("build forward response cache: %w", err)
		}
		forwardCache = mc
	}

	for _, b := range bindings {
		wp := pool.New(pool.Config{Workers: b.PoolWorkers, QueueSize: b.PoolQueueSize})
		proc, err := resolveProcessor(b.ProcessorName, cfg, resolver, metrics, forwardCache)
		if err != nil {
			slog.Warn("ingress route skipped, unknown processor", "processor", b.ProcessorName, "match", b.Match)
			continue
		}
		switch b.Kind {
		case "code":
			cp, ok := proc.(route.CodeProcessor)
			if !ok {
				slog.Warn("ingress route skipped, processor is not a CodeProcessor", "processor", b.ProcessorName, "match", b.Match)
				continue
			}
			if err := srv.Table().RegisterCode(b.Match, cp, wp); err != nil {
				return nil, fmt.Errorf("register code route %q: %w", b.Match, err)
			}
		case "uri":
			ep, ok := proc.(route.EventProcessor)
			if !ok {
				slog.Warn("ingress route skipped, processor is not an EventProcessor", "processor", b.ProcessorName, "match", b.Match)
				continue
			}
			if err := srv.Table().RegisterURI(b.Match, ep, wp); err != nil {
				return nil, fmt.Errorf("register uri route %q: %w", b.Match, err)
			}
		default:
			slog.Warn("ingress route skipped, unknown kind", "kind", b.Kind, "match", b.Match)
			continue
		}
		if audit != nil {
			audit.Record("bootstrap", "register_"+b.Kind, b.Match, b.ProcessorName)
		}
	}

	return srv, nil
}

// resolveProcessor maps a persisted processor name to its concrete
// implementation. New processor types are added here as they are built.
func resolveProcessor(name string, cfg *config.Config, resolver *dnscache.Resolver, metrics *telemetry.Metrics, forwardCache cache.Cache) (any, error) {
	switch name {
	case "echo":
		return codeproc.Echo{}, nil
	case "forward":
		if cfg.Ingress.ForwardUpstream == "" {
			return nil, fmt.Errorf("forward processor requires ingress.forward_upstream")
		}
		return forward.New(forward.Config{
			Resolver: resolver,
			Upstream: cfg.Ingress.ForwardUpstream,
			Timeout:  cfg.Ingress.ForwardTimeout,
			Limits: ratelimit.Limits{
				RPM: cfg.RateLimits.DefaultRPM,
				TPM: cfg.RateLimits.DefaultTPM,
			},
			Breaker: circuitbreaker.Config{
				ErrorThreshold: cfg.Ingress.ForwardBreakerErrorThreshold,
				MinSamples:     cfg.Ingress.ForwardBreakerMinSamples,
				WindowSeconds:  cfg.Ingress.ForwardBreakerWindowSeconds,
				OpenTimeout:    cfg.Ingress.ForwardBreakerOpenTimeout,
			},
			Cache:    forwardCache,
			CacheTTL: cfg.Cache.DefaultTTL,
			Metrics:  metrics,
		}), nil
	default:
		return nil, fmt.Errorf("unknown processor %q", name)
	}
}

// seedDefaultIngressRoutes persists the built-in route bindings on a
// fresh database: an echo code processor on request code "200" (the
// dispatcher's happy-path example) and, if an upstream is configured, a
// forward processor on the "/eventmesh/" prefix.
func seedDefaultIngressRoutes(ctx context.Context, cfg *config.Config, store storage.Store) ([]*gateway.IngressRouteBinding, error) {
	var out []*gateway.IngressRouteBinding

	echo := newIngressRouteBinding("code", "200", "echo", ingressDefaultPool)
	if err := store.CreateIngressRoute(ctx, echo); err != nil {
		return nil, err
	}
	out = append(out, echo)

	if cfg.Ingress.ForwardUpstream != "" {
		fwd := newIngressRouteBinding("uri", "/eventmesh/", "forward", ingressDefaultPool)
		if err := store.CreateIngressRoute(ctx, fwd); err != nil {
			return nil, err
		}
		out = append(out, fwd)
	}

	return out, nil
}

func newIngressRouteBinding(kind, match, processorName string, p pool.Config) *gateway.IngressRouteBinding {
	return &gateway.IngressRouteBinding{
		ID:            uuid.Must(uuid.NewV7()).String(),
		Kind:          kind,
		Match:         match,
		ProcessorName: processorName,
		PoolWorkers:   p.Workers,
		PoolQueueSize: p.QueueSize,
		CreatedAt:     time.Now().UTC(),
	}
}
