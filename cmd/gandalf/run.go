package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/dnscache"
	"go.opentelemetry.io/otel/trace"

	gateway "github.com/eugener/gandalf/internal"
	"github.com/eugener/gandalf/internal/adminapi"
	"github.com/eugener/gandalf/internal/app"
	"github.com/eugener/gandalf/internal/auth"
	"github.com/eugener/gandalf/internal/config"
	"github.com/eugener/gandalf/internal/ratelimit"
	"github.com/eugener/gandalf/internal/storage/sqlite"
	"github.com/eugener/gandalf/internal/telemetry"
	"github.com/eugener/gandalf/internal/worker"
)

func run(configPath string) error {
	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	slog.Info("starting gandalf", "version", version, "addr", cfg.Server.Addr)

	// Open database
	store, err := sqlite.New(cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	dsnLog := cfg.Database.DSN
	if i := strings.IndexByte(dsnLog, '?'); i >= 0 {
		dsnLog = dsnLog[:i]
	}
	slog.Info("database opened", "dsn", dsnLog)

	// Bootstrap from config
	ctx := context.Background()
	if err := config.Bootstrap(ctx, cfg, store); err != nil {
		return err
	}

	// Log seeded API keys (names only, never log key material).
	for _, k := range cfg.Keys {
		if k.Key == "" {
			slog.Warn("api key empty, skipped", "name", k.Name)
			continue
		}
		valid := strings.HasPrefix(k.Key, gateway.APIKeyPrefix)
		slog.Info("api key configured", "name", k.Name, "valid_prefix", valid)
	}

	// Shared DNS cache for the forward processor's upstream HTTP client.
	dnsResolver := &dnscache.Resolver{}
	go func() {
		t := time.NewTicker(5 * time.Minute)
		defer t.Stop()
		for range t.C {
			dnsResolver.Refresh(true)
		}
	}()

	slog.Info("server timeouts",
		"read", cfg.Server.ReadTimeout,
		"write", cfg.Server.WriteTimeout,
		"shutdown", cfg.Server.ShutdownTimeout,
	)

	// Wire services
	apiKeyAuth, err := auth.NewAPIKeyAuth(store)
	if err != nil {
		return err
	}
	keys := app.NewKeyManager(store)

	// Rate limiter registry for the admin API's per-key RPM gate. Each
	// forward processor instance builds its own registry.
	rateLimiter := ratelimit.NewRegistry()
	slog.Info("rate limits configured",
		"default_rpm", cfg.RateLimits.DefaultRPM,
		"default_tpm", cfg.RateLimits.DefaultTPM,
	)

	// Prometheus metrics.
	var metrics *telemetry.Metrics
	var metricsHandler http.Handler
	if cfg.Telemetry.Metrics.Enabled {
		promRegistry := prometheus.NewRegistry()
		promRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		promRegistry.MustRegister(collectors.NewGoCollector())
		metrics = telemetry.NewMetrics(promRegistry)
		metricsHandler = promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})
		slog.Info("prometheus metrics enabled")
	}

	// OpenTelemetry tracing.
	var tracer trace.Tracer
	var tracingShutdown func(context.Context) error
	if cfg.Telemetry.Tracing.Enabled {
		endpoint := cfg.Telemetry.Tracing.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		sampleRate := cfg.Telemetry.Tracing.SampleRate
		if sampleRate == 0 {
			sampleRate = 0.1
		}
		shutdown, err := telemetry.SetupTracing(ctx, endpoint, sampleRate)
		if err != nil {
			slog.Warn("tracing setup failed, continuing without tracing", "error", err)
		} else {
			tracingShutdown = shutdown
			tracer = telemetry.Tracer("gandalf/ingress")
			slog.Info("opentelemetry tracing enabled",
				"endpoint", endpoint,
				"sample_rate", sampleRate,
			)
		}
	}

	// Ingress front-end: the request-code/URI-routed event mesh
	// listener. Disabled by default.
	var workers []worker.Worker
	ingressAudit := worker.NewIngressAuditWorker(store)
	workers = append(workers, ingressAudit)

	var ingressAddr string
	if cfg.Ingress.Enabled {
		ingressSrv, err := buildIngressServer(ctx, cfg, store, dnsResolver, metrics, tracer, ingressAudit)
		if err != nil {
			return fmt.Errorf("ingress: %w", err)
		}
		workers = append(workers, ingressSrv)
		ingressAddr = cfg.Ingress.Addr
		slog.Info("ingress front-end enabled", "addr", cfg.Ingress.Addr)
	}

	runner := worker.NewRunner(workers...)

	// Admin API: route-binding and admin-key CRUD, plus health/metrics.
	handler := adminapi.New(adminapi.Deps{
		Auth:           apiKeyAuth,
		Keys:           keys,
		Store:          store,
		Audit:          ingressAudit,
		KeyInvalidator: apiKeyAuth,
		RateLimiter:    rateLimiter,
		DefaultRPM:     cfg.RateLimits.DefaultRPM,
		DefaultTPM:     cfg.RateLimits.DefaultTPM,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
		Tracer:         tracer,
		ReadyCheck:     store.Ping,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	// Start background workers.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workerDone := make(chan error, 1)
	go func() {
		workerDone <- runner.Run(workerCtx)
	}()

	// Periodic eviction of stale rate limiters.
	go func() {
		t := time.NewTicker(10 * time.Minute)
		defer t.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-t.C:
				if n := rateLimiter.EvictStale(time.Now().Add(-1 * time.Hour)); n > 0 {
					slog.Info("rate limiter eviction", "evicted", n)
				}
			}
		}
	}()

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("admin api enabled",
		"endpoints", []string{
			"GET    /admin/v1/keys",
			"POST   /admin/v1/keys",
			"GET    /admin/v1/routes",
			"POST   /admin/v1/routes",
			"GET    /admin/v1/audit",
		},
	)
	slog.Info("gandalf ready", "addr", cfg.Server.Addr, "ingress_addr", ingressAddr)

	// Wait for signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig)
	case err := <-errCh:
		workerCancel()
		return err
	}

	// Shutdown HTTP first, then workers (so in-flight audit writes finish).
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		workerCancel()
		return err
	}

	// Cancel workers and wait for drain.
	workerCancel()
	if err := <-workerDone; err != nil {
		slog.Error("worker shutdown error", "error", err)
	}

	// Shutdown tracing exporter.
	if tracingShutdown != nil {
		if err := tracingShutdown(shutdownCtx); err != nil {
			slog.Error("tracing shutdown error", "error", err)
		}
	}

	slog.Info("gandalf stopped")
	return nil
}
