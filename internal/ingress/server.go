package ingress

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/eugener/gandalf/internal/ingress/gate"
	"github.com/eugener/gandalf/internal/ingress/pool"
	"github.com/eugener/gandalf/internal/ingress/route"
	"github.com/eugener/gandalf/internal/telemetry"
)

// DefaultCompleterSize is the size of the dedicated pool processors may
// use to complete an AsyncContext from outside the dispatch goroutine.
const DefaultCompleterSize = 10

// Config controls an ingress Server.
type Config struct {
	Addr            string
	TLSConfig       *tls.Config
	MaxConnections  int64
	IdleTimeout     time.Duration
	CompleterSize   int
	ServerIP        string
	Charset         string
	MaxBodyBytes    int64
	DefaultPoolSize pool.Config
}

func (c Config) maxBodyBytes() int64 {
	return c.MaxBodyBytes // 0 means decode.Decode falls back to decode.MaxBodyBytes
}

func (c Config) charset() string {
	if c.Charset == "" {
		return "utf-8"
	}
	return c.Charset
}

func (c Config) completerSize() int {
	if c.CompleterSize <= 0 {
		return DefaultCompleterSize
	}
	return c.CompleterSize
}

// Server is the ingress front-end's lifecycle and request handler: the
// connection gate, protocol pipeline, and route table are all reachable
// from it. The route table takes registrations before Start; the gate
// and pipeline exist only after Start.
type Server struct {
	cfg     Config
	table   *route.Table
	metrics *telemetry.Metrics
	tracer  trace.Tracer

	httpSrv   *http.Server
	gateL     *gate.Listener
	completer *pool.Pool
	started   atomic.Bool

	startOnce    sync.Once
	shutdownOnce sync.Once
}

// New constructs a Server with an empty, unfrozen route table. Register
// processors via Table() before calling Start.
func New(cfg Config, metrics *telemetry.Metrics, tracer trace.Tracer) *Server {
	if tracer == nil {
		tracer = telemetry.NoopTracer()
	}
	if metrics == nil {
		// The dispatcher unconditionally records request/discard/latency
		// metrics; give it a private registry when the caller has
		// Prometheus disabled rather than threading nil checks through
		// every dispatch path.
		metrics = telemetry.NewMetrics(prometheus.NewRegistry())
	}
	return &Server{
		cfg:     cfg,
		table:   route.NewTable(),
		metrics: metrics,
		tracer:  tracer,
	}
}

// Table exposes the route table for registration before Start.
func (s *Server) Table() *route.Table { return s.table }

// Start freezes the route table, builds the completer pool, binds the
// listener, and begins serving on a dedicated goroutine. started flips
// true only after the bind succeeds; a bind failure triggers an
// immediate Shutdown and returns the error.
func (s *Server) Start(ctx context.Context) error {
	var startErr error
	s.startOnce.Do(func() {
		s.table.Freeze()
		s.completer = pool.New(pool.Config{Workers: s.cfg.completerSize(), QueueSize: s.cfg.completerSize() * 4})

		ln, err := net.Listen("tcp", s.cfg.Addr)
		if err != nil {
			startErr = fmt.Errorf("ingress: listen %s: %w", s.cfg.Addr, err)
			return
		}
		s.gateL = gate.New(ln, s.cfg.MaxConnections, s.cfg.IdleTimeout)

		s.httpSrv = &http.Server{
			Handler:   s,
			TLSConfig: s.cfg.TLSConfig,
			ConnState: s.connState,
		}

		s.started.Store(true)

		go func() {
			var serveErr error
			if s.cfg.TLSConfig != nil {
				serveErr = s.httpSrv.ServeTLS(s.gateL, "", "")
			} else {
				serveErr = s.httpSrv.Serve(s.gateL)
			}
			if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				slog.Error("ingress: serve exited", "error", serveErr)
			}
		}()
	})
	if startErr != nil {
		_ = s.Shutdown(ctx)
		return startErr
	}
	return nil
}

// connState copies the gate's live-connection count into the
// LiveConnections gauge when a connection opens, closes or is hijacked;
// the gate itself handles the live-connection accounting. It writes no
// log line, including for idle-timeout closures.
func (s *Server) connState(conn net.Conn, state http.ConnState) {
	switch state {
	case http.StateClosed, http.StateHijacked:
		if s.metrics != nil {
			s.metrics.LiveConnections.Set(float64(s.gateL.Live()))
		}
	case http.StateNew:
		if s.metrics != nil {
			s.metrics.LiveConnections.Set(float64(s.gateL.Live()))
		}
	}
}

// Shutdown flips started false first (S1 — new requests answer 503
// immediately), drains in-flight requests, then closes the completer
// pool. Idempotent.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.started.Store(false)
		if s.httpSrv != nil {
			if err := s.httpSrv.Shutdown(ctx); err != nil {
				shutdownErr = err
			}
		}
		if s.completer != nil {
			s.completer.Close()
		}
	})
	return shutdownErr
}

// Name identifies this server when supervised by worker.Runner.
func (s *Server) Name() string { return "ingress_server" }

// Run implements worker.Worker: it starts the server and blocks until
// ctx is cancelled, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Shutdown(context.Background())
}
