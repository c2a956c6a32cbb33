// Package forward implements a route.EventProcessor that relays a
// URI-routed event to a fixed upstream mesh peer over HTTP. Admission
// is gated by a per-upstream rate limiter and circuit breaker so a slow
// or failing peer degrades the forwarding route without starving the
// rest of the mesh; successful responses are cached briefly so repeated
// identical events (retries, fan-out duplicates) skip the round trip.
package forward

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/dnscache"

	"github.com/eugener/gandalf/internal/cache"
	"github.com/eugener/gandalf/internal/circuitbreaker"
	"github.com/eugener/gandalf/internal/ingress/async"
	"github.com/eugener/gandalf/internal/ingress/respond"
	"github.com/eugener/gandalf/internal/ingress/route"
	"github.com/eugener/gandalf/internal/ingress/transport"
	"github.com/eugener/gandalf/internal/ratelimit"
	"github.com/eugener/gandalf/internal/telemetry"
)

// maxResponseBytes bounds how much of an upstream response body is read
// back into the envelope; forwarded peers are expected to return small
// acknowledgement payloads, not bulk data.
const maxResponseBytes = 1 << 20

// Config bundles a forwarding processor's collaborators.
type Config struct {
	Resolver *dnscache.Resolver
	Upstream string
	Timeout  time.Duration

	// Limits caps the RPM/byte-budget admitted onto this upstream.
	// Zero fields mean unlimited.
	Limits ratelimit.Limits

	// Breaker configures the sliding-window circuit breaker tripped by
	// upstream error rate. Zero value falls back to circuitbreaker.DefaultConfig.
	Breaker circuitbreaker.Config

	// Cache, when non-nil, short-circuits identical forwarded requests.
	Cache    cache.Cache
	CacheTTL time.Duration

	Metrics *telemetry.Metrics
}

// Processor forwards an EventWrapper's body to a fixed upstream peer,
// admitting requests through a rate limiter and circuit breaker keyed
// to that single upstream.
type Processor struct {
	client   *http.Client
	upstream string
	limiter  *ratelimit.Limiter
	breaker  *circuitbreaker.Breaker
	cache    cache.Cache
	cacheTTL time.Duration
	metrics  *telemetry.Metrics
}

// New builds a forwarding processor targeting cfg.Upstream, dialing
// through cfg.Resolver's shared DNS cache.
func New(cfg Config) *Processor {
	t := transport.New(cfg.Resolver, true)
	client := &http.Client{Transport: t, Timeout: cfg.Timeout}

	breakerCfg := cfg.Breaker
	if breakerCfg == (circuitbreaker.Config{}) {
		breakerCfg = circuitbreaker.DefaultConfig()
	}

	return &Processor{
		client:   client,
		upstream: cfg.Upstream,
		limiter:  ratelimit.NewRegistry().GetOrCreate(cfg.Upstream, cfg.Limits),
		breaker:  circuitbreaker.NewBreaker(breakerCfg),
		cache:    cfg.Cache,
		cacheTTL: cfg.CacheTTL,
		metrics:  cfg.Metrics,
	}
}

// RejectRequest self-rejects once the circuit breaker has tripped on
// this upstream or the admission rate limit has been exhausted, so a
// saturated worker pool isn't spent on calls known to fail or throttle.
func (p *Processor) RejectRequest(ctx context.Context) bool {
	if !p.breaker.Allow() {
		p.observeReject("breaker_open")
		return true
	}
	if res := p.limiter.AllowRPM(); !res.Allowed {
		p.observeReject("rate_limited")
		return true
	}
	return false
}

func (p *Processor) observeReject(reason string) {
	if p.metrics == nil {
		return
	}
	if reason == "breaker_open" {
		p.metrics.CircuitBreakerRejects.WithLabelValues(p.upstream).Inc()
	} else {
		p.metrics.RateLimitRejects.WithLabelValues(reason).Inc()
	}
}

// ProcessRequest relays the event's body to the upstream peer and
// completes the AsyncContext with the relayed response, or a
// RUNTIME_ERR envelope when the call fails. A cache hit short-circuits
// the round trip entirely.
func (p *Processor) ProcessRequest(ctx context.Context, actx *async.Context[*route.EventWrapper]) error {
	req := actx.Request

	cacheKey := p.cacheKeyFor(req)
	if p.cache != nil && cacheKey != "" {
		if body, ok := p.cache.Get(ctx, cacheKey); ok {
			if p.metrics != nil {
				p.metrics.CacheHits.Inc()
			}
			actx.Complete(&route.EventWrapper{
				ResponseCode: respond.CodeOK,
				ResponseMsg:  respond.RetMsg(respond.CodeOK),
				ResponseBody: string(body),
			})
			return nil
		}
		if p.metrics != nil {
			p.metrics.CacheMisses.Inc()
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.upstream+req.RequestURI, bytes.NewReader(req.BodyBytes))
	if err != nil {
		return fmt.Errorf("forward: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.breaker.RecordError(circuitbreaker.ClassifyError(err))
		actx.Complete(&route.EventWrapper{
			ResponseCode: respond.CodeRuntimeErr,
			ResponseMsg:  respond.RetMsg(respond.CodeRuntimeErr),
		})
		return fmt.Errorf("forward: upstream call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		p.breaker.RecordError(circuitbreaker.ClassifyError(statusErr(resp.StatusCode)))
		actx.Complete(&route.EventWrapper{
			ResponseCode: respond.CodeRuntimeErr,
			ResponseMsg:  respond.RetMsg(respond.CodeRuntimeErr),
		})
		return fmt.Errorf("forward: read upstream response: %w", err)
	}

	if resp.StatusCode >= 400 {
		p.breaker.RecordError(circuitbreaker.ClassifyError(statusErr(resp.StatusCode)))
		actx.Complete(&route.EventWrapper{
			ResponseCode: respond.CodeRuntimeErr,
			ResponseMsg:  respond.RetMsg(respond.CodeRuntimeErr),
			ResponseBody: string(body),
		})
		return nil
	}

	p.breaker.RecordSuccess()
	if p.cache != nil && cacheKey != "" {
		p.cache.Set(ctx, cacheKey, body, p.cacheTTL)
	}

	actx.Complete(&route.EventWrapper{
		ResponseCode: respond.CodeOK,
		ResponseMsg:  respond.RetMsg(respond.CodeOK),
		ResponseBody: string(body),
	})
	return nil
}

// cacheKeyFor derives a cache key from the request URI and body hash.
// Returns "" for empty bodies, since those are typically non-idempotent
// probes not worth caching.
func (p *Processor) cacheKeyFor(req *route.EventWrapper) string {
	if len(req.BodyBytes) == 0 {
		return ""
	}
	sum := sha256.Sum256(req.BodyBytes)
	return req.RequestURI + ":" + hex.EncodeToString(sum[:])
}

// statusErr adapts an HTTP status code to circuitbreaker.ClassifyError's
// httpStatusError interface.
type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("upstream status %d", int(e)) }
func (e statusErr) HTTPStatus() int { return int(e) }
