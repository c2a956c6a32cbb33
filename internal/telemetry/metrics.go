// Package telemetry provides observability primitives for the Gandalf ingress.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the gateway.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ActiveRequests   prometheus.Gauge
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	RateLimitRejects      *prometheus.CounterVec
	CircuitBreakerState   *prometheus.GaugeVec   // labels: upstream, state
	CircuitBreakerRejects *prometheus.CounterVec // labels: upstream

	// Ingress front-end metrics (C8).
	HTTPRequests    *prometheus.CounterVec // labels: kind ("code"|"uri")
	HTTPDiscards    *prometheus.CounterVec // labels: kind, reason
	DecodeDuration  prometheus.Histogram   // milliseconds
	ReqResDuration  *prometheus.HistogramVec // labels: kind
	LiveConnections prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gandalf",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "gandalf",
			Name:                            "request_duration_seconds",
			Help:                            "HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gandalf",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gandalf",
			Name:      "cache_hits_total",
			Help:      "Total response cache hits.",
		}),

		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gandalf",
			Name:      "cache_misses_total",
			Help:      "Total response cache misses.",
		}),

		RateLimitRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gandalf",
			Name:      "ratelimit_rejects_total",
			Help:      "Total rate limit rejections.",
		}, []string{"type"}),

		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gandalf",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per forward upstream (0=closed, 1=open, 2=half_open).",
		}, []string{"upstream"}),

		CircuitBreakerRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gandalf",
			Name:      "circuit_breaker_rejects_total",
			Help:      "Total requests rejected by the forward-processor circuit breaker.",
		}, []string{"upstream"}),

		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gandalf",
			Name:      "ingress_http_requests_total",
			Help:      "Total ingress requests that passed validation, by classification.",
		}, []string{"kind"}),

		HTTPDiscards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gandalf",
			Name:      "ingress_http_discards_total",
			Help:      "Total ingress requests discarded, by reason (saturated worker pool or invalid request code).",
		}, []string{"kind", "reason"}),

		DecodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gandalf",
			Name:      "ingress_decode_duration_ms",
			Help:      "Body decode latency in milliseconds.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),

		ReqResDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gandalf",
			Name:      "ingress_req_res_duration_ms",
			Help:      "End-to-end ingress request/response latency in milliseconds, measured from ReqTime.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}, []string{"kind"}),

		LiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gandalf",
			Name:      "ingress_live_connections",
			Help:      "Current number of live ingress connections.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.CacheHits,
		m.CacheMisses,
		m.RateLimitRejects,
		m.CircuitBreakerState,
		m.CircuitBreakerRejects,
		m.HTTPRequests,
		m.HTTPDiscards,
		m.DecodeDuration,
		m.ReqResDuration,
		m.LiveConnections,
	)

	return m
}
