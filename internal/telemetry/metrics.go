// Package telemetry provides observability primitives for the libris API.
package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eugener/libris/internal/circuitbreaker"
)

// Metrics holds all Prometheus collectors for the API.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	ActiveRequests     prometheus.Gauge
	UpstreamDuration   *prometheus.HistogramVec
	UpstreamErrors     *prometheus.CounterVec
	UpstreamCircuit    *prometheus.GaugeVec
	RateLimited        *prometheus.CounterVec
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	CacheInvalidations prometheus.Counter
	CatalogMutations   *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "libris",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "libris",
			Name:                            "request_duration_seconds",
			Help:                            "HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "libris",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "libris",
			Name:                            "upstream_duration_seconds",
			Help:                            "External API call duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"upstream"}),

		UpstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "libris",
			Name:      "upstream_errors_total",
			Help:      "Total external API errors.",
		}, []string{"upstream", "status"}),

		UpstreamCircuit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "libris",
			Name:      "upstream_circuit_state",
			Help:      "Upstream circuit breaker state (0 closed, 1 open, 2 half open).",
		}, []string{"upstream"}),

		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "libris",
			Name:      "rate_limited_total",
			Help:      "Total requests rejected by the rate limiter.",
		}, []string{"role"}),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "libris",
			Name:      "cache_hits_total",
			Help:      "Total list cache hits.",
		}),

		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "libris",
			Name:      "cache_misses_total",
			Help:      "Total list cache misses.",
		}),

		CacheInvalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "libris",
			Name:      "cache_invalidated_entries_total",
			Help:      "Total list cache entries removed by tag invalidation.",
		}),

		CatalogMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "libris",
			Name:      "catalog_mutations_total",
			Help:      "Total persisted catalog mutations.",
		}, []string{"resource", "op"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.UpstreamDuration,
		m.UpstreamErrors,
		m.UpstreamCircuit,
		m.RateLimited,
		m.CacheHits,
		m.CacheMisses,
		m.CacheInvalidations,
		m.CatalogMutations,
	)

	return m
}

// CacheHit records a list cache hit.
func (m *Metrics) CacheHit() { m.CacheHits.Inc() }

// CacheMiss records a list cache miss.
func (m *Metrics) CacheMiss() { m.CacheMisses.Inc() }

// CacheInvalidated records entries removed by a tag invalidation.
func (m *Metrics) CacheInvalidated(entries int) { m.CacheInvalidations.Add(float64(entries)) }

// RecordMutation counts a persisted catalog mutation.
func (m *Metrics) RecordMutation(resource, op string) {
	m.CatalogMutations.WithLabelValues(resource, op).Inc()
}

// ObserveUpstream records an external API call. Statuses >= 400 and calls
// without a response (status 0) count as errors.
func (m *Metrics) ObserveUpstream(upstream string, status int, elapsed time.Duration) {
	m.UpstreamDuration.WithLabelValues(upstream).Observe(elapsed.Seconds())
	switch {
	case status == 0:
		m.UpstreamErrors.WithLabelValues(upstream, "error").Inc()
	case status >= 400:
		m.UpstreamErrors.WithLabelValues(upstream, strconv.Itoa(status)).Inc()
	}
}

// SetCircuitState publishes an upstream breaker transition.
func (m *Metrics) SetCircuitState(upstream string, state circuitbreaker.State) {
	m.UpstreamCircuit.WithLabelValues(upstream).Set(float64(state))
}

// RecordRateLimited counts a request rejected by the rate limiter.
func (m *Metrics) RecordRateLimited(role string) {
	m.RateLimited.WithLabelValues(role).Inc()
}
