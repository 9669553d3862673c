// Package metrics exposes ledger counters on a Prometheus registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dailyledger/internal/core"
)

// Store operation results.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Cache events.
const (
	CacheHit         = "hit"
	CacheMiss        = "miss"
	CacheInvalidated = "invalidated"
	CacheStaleServed = "stale_served"
	CacheSetDropped  = "set_dropped"
)

// Metrics holds every ledger collector. The zero value is not usable; a nil
// *Metrics is, and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	malformed    *prometheus.CounterVec
	storeOps     *prometheus.CounterVec
	storeLatency *prometheus.HistogramVec
	cacheEvents  *prometheus.CounterVec
	materialized prometheus.Counter
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	mirrored     *prometheus.CounterVec
	rateLimited  prometheus.Counter
}

// New registers the ledger collectors, plus Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		malformed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_malformed_fields_total",
			Help: "Cells that fell back to a default during materialization.",
		}, []string{"field", "reason"}),
		storeOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_store_operations_total",
			Help: "Backing store round trips by operation and result.",
		}, []string{"op", "result"}),
		storeLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_store_duration_seconds",
			Help:    "Backing store round trip latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		cacheEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_cache_events_total",
			Help: "Snapshot cache hits, misses and invalidations.",
		}, []string{"event"}),
		materialized: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_rows_materialized_total",
			Help: "Transactions produced by materialization.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		httpLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		mirrored: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_mirror_rows_total",
			Help: "Row appended events handled by the mirror worker.",
		}, []string{"result"}),
		rateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_http_rate_limited_total",
			Help: "Requests refused by the rate limiter.",
		}),
	}
}

// MalformedField implements ledger.Observer.
func (m *Metrics) MalformedField(field core.Field, reason string) {
	if m == nil {
		return
	}
	m.malformed.WithLabelValues(string(field), reason).Inc()
}

// ObserveStore records one store round trip.
func (m *Metrics) ObserveStore(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.storeOps.WithLabelValues(op, result).Inc()
	m.storeLatency.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) CacheEvent(event string) {
	if m == nil {
		return
	}
	m.cacheEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) RowsMaterialized(n int) {
	if m == nil {
		return
	}
	m.materialized.Add(float64(n))
}

// ObserveHTTP records one completed request. route is the matched pattern,
// never the raw path.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// Mirror results.
const (
	MirrorInserted  = "inserted"
	MirrorDuplicate = "duplicate"
	MirrorFailed    = "failed"
)

func (m *Metrics) Mirrored(result string) {
	if m == nil {
		return
	}
	m.mirrored.WithLabelValues(result).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
