package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Path label values for fetch attempts.
const (
	PathPrimary  = "primary"
	PathFallback = "fallback"
)

// Outcome label values for fetch attempts.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid
// and records nothing, which keeps unit tests free of registry bookkeeping.
type Metrics struct {
	fetchAttempts   *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	inboundRejected prometheus.Counter
}

// New registers the service collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		fetchAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "listings_fetch_attempts_total",
			Help: "Upstream fetch attempts by operation, path and outcome.",
		}, []string{"op", "path", "outcome"}),
		fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "listings_fallbacks_total",
			Help: "Calls that failed over from the primary path to the read view.",
		}, []string{"op"}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "listings_cache_hits_total",
			Help: "Listing page cache hits.",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "listings_cache_misses_total",
			Help: "Listing page cache misses.",
		}),
		inboundRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "listings_inbound_rejected_total",
			Help: "Inbound requests rejected by the per-client rate limiter.",
		}),
	}
}

// FetchAttempt records one upstream attempt.
func (m *Metrics) FetchAttempt(op, path, outcome string) {
	if m == nil {
		return
	}
	m.fetchAttempts.WithLabelValues(op, path, outcome).Inc()
}

// Fallback records a failover from the primary path.
func (m *Metrics) Fallback(op string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(op).Inc()
}

// CacheHit records a page served from cache.
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

// CacheMiss records a page that had to be fetched.
func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

// InboundRejected records an inbound request turned away with 429.
func (m *Metrics) InboundRejected() {
	if m == nil {
		return
	}
	m.inboundRejected.Inc()
}
