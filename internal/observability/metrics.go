package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "watershed_finder"

// Metrics holds the Prometheus counters, histograms, and gauges for the lookup service.
type Metrics struct {
	// Pipeline metrics.
	LookupsTotal   *prometheus.CounterVec   // labels: operation={search,select}, outcome={success,rejected,stale,<error kind>}
	LookupDuration *prometheus.HistogramVec // labels: operation={search,select}

	// Provider metrics.
	ProviderRequests *prometheus.CounterVec   // labels: provider={nominatim,arcgis}, method={geocode,point,adjacent}, outcome={success,empty,error}
	ProviderDuration *prometheus.HistogramVec // labels: provider, method
	RateLimitWait    prometheus.Histogram

	// Presentation metrics.
	ActiveSessions prometheus.Gauge
	Throttled      prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.LookupsTotal,
		m.LookupDuration,
		m.ProviderRequests,
		m.ProviderDuration,
		m.RateLimitWait,
		m.ActiveSessions,
		m.Throttled,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests. One-shot
// tools without a /metrics endpoint use it too.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		LookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Lookup pipeline runs by operation and outcome.",
		}, []string{"operation", "outcome"}),
		LookupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lookup_duration_seconds",
			Help:      "Duration of a complete lookup pipeline run, including rate-limit waits.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 20},
		}, []string{"operation"}),
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "External provider requests by provider, method, and outcome.",
		}, []string{"provider", "method", "outcome"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "External provider request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider", "method"}),
		RateLimitWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_rate_limit_wait_seconds",
			Help:      "Time spent waiting for the geocoding rate limiter.",
			Buckets:   []float64{0, 0.1, 0.25, 0.5, 0.75, 1, 1.1, 2.5, 5},
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Open websocket map sessions.",
		}),
		Throttled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_throttled_total",
			Help:      "Lookup API requests rejected by the inbound rate limit.",
		}),
	}
}
