package directus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the client's Prometheus collectors.
type Metrics struct {
	// requestsTotal counts finished requests by method and status ("error" when
	// no response arrived).
	requestsTotal *prometheus.CounterVec

	// requestDuration tracks time to response headers.
	requestDuration *prometheus.HistogramVec

	// cacheTotal counts cache lookups by segment and result (hit, miss, error).
	cacheTotal *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. A nil reg creates unregistered
// collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "directus_client_requests_total",
				Help: "Total number of Directus API requests",
			},
			[]string{"method", "status"},
		),
		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "directus_client_request_duration_seconds",
				Help:    "Latency of Directus API requests until response headers",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		cacheTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "directus_client_cache_total",
				Help: "Cache lookups for Directus GET requests",
			},
			[]string{"segment", "result"},
		),
	}
}

func (m *Metrics) observe(method string, status int, elapsed time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.requestsTotal.WithLabelValues(method, label).Inc()
	m.requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) cache(segment, result string) {
	m.cacheTotal.WithLabelValues(segment, result).Inc()
}
