package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics tracks proxied request processing.
//
// Metrics:
//   - <ns>_requests_total: completed requests by rule, response code and HTTP status
//   - <ns>_request_duration_seconds: end-to-end processing time by rule
//   - <ns>_downstream_duration_seconds: downstream call time by rule
//   - <ns>_downstream_errors_total: failed downstream calls by rule and kind
//   - <ns>_filter_errors_total: failed filters by filter id
type RequestMetrics struct {
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	downstreamDuration *prometheus.HistogramVec
	downstreamErrors   *prometheus.CounterVec
	filterErrors       *prometheus.CounterVec
}

// latencyBuckets covers 1ms to ~16s.
var latencyBuckets = prometheus.ExponentialBuckets(0.001, 2, 15)

// NewRequestMetrics creates and registers request metrics.
func NewRequestMetrics(namespace string, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of requests written back",
			},
			[]string{"rule", "code", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Time from request decode to write-back",
				Buckets:   latencyBuckets,
			},
			[]string{"rule"},
		),
		downstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "downstream_duration_seconds",
				Help:      "Duration of downstream calls",
				Buckets:   latencyBuckets,
			},
			[]string{"rule"},
		),
		downstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "downstream_errors_total",
				Help:      "Failed downstream calls",
			},
			[]string{"rule", "kind"},
		),
		filterErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "filter_errors_total",
				Help:      "Filters that returned an error or panicked",
			},
			[]string{"filter"},
		),
	}

	registry.MustRegister(
		rm.requestsTotal,
		rm.requestDuration,
		rm.downstreamDuration,
		rm.downstreamErrors,
		rm.filterErrors,
	)
	return rm
}

func (rm *RequestMetrics) record(rule, code string, status int, d time.Duration) {
	rm.requestsTotal.WithLabelValues(rule, code, strconv.Itoa(status)).Inc()
	rm.requestDuration.WithLabelValues(rule).Observe(d.Seconds())
}

func (rm *RequestMetrics) downstream(rule string, d time.Duration, kind string) {
	rm.downstreamDuration.WithLabelValues(rule).Observe(d.Seconds())
	if kind != "" {
		rm.downstreamErrors.WithLabelValues(rule, kind).Inc()
	}
}
