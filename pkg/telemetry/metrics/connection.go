package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConnectionMetrics tracks the front-end's connection lifecycle.
//
// Metrics:
//   - <ns>_connections_active: currently open connections
//   - <ns>_connections_total: accepted connections
//   - <ns>_connections_idle_closed_total: connections closed for idleness
//   - <ns>_requests_rejected_total: requests refused by the codec, by reason
type ConnectionMetrics struct {
	active     prometheus.Gauge
	total      prometheus.Counter
	idleClosed prometheus.Counter
	rejected   *prometheus.CounterVec
}

// NewConnectionMetrics creates and registers connection metrics.
func NewConnectionMetrics(namespace string, registry *prometheus.Registry) *ConnectionMetrics {
	cm := &ConnectionMetrics{
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of open client connections",
		}),
		total: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of accepted client connections",
		}),
		idleClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_idle_closed_total",
			Help:      "Connections closed after exceeding the idle timeout",
		}),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_rejected_total",
				Help:      "Requests rejected before processing",
			},
			[]string{"reason"},
		),
	}

	registry.MustRegister(cm.active, cm.total, cm.idleClosed, cm.rejected)
	return cm
}

func (cm *ConnectionMetrics) opened() {
	cm.active.Inc()
	cm.total.Inc()
}

func (cm *ConnectionMetrics) closed() {
	cm.active.Dec()
}
