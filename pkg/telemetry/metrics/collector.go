package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"hikari-hq/gateway/pkg/config"
)

// OtherRule is the rule label used once the rule label cardinality limit
// is reached.
const OtherRule = "other"

// maxRuleLabels bounds the number of distinct rule label values.
const maxRuleLabels = 1000

// Collector records front-end and request-processing metrics for the
// gateway. It implements the server's connection observer and the
// processor's request recorder. A nil *Collector is a valid no-op.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	connMetrics    *ConnectionMetrics
	requestMetrics *RequestMetrics

	rules *CardinalityLimiter

	// Plain counters mirrored for the periodic stats line.
	active   atomic.Int64
	accepted atomic.Uint64
	requests atomic.Uint64
	failures atomic.Uint64
	rejected atomic.Uint64
}

// NewCollector creates a collector and registers its metrics with
// registry. If registry is nil a fresh registry is used.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = config.DefaultMetricsNamespace
	}

	return &Collector{
		config:         cfg,
		registry:       registry,
		connMetrics:    NewConnectionMetrics(namespace, registry),
		requestMetrics: NewRequestMetrics(namespace, registry),
		rules:          NewCardinalityLimiter(maxRuleLabels),
	}
}

// ConnectionOpened records an accepted connection.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.active.Add(1)
	c.accepted.Add(1)
	c.connMetrics.opened()
}

// ConnectionClosed records a closed connection.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.active.Add(-1)
	c.connMetrics.closed()
}

// IdleClosed records a connection closed by the idle watcher.
func (c *Collector) IdleClosed() {
	if c == nil {
		return
	}
	c.connMetrics.idleClosed.Inc()
}

// RequestRejected records a request refused by the codec before it
// reached the processor, e.g. "too_large" or "malformed".
func (c *Collector) RequestRejected(reason string) {
	if c == nil {
		return
	}
	c.rejected.Add(1)
	c.connMetrics.rejected.WithLabelValues(reason).Inc()
}

// RecordRequest records one completed request. code is the response
// code identifier, status the HTTP status written back.
func (c *Collector) RecordRequest(ruleID, code string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.requests.Add(1)
	if status >= 500 {
		c.failures.Add(1)
	}
	c.requestMetrics.record(c.ruleLabel(ruleID), code, status, duration)
}

// RecordDownstream records one downstream call. kind is empty on success
// and names the failure class otherwise ("timeout", "connect").
func (c *Collector) RecordDownstream(ruleID string, duration time.Duration, kind string) {
	if c == nil {
		return
	}
	c.requestMetrics.downstream(c.ruleLabel(ruleID), duration, kind)
}

// RecordFilterError records a failed filter.
func (c *Collector) RecordFilterError(filterID string) {
	if c == nil {
		return
	}
	c.requestMetrics.filterErrors.WithLabelValues(filterID).Inc()
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) ruleLabel(ruleID string) string {
	if ruleID == "" {
		return "none"
	}
	if !c.rules.Allow(ruleID) {
		return OtherRule
	}
	return ruleID
}

// Stats is a point-in-time view of the collector's counters.
type Stats struct {
	ActiveConnections int64
	Accepted          uint64
	Requests          uint64
	Failures          uint64
	Rejected          uint64
}

// Snapshot returns the current counters.
func (c *Collector) Snapshot() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{
		ActiveConnections: c.active.Load(),
		Accepted:          c.accepted.Load(),
		Requests:          c.requests.Load(),
		Failures:          c.failures.Load(),
		Rejected:          c.rejected.Load(),
	}
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label value is allowed. Returns true if the value
// already exists or if the limit has not been reached yet.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[value]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[value]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[value] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
