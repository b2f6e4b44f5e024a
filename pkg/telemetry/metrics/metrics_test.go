package metrics

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"hikari-hq/gateway/pkg/config"
)

func testCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "test"}, prometheus.NewRegistry())
}

func TestCollector_Connections(t *testing.T) {
	c := testCollector(t)

	c.ConnectionOpened()
	c.ConnectionOpened()
	c.ConnectionClosed()
	c.IdleClosed()

	if got := testutil.ToFloat64(c.connMetrics.active); got != 1 {
		t.Errorf("active = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.connMetrics.total); got != 2 {
		t.Errorf("total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.connMetrics.idleClosed); got != 1 {
		t.Errorf("idle closed = %v, want 1", got)
	}

	s := c.Snapshot()
	if s.ActiveConnections != 1 || s.Accepted != 2 {
		t.Errorf("unexpected snapshot %+v", s)
	}
}

func TestCollector_Rejected(t *testing.T) {
	c := testCollector(t)

	c.RequestRejected("too_large")
	c.RequestRejected("too_large")
	c.RequestRejected("malformed")

	if got := testutil.ToFloat64(c.connMetrics.rejected.WithLabelValues("too_large")); got != 2 {
		t.Errorf("too_large = %v, want 2", got)
	}
	if c.Snapshot().Rejected != 3 {
		t.Errorf("expected 3 rejected, got %d", c.Snapshot().Rejected)
	}
}

func TestCollector_RecordRequest(t *testing.T) {
	c := testCollector(t)

	tests := []struct {
		rule   string
		code   string
		status int
	}{
		{"users", "success", 200},
		{"users", "success", 200},
		{"orders", "service_unavailable", 503},
		{"", "rule_not_found", 404},
	}
	for _, tt := range tests {
		c.RecordRequest(tt.rule, tt.code, tt.status, 10*time.Millisecond)
	}

	if got := testutil.ToFloat64(c.requestMetrics.requestsTotal.WithLabelValues("users", "success", "200")); got != 2 {
		t.Errorf("users success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.requestMetrics.requestsTotal.WithLabelValues("none", "rule_not_found", "404")); got != 1 {
		t.Errorf("unresolved rule = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(c.requestMetrics.requestDuration); got != 3 {
		t.Errorf("expected 3 duration series, got %d", got)
	}

	s := c.Snapshot()
	if s.Requests != 4 || s.Failures != 1 {
		t.Errorf("unexpected snapshot %+v", s)
	}
}

func TestCollector_DownstreamAndFilters(t *testing.T) {
	c := testCollector(t)

	c.RecordDownstream("users", 5*time.Millisecond, "")
	c.RecordDownstream("users", time.Second, "timeout")
	c.RecordFilterError("router")

	if got := testutil.ToFloat64(c.requestMetrics.downstreamErrors.WithLabelValues("users", "timeout")); got != 1 {
		t.Errorf("downstream timeouts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.requestMetrics.filterErrors.WithLabelValues("router")); got != 1 {
		t.Errorf("filter errors = %v, want 1", got)
	}
}

func TestCollector_RuleCardinality(t *testing.T) {
	c := testCollector(t)
	c.rules = NewCardinalityLimiter(2)

	for i := 0; i < 5; i++ {
		c.RecordRequest(fmt.Sprintf("rule-%d", i), "success", 200, time.Millisecond)
	}

	if got := testutil.ToFloat64(c.requestMetrics.requestsTotal.WithLabelValues(OtherRule, "success", "200")); got != 3 {
		t.Errorf("expected overflow rules under %q, got %v", OtherRule, got)
	}
	if c.rules.Count() != 2 {
		t.Errorf("expected limiter to hold 2 values, got %d", c.rules.Count())
	}
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	c.ConnectionOpened()
	c.ConnectionClosed()
	c.IdleClosed()
	c.RequestRejected("malformed")
	c.RecordRequest("r", "success", 200, time.Millisecond)
	c.RecordDownstream("r", time.Millisecond, "")
	c.RecordFilterError("f")
	if c.Snapshot() != (Stats{}) {
		t.Error("expected zero stats from nil collector")
	}
}

func TestCollector_Handler(t *testing.T) {
	c := testCollector(t)
	c.ConnectionOpened()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "test_connections_active 1") {
		t.Errorf("expected connections_active in exposition:\n%s", rec.Body.String())
	}
}

func TestReporter(t *testing.T) {
	c := testCollector(t)
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := NewReporter(c, "@every 1h", logger)
	if err := r.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer r.Stop()

	c.RecordRequest("users", "success", 200, time.Millisecond)
	r.Report()
	if !strings.Contains(buf.String(), `"requests":1`) {
		t.Errorf("expected request delta in report: %s", buf.String())
	}

	buf.Reset()
	r.Report()
	if !strings.Contains(buf.String(), `"requests":0`) {
		t.Errorf("expected zero delta on second report: %s", buf.String())
	}
}

func TestReporter_Schedule(t *testing.T) {
	tests := []struct {
		schedule string
		wantErr  bool
	}{
		{"", false},
		{"*/5 * * * *", false},
		{"every minute", true},
	}

	for _, tt := range tests {
		r := NewReporter(testCollector(t), tt.schedule, nil)
		err := r.Start()
		if (err != nil) != tt.wantErr {
			t.Errorf("Start(%q) error = %v, wantErr %v", tt.schedule, err, tt.wantErr)
		}
		r.Stop()
		r.Stop()
	}
}
