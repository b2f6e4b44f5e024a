package metrics

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Reporter logs a periodic summary of the collector's counters on a cron
// schedule.
type Reporter struct {
	collector *Collector
	schedule  string
	cron      *cron.Cron
	logger    *slog.Logger

	mu      sync.Mutex
	last    Stats
	running bool
}

// NewReporter creates a stats reporter. An empty schedule disables it.
func NewReporter(collector *Collector, schedule string, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		collector: collector,
		schedule:  schedule,
		cron:      cron.New(),
		logger:    logger.With("component", "metrics.reporter"),
	}
}

// Start schedules the report. Common expressions:
//   - "@every 1m"
//   - "*/5 * * * *"
func (r *Reporter) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.schedule == "" || r.running {
		return nil
	}
	if _, err := cron.ParseStandard(r.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", r.schedule, err)
	}
	if _, err := r.cron.AddFunc(r.schedule, r.Report); err != nil {
		return fmt.Errorf("failed to schedule stats report: %w", err)
	}

	r.cron.Start()
	r.running = true
	r.logger.Info("stats reporter started", "schedule", r.schedule)
	return nil
}

// Report logs the current counters and the change since the last report.
func (r *Reporter) Report() {
	cur := r.collector.Snapshot()

	r.mu.Lock()
	prev := r.last
	r.last = cur
	r.mu.Unlock()

	r.logger.Info("gateway stats",
		"connections_active", cur.ActiveConnections,
		"connections_accepted", cur.Accepted-prev.Accepted,
		"requests", cur.Requests-prev.Requests,
		"failures", cur.Failures-prev.Failures,
		"rejected", cur.Rejected-prev.Rejected,
	)
}

// Stop stops the schedule and waits for a running report to finish.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	<-r.cron.Stop().Done()
	r.logger.Info("stats reporter stopped")
}
