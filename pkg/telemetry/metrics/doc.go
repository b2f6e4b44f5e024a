// Package metrics exposes Prometheus metrics for the gateway.
//
// The Collector is shared by the connection front-end, which reports
// accepted, closed, idle-evicted and rejected connections, and the request
// processor, which reports completed requests, downstream calls and
// filter failures. Rule ids become label values, capped by a cardinality
// limiter; rules beyond the cap are reported as "other".
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// A Reporter logs a one-line summary of the counters on the cron schedule
// telemetry.metrics.stats_schedule.
package metrics
