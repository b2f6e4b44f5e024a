// Package telemetry groups the gateway's observability packages.
//
// # Components
//
//   - logging: slog construction, request-scoped fields, credential masking
//   - metrics: Prometheus collector for connections and requests, periodic stats line
//   - tracing: OpenTelemetry spans per proxied request, W3C propagation downstream
//   - health: liveness and readiness checks for the admin listener
//
// The metrics, health and version endpoints share one admin listener,
// configured under telemetry.metrics.
package telemetry
