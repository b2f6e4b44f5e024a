// Package tracing provides OpenTelemetry tracing for proxied requests.
//
// Each request handled by the processor continues the W3C trace context
// found in its headers, opens a server span, and injects the span context
// into the downstream call so the upstream service joins the same trace.
// Spans are exported over OTLP gRPC.
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    endpoint: "otel-collector:4317"
//	    insecure: true
//	    sampler: ratio
//	    sample_ratio: 0.1
//
// When tracing is disabled the tracer is a noop but propagation still runs,
// so an inbound traceparent reaches the downstream service unchanged.
package tracing
