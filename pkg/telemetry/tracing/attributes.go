package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys. HTTP keys follow the OpenTelemetry semantic
// conventions; gateway-specific keys use the "gateway." namespace.
const (
	AttrHTTPMethod     = "http.method"
	AttrHTTPTarget     = "http.target"
	AttrHTTPStatusCode = "http.status_code"
	AttrClientIP       = "client.address"

	AttrRequestID   = "gateway.request_id"
	AttrRuleID      = "gateway.rule_id"
	AttrUpstreamURL = "gateway.upstream.url"
	AttrFilterID    = "gateway.filter.id"
	AttrResultCode  = "gateway.result_code"
)

// SetRequestAttributes records the identity of a proxied request.
func SetRequestAttributes(span trace.Span, requestID, clientIP string) {
	span.SetAttributes(
		attribute.String(AttrRequestID, requestID),
		attribute.String(AttrClientIP, clientIP),
	)
}

// SetRuleAttributes records the rule a request resolved to.
func SetRuleAttributes(span trace.Span, ruleID string) {
	span.SetAttributes(attribute.String(AttrRuleID, ruleID))
}

// SetUpstreamAttributes records the downstream call target.
func SetUpstreamAttributes(span trace.Span, url string) {
	span.SetAttributes(attribute.String(AttrUpstreamURL, url))
}
