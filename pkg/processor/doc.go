// Package processor implements the default request Processor of the
// gateway.
//
// For every aggregated request the Processor builds a request Descriptor,
// resolves the governing rule, runs the filters that rule enables, calls
// the downstream service and writes the result back:
//
//	wrapper ─> Descriptor ─> rule ─> Context ─> filter chain ─> downstream ─> WriteBack
//
// Any failure on the way is converted to an error envelope with
// proxy.HandleError. The inbound payload is released exactly once through
// the Context, whichever path finishes the request.
//
// # Filters
//
// A Filter runs only when the bound rule carries a filter configuration
// with the filter's ID. Filters run in ascending Order. Two filters ship
// with the gateway:
//
//   - router rewrites the outbound scheme, host, path and timeout
//   - header sets or appends outbound headers
//
// Example rule:
//
//	- id: users
//	  filter_configs:
//	    - id: router
//	      config: '{"host":"users.internal:8080","path_prefix":"/v1","timeout_ms":500}'
//	    - id: header
//	      config: '{"set":{"X-Gateway":"hikari"}}'
package processor
