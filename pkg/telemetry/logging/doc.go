// Package logging provides structured logging for the gateway.
//
// # Overview
//
// The package builds log/slog loggers with:
//   - JSON or text output
//   - Configurable log levels (debug, info, warn, error)
//   - Request-scoped fields (request_id, rule_id, client_ip) read from the context
//   - Masking of credentials (Authorization, Cookie, bearer tokens, URL userinfo)
//
// # Usage
//
//	logger, err := logging.Setup(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//
//	ctx = logging.WithRequestID(ctx, id)
//	logger.InfoContext(ctx, "request dispatched", "authorization", token) // token masked
//
// # Redaction
//
// Attribute keys containing authorization, cookie, token, secret or password
// are replaced with "***". String values are scrubbed for bearer and basic
// credentials. http.Header values are copied and masked per header.
package logging
