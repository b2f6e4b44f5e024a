package response

import (
	"fmt"
	"net/http"
)

// Code is a structured gateway outcome: a numeric identifier, the HTTP
// status it maps to, and a human-readable message.
type Code struct {
	// ID is the machine-readable code written to the "code" field.
	ID int

	// Status is the HTTP status of responses carrying this code.
	Status int

	// Message is the default human-readable text.
	Message string
}

// String returns a compact representation for logs.
func (c Code) String() string {
	return fmt.Sprintf("%d(%d %s)", c.ID, c.Status, c.Message)
}

// WithMessage returns a copy of c carrying a different message.
func (c Code) WithMessage(msg string) Code {
	c.Message = msg
	return c
}

// Response codes produced by the gateway.
var (
	// OK is the canonical success code.
	OK = Code{ID: 0, Status: http.StatusOK, Message: "success"}

	// BadRequest indicates a malformed client request.
	BadRequest = Code{ID: 400, Status: http.StatusBadRequest, Message: "bad request"}

	// RequestEntityTooLarge indicates the aggregated body exceeded the limit.
	RequestEntityTooLarge = Code{ID: 413, Status: http.StatusRequestEntityTooLarge, Message: "request entity too large"}

	// RequestHeaderFieldsTooLarge indicates the request head exceeded the limit.
	RequestHeaderFieldsTooLarge = Code{ID: 431, Status: http.StatusRequestHeaderFieldsTooLarge, Message: "request header fields too large"}

	// InternalError is the fallback for unclassified failures.
	InternalError = Code{ID: 500, Status: http.StatusInternalServerError, Message: "internal error"}

	// ServiceUnavailable indicates the downstream service could not be reached.
	ServiceUnavailable = Code{ID: 503, Status: http.StatusServiceUnavailable, Message: "service unavailable"}

	// RequestTimeout indicates the downstream call exceeded its timeout.
	RequestTimeout = Code{ID: 504, Status: http.StatusGatewayTimeout, Message: "request timeout"}

	// RuleNotFound indicates no rule could be resolved for the request.
	RuleNotFound = Code{ID: 10001, Status: http.StatusNotFound, Message: "rule not found"}

	// PathNotMatched indicates the request path matched no route.
	PathNotMatched = Code{ID: 10002, Status: http.StatusNotFound, Message: "path not matched"}

	// FilterError indicates a filter failed while processing the request.
	FilterError = Code{ID: 10003, Status: http.StatusInternalServerError, Message: "filter error"}

	// MissingAttribute indicates a filter required an attribute that no
	// earlier filter set.
	MissingAttribute = Code{ID: 10004, Status: http.StatusInternalServerError, Message: "required attribute missing"}
)
