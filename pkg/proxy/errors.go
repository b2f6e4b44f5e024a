package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"

	"hikari-hq/gateway/pkg/proxy/response"
	"hikari-hq/gateway/pkg/rule"
)

var (
	// ErrPathNotMatched is returned by filters that route on path when no
	// route matches.
	ErrPathNotMatched = errors.New("path not matched")

	// ErrBadRequest marks client errors detected before the filter chain.
	ErrBadRequest = errors.New("bad request")
)

// FilterError wraps a failure returned or raised by a filter.
type FilterError struct {
	FilterID string
	Err      error
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("filter %s: %v", e.FilterID, e.Err)
}

func (e *FilterError) Unwrap() error {
	return e.Err
}

// DownstreamError wraps a failed downstream call.
type DownstreamError struct {
	URL string
	Err error
}

func (e *DownstreamError) Error() string {
	return fmt.Sprintf("downstream %s: %v", e.URL, e.Err)
}

func (e *DownstreamError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the call failed because its deadline passed.
func (e *DownstreamError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// CodeOf maps a processing error to the response code written back to the
// client. Unclassified errors map to response.InternalError.
func CodeOf(err error) response.Code {
	if err == nil {
		return response.OK
	}

	var attrErr *AttributeError
	if errors.As(err, &attrErr) {
		return response.MissingAttribute.WithMessage(attrErr.Error())
	}

	var downErr *DownstreamError
	if errors.As(err, &downErr) {
		if downErr.Timeout() {
			return response.RequestTimeout
		}
		return response.ServiceUnavailable
	}

	switch {
	case errors.Is(err, rule.ErrRuleNotFound):
		return response.RuleNotFound
	case errors.Is(err, ErrPathNotMatched):
		return response.PathNotMatched
	case errors.Is(err, ErrBadRequest):
		return response.BadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return response.RequestTimeout
	}

	var filterErr *FilterError
	if errors.As(err, &filterErr) {
		return response.FilterError
	}

	return response.InternalError
}

// HandleError converts a processing error to an error envelope.
//
// Example usage:
//
//	if err := chain.Run(ctx); err != nil {
//	    ctx.SetFailure(err)
//	    ctx.SetResponse(proxy.HandleError(err))
//	}
func HandleError(err error) *response.Envelope {
	return response.FromCode(CodeOf(err))
}
