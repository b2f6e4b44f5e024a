// Package response provides the uniform response envelope written back to
// gateway clients, whatever produced it: an upstream call, a structured
// error code, or a locally produced success payload.
package response

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ContentTypeJSON is the content type of every locally produced envelope.
const ContentTypeJSON = "application/json; charset=utf-8"

// Envelope is the uniform representation of a request outcome.
type Envelope struct {
	// Headers are the response headers.
	Headers http.Header

	// ExtraHeaders hold values added after Headers are fixed, e.g. by
	// completion filters. They are written after Headers.
	ExtraHeaders http.Header

	// Body is the response body. An empty Body on an upstream envelope
	// means the upstream body is streamed at write-back.
	Body string

	// Status is the HTTP status code.
	Status int

	// Upstream is set when the envelope wraps a downstream response.
	Upstream *http.Response
}

// New returns an empty envelope with initialized header maps.
func New() *Envelope {
	return &Envelope{
		Headers:      make(http.Header),
		ExtraHeaders: make(http.Header),
	}
}

// errorBody is the wire shape of an error envelope.
type errorBody struct {
	Status  int    `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// successBody is the wire shape of a success envelope.
type successBody struct {
	Status int `json:"status"`
	Code   int `json:"code"`
	Data   any `json:"data"`
}

// FromUpstream wraps a downstream response. Only the status is copied;
// callers copy headers and body with CopyUpstreamHeaders and ReadUpstreamBody
// when they need them.
func FromUpstream(resp *http.Response) *Envelope {
	e := New()
	e.Upstream = resp
	e.Status = resp.StatusCode
	return e
}

// FromCode builds a JSON error envelope from a structured code.
func FromCode(code Code) *Envelope {
	e := New()
	e.Status = code.Status
	e.Headers.Set("Content-Type", ContentTypeJSON)

	// errorBody holds only ints and strings, so encoding cannot fail.
	data, _ := json.Marshal(errorBody{
		Status:  code.Status,
		Code:    code.ID,
		Message: code.Message,
	})
	e.Body = string(data)
	return e
}

// Success builds a JSON success envelope embedding data as a nested value.
func Success(data any) (*Envelope, error) {
	body, err := json.Marshal(successBody{
		Status: OK.Status,
		Code:   OK.ID,
		Data:   data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode success payload: %w", err)
	}

	e := New()
	e.Status = OK.Status
	e.Headers.Set("Content-Type", ContentTypeJSON)
	e.Body = string(body)
	return e, nil
}

// PutHeader adds a response header value.
func (e *Envelope) PutHeader(key, value string) {
	e.Headers.Add(key, value)
}

// PutExtraHeader adds a value to the extra headers.
func (e *Envelope) PutExtraHeader(key, value string) {
	e.ExtraHeaders.Add(key, value)
}

// CopyUpstreamHeaders copies the upstream response headers, skipping
// hop-by-hop headers that the write-back recomputes.
func (e *Envelope) CopyUpstreamHeaders() {
	if e.Upstream == nil {
		return
	}
	for k, vs := range e.Upstream.Header {
		if isHopByHop(k) {
			continue
		}
		for _, v := range vs {
			e.Headers.Add(k, v)
		}
	}
}

// ReadUpstreamBody reads at most limit bytes of the upstream body into Body
// and closes it. A limit <= 0 means no limit.
func (e *Envelope) ReadUpstreamBody(limit int64) error {
	if e.Upstream == nil || e.Upstream.Body == nil {
		return nil
	}
	defer e.Upstream.Body.Close()

	var r io.Reader = e.Upstream.Body
	if limit > 0 {
		r = io.LimitReader(r, limit)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read upstream body: %w", err)
	}
	e.Body = string(data)
	return nil
}

// Close releases the upstream body if it was not consumed.
func (e *Envelope) Close() error {
	if e.Upstream != nil && e.Upstream.Body != nil {
		return e.Upstream.Body.Close()
	}
	return nil
}

var hopByHop = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"Content-Length":      {},
}

func isHopByHop(key string) bool {
	_, ok := hopByHop[http.CanonicalHeaderKey(key)]
	return ok
}
