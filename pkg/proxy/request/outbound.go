package request

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// builder accumulates outbound call state while filters rewrite a request.
type builder struct {
	method  string
	headers http.Header
	query   url.Values
	form    url.Values
	cookies []*http.Cookie
	body    []byte
	timeout time.Duration
}

func newBuilder(method string, headers http.Header, query url.Values, body []byte) *builder {
	b := &builder{
		method:  method,
		headers: headers.Clone(),
		query:   cloneValues(query),
		form:    make(url.Values),
	}
	if b.headers == nil {
		b.headers = make(http.Header)
	}
	// Inbound cookies move out of the header so they can be replaced by name.
	for _, line := range b.headers.Values("Cookie") {
		if cookies, err := http.ParseCookie(line); err == nil {
			b.cookies = append(b.cookies, cookies...)
		}
	}
	b.headers.Del("Cookie")
	if len(body) > 0 {
		b.body = body
	}
	return b
}

func (b *builder) addOrReplaceCookie(c *http.Cookie) {
	if c == nil {
		return
	}
	for i, existing := range b.cookies {
		if existing.Name == c.Name {
			b.cookies[i] = c
			return
		}
	}
	b.cookies = append(b.cookies, c)
}

func (b *builder) cloneCookies() []*http.Cookie {
	out := make([]*http.Cookie, len(b.cookies))
	for i, c := range b.cookies {
		cp := *c
		out[i] = &cp
	}
	return out
}

// Outbound is an immutable snapshot of the call to make downstream.
type Outbound struct {
	// Method is the HTTP method.
	Method string

	// URL is scheme + host + path, without the query string.
	URL string

	// Query holds the outbound query parameters.
	Query url.Values

	// Header holds the outbound headers, cookies excluded.
	Header http.Header

	// Cookies are sent in a single Cookie header.
	Cookies []*http.Cookie

	// Body is the outbound payload; nil for an empty body.
	Body []byte

	// Timeout bounds the call; zero means the client default.
	Timeout time.Duration
}

// RawURL returns URL with the encoded query string appended.
func (o *Outbound) RawURL() string {
	if len(o.Query) == 0 {
		return o.URL
	}
	return o.URL + "?" + o.Query.Encode()
}

// outboundSkipHeaders are recomputed by net/http for the new connection.
var outboundSkipHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Content-Length",
	"Host",
}

// NewHTTPRequest converts the snapshot to a request bound to ctx. The
// caller applies Timeout, usually with context.WithTimeout.
func (o *Outbound) NewHTTPRequest(ctx context.Context) (*http.Request, error) {
	var body *bytes.Reader
	if len(o.Body) > 0 {
		body = bytes.NewReader(o.Body)
	}

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, o.Method, o.RawURL(), body)
	} else {
		req, err = http.NewRequestWithContext(ctx, o.Method, o.RawURL(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create outbound request: %w", err)
	}

	req.Header = o.Header.Clone()
	for _, h := range outboundSkipHeaders {
		req.Header.Del(h)
	}
	for _, c := range o.Cookies {
		req.AddCookie(c)
	}
	return req, nil
}
