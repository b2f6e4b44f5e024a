package request

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"golang.org/x/text/encoding"

	"hikari-hq/gateway/pkg/clock"
)

const (
	// SchemeHTTP is the default outbound scheme.
	SchemeHTTP = "http://"

	// SchemeHTTPS is the TLS outbound scheme.
	SchemeHTTPS = "https://"
)

// Content types that select form or JSON parameter extraction.
const (
	ContentTypeFormURLEncoded = "application/x-www-form-urlencoded"
	ContentTypeMultipartForm  = "multipart/form-data"
	ContentTypeJSON           = "application/json"
)

// Params are the facts captured from an inbound request when a Descriptor
// is created.
type Params struct {
	UniqueID    string
	Charset     string
	ClientIP    string
	Host        string
	URI         string
	Method      string
	ContentType string
	Headers     http.Header
	Payload     *Payload
}

// Descriptor wraps one inbound request and carries the mutable overlay
// used to build the outbound call.
//
// The inbound facts never change after New. The overlay (scheme, host,
// path, headers, query, form, cookies, timeout) may be rewritten any number
// of times; Build always reflects its latest state. A Descriptor is used by
// one filter at a time and is not safe for concurrent mutation.
type Descriptor struct {
	uniqueID    string
	beginTime   int64
	charset     string
	encoding    encoding.Encoding
	clientIP    string
	host        string
	path        string
	uri         string
	method      string
	contentType string
	headers     http.Header
	query       url.Values
	payload     *Payload

	bodyOnce sync.Once
	body     string

	cookiesOnce sync.Once
	cookies     map[string]*http.Cookie

	formOnce sync.Once
	form     url.Values

	jsonOnce sync.Once
	jsonDoc  any
	jsonErr  error

	modifyScheme string
	modifyHost   string
	modifyPath   string

	builder *builder
	logger  *slog.Logger
}

// New captures an inbound request. The arrival time is read from the
// process clock.
func New(p Params) (*Descriptor, error) {
	return NewWithClock(p, clock.Default())
}

// NewWithClock is New with an explicit clock.
func NewWithClock(p Params, c clock.Clock) (*Descriptor, error) {
	if p.Charset == "" {
		p.Charset = DefaultCharset
	}
	enc, known := lookupEncoding(p.Charset)

	u, err := url.ParseRequestURI(p.URI)
	if err != nil {
		return nil, fmt.Errorf("invalid request uri %q: %w", p.URI, err)
	}

	query := make(url.Values)
	for k, vs := range u.Query() {
		dk := decodeString(enc, k)
		for _, v := range vs {
			query.Add(dk, decodeString(enc, v))
		}
	}

	headers := p.Headers
	if headers == nil {
		headers = make(http.Header)
	}

	d := &Descriptor{
		uniqueID:     p.UniqueID,
		beginTime:    c.NowMillis(),
		charset:      p.Charset,
		encoding:     enc,
		clientIP:     p.ClientIP,
		host:         p.Host,
		path:         decodeString(enc, u.Path),
		uri:          p.URI,
		method:       strings.ToUpper(p.Method),
		contentType:  p.ContentType,
		headers:      headers,
		query:        query,
		payload:      p.Payload,
		modifyScheme: SchemeHTTP,
		logger:       slog.Default().With("component", "proxy.request", "request_id", p.UniqueID),
	}
	d.modifyHost = d.host
	d.modifyPath = d.path
	d.builder = newBuilder(d.method, headers, query, p.Payload.Bytes())

	if !known {
		d.logger.Warn("unknown request charset, decoding as utf-8", "charset", p.Charset)
	}
	return d, nil
}

// UniqueID returns the identifier of the owning request.
func (d *Descriptor) UniqueID() string { return d.uniqueID }

// BeginTime returns the arrival time in Unix milliseconds.
func (d *Descriptor) BeginTime() int64 { return d.beginTime }

// Charset returns the request charset.
func (d *Descriptor) Charset() string { return d.charset }

// ClientIP returns the client address used for flow control and access lists.
func (d *Descriptor) ClientIP() string { return d.clientIP }

// Host returns the inbound host (host:port).
func (d *Descriptor) Host() string { return d.host }

// Path returns the decoded inbound path.
func (d *Descriptor) Path() string { return d.path }

// URI returns the raw inbound request target.
func (d *Descriptor) URI() string { return d.uri }

// Method returns the upper-case HTTP method.
func (d *Descriptor) Method() string { return d.method }

// ContentType returns the inbound Content-Type header.
func (d *Descriptor) ContentType() string { return d.contentType }

// Headers returns the inbound headers. Callers must treat them as read-only;
// use AddHeader or SetHeader to change outbound headers.
func (d *Descriptor) Headers() http.Header { return d.headers }

// Payload returns the raw inbound payload.
func (d *Descriptor) Payload() *Payload { return d.payload }

// QueryParams returns all values of a query parameter.
func (d *Descriptor) QueryParams(name string) []string {
	return d.query[name]
}

// Body returns the payload decoded with the request charset. It is decoded
// on first access and cached.
func (d *Descriptor) Body() string {
	d.bodyOnce.Do(func() {
		d.body = decodeBytes(d.encoding, d.payload.Bytes())
	})
	return d.body
}

// Cookie returns the inbound cookie with the given name, or nil.
func (d *Descriptor) Cookie(name string) *http.Cookie {
	d.cookiesOnce.Do(func() {
		d.cookies = make(map[string]*http.Cookie)
		for _, line := range d.headers.Values("Cookie") {
			cookies, err := http.ParseCookie(line)
			if err != nil {
				d.logger.Debug("ignoring malformed cookie header", "error", err)
				continue
			}
			for _, c := range cookies {
				d.cookies[c.Name] = c
			}
		}
	})
	return d.cookies[name]
}

// IsFormPost reports whether the request is a form-encoded POST.
func (d *Descriptor) IsFormPost() bool {
	return d.method == http.MethodPost &&
		(strings.HasPrefix(d.contentType, ContentTypeMultipartForm) ||
			strings.HasPrefix(d.contentType, ContentTypeFormURLEncoded))
}

// IsJSONPost reports whether the request is a JSON POST.
func (d *Descriptor) IsJSONPost() bool {
	return d.method == http.MethodPost && strings.HasPrefix(d.contentType, ContentTypeJSON)
}

// PostParams returns the values of a body parameter.
//
// Form POSTs are decoded as form fields. JSON POSTs evaluate name as a
// JSON path ("user.id" and "$.user.id" are equivalent) and return the first
// match. A missing value yields an empty list. Decode and path errors are
// logged without the body and also yield an empty list; they are never
// returned to the caller. Other requests always yield an empty list.
func (d *Descriptor) PostParams(name string) []string {
	switch {
	case d.IsFormPost():
		if vs := d.formValues()[name]; len(vs) > 0 {
			return vs
		}
		return []string{}
	case d.IsJSONPost():
		v, err := d.jsonPath(name)
		if errors.Is(err, errPathNotFound) {
			d.logger.Debug("json path not found", "path", name)
			return []string{}
		}
		if err != nil {
			d.logger.Warn("json path lookup failed", "path", name, "body_size", d.payload.Len(), "error", err)
			return []string{}
		}
		return []string{v}
	default:
		return []string{}
	}
}

func (d *Descriptor) formValues() url.Values {
	d.formOnce.Do(func() {
		form, err := parseForm(d.contentType, d.Body())
		if err != nil {
			d.logger.Warn("form decode failed", "content_type", d.contentType, "error", err)
			form = make(url.Values)
		}
		d.form = form
	})
	return d.form
}

var errPathNotFound = errors.New("no value at path")

func (d *Descriptor) jsonPath(name string) (string, error) {
	d.jsonOnce.Do(func() {
		d.jsonDoc, d.jsonErr = oj.ParseString(d.Body())
	})
	if d.jsonErr != nil {
		return "", fmt.Errorf("decode body: %w", d.jsonErr)
	}

	expr := name
	if !strings.HasPrefix(expr, "$") && !strings.HasPrefix(expr, "@") {
		expr = "$." + expr
	}
	x, err := jp.ParseString(expr)
	if err != nil {
		return "", fmt.Errorf("parse path: %w", err)
	}
	results := x.Get(d.jsonDoc)
	if len(results) == 0 {
		return "", errPathNotFound
	}
	switch v := results[0].(type) {
	case string:
		return v, nil
	case nil:
		return "null", nil
	default:
		return oj.JSON(v), nil
	}
}

// parseForm decodes url-encoded or multipart form fields. File parts of a
// multipart body are skipped.
func parseForm(contentType, body string) (url.Values, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, err
	}
	if mediaType != ContentTypeMultipartForm {
		return url.ParseQuery(body)
	}

	form := make(url.Values)
	mr := multipart.NewReader(strings.NewReader(body), params["boundary"])
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return form, nil
		}
		if err != nil {
			return form, err
		}
		if part.FileName() == "" && part.FormName() != "" {
			var buf bytes.Buffer
			if _, err := io.Copy(&buf, part); err != nil {
				return form, err
			}
			form.Add(part.FormName(), buf.String())
		}
		part.Close()
	}
}

// ModifyScheme returns the outbound scheme.
func (d *Descriptor) ModifyScheme() string { return d.modifyScheme }

// SetModifyScheme sets the outbound scheme, e.g. SchemeHTTPS.
func (d *Descriptor) SetModifyScheme(scheme string) { d.modifyScheme = scheme }

// ModifyHost returns the outbound host.
func (d *Descriptor) ModifyHost() string { return d.modifyHost }

// SetModifyHost sets the outbound host (host:port).
func (d *Descriptor) SetModifyHost(host string) { d.modifyHost = host }

// ModifyPath returns the outbound path.
func (d *Descriptor) ModifyPath() string { return d.modifyPath }

// SetModifyPath sets the outbound path.
func (d *Descriptor) SetModifyPath(path string) { d.modifyPath = path }

// AddHeader appends an outbound header value.
func (d *Descriptor) AddHeader(name, value string) {
	d.builder.headers.Add(name, value)
}

// SetHeader replaces an outbound header.
func (d *Descriptor) SetHeader(name, value string) {
	d.builder.headers.Set(name, value)
}

// AddQueryParam appends an outbound query parameter.
func (d *Descriptor) AddQueryParam(name, value string) {
	d.builder.query.Add(name, value)
}

// AddFormParam appends an outbound form field. It has no effect unless the
// request is a form POST.
func (d *Descriptor) AddFormParam(name, value string) {
	if d.IsFormPost() {
		d.builder.form.Add(name, value)
	}
}

// AddOrReplaceCookie sets an outbound cookie, replacing one with the same name.
func (d *Descriptor) AddOrReplaceCookie(c *http.Cookie) {
	d.builder.addOrReplaceCookie(c)
}

// SetRequestTimeout bounds the outbound call.
func (d *Descriptor) SetRequestTimeout(timeout time.Duration) {
	d.builder.timeout = timeout
}

// RequestTimeout returns the outbound call timeout; zero means none was set.
func (d *Descriptor) RequestTimeout() time.Duration {
	return d.builder.timeout
}

// FinalURL returns scheme + host + path from the current overlay.
func (d *Descriptor) FinalURL() string {
	return d.modifyScheme + d.modifyHost + d.modifyPath
}

// Build materializes the overlay into an immutable outbound request. It may
// be called repeatedly; each call reflects the current overlay and leaves
// the descriptor unchanged.
func (d *Descriptor) Build() (*Outbound, error) {
	body := d.builder.body
	header := d.builder.headers.Clone()

	if len(d.builder.form) > 0 && d.IsFormPost() {
		var (
			ct  string
			err error
		)
		body, ct, err = mergeForm(d.contentType, body, d.builder.form)
		if err != nil {
			return nil, fmt.Errorf("failed to encode form parameters: %w", err)
		}
		header.Set("Content-Type", ct)
	}

	return &Outbound{
		Method:  d.builder.method,
		URL:     d.FinalURL(),
		Query:   cloneValues(d.builder.query),
		Header:  header,
		Cookies: d.builder.cloneCookies(),
		Body:    bytes.Clone(body),
		Timeout: d.builder.timeout,
	}, nil
}

// mergeForm re-encodes an inbound form body with extra fields appended.
func mergeForm(contentType string, body []byte, extra url.Values) ([]byte, string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, "", err
	}

	if mediaType != ContentTypeMultipartForm {
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, "", err
		}
		for k, vs := range extra {
			for _, v := range vs {
				form.Add(k, v)
			}
		}
		return []byte(form.Encode()), contentType, nil
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mr := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", err
		}
		w, err := mw.CreatePart(part.Header)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(w, part); err != nil {
			return nil, "", err
		}
		part.Close()
	}
	for _, k := range slices.Sorted(maps.Keys(extra)) {
		for _, v := range extra[k] {
			if err := mw.WriteField(k, v); err != nil {
				return nil, "", err
			}
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
