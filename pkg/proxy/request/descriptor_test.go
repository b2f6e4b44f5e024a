package request

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"hikari-hq/gateway/pkg/clock"
)

func newDescriptor(t *testing.T, p Params) *Descriptor {
	t.Helper()
	if p.Host == "" {
		p.Host = "gateway.local:7001"
	}
	if p.Method == "" {
		p.Method = http.MethodGet
	}
	d, err := NewWithClock(p, clock.NewFixed(time.UnixMilli(1000)))
	if err != nil {
		t.Fatalf("NewWithClock() error = %v", err)
	}
	return d
}

func TestNew_CapturesFacts(t *testing.T) {
	d := newDescriptor(t, Params{
		UniqueID:    "req-1",
		ClientIP:    "10.0.0.1",
		URI:         "/users/42?tag=a&tag=b",
		Method:      "get",
		ContentType: "text/plain",
		Headers:     http.Header{"X-Test": {"1"}},
	})

	if d.UniqueID() != "req-1" {
		t.Errorf("expected unique id req-1, got %q", d.UniqueID())
	}
	if d.BeginTime() != 1000 {
		t.Errorf("expected begin time 1000, got %d", d.BeginTime())
	}
	if d.Method() != http.MethodGet {
		t.Errorf("expected upper-case method, got %q", d.Method())
	}
	if d.Path() != "/users/42" {
		t.Errorf("expected path /users/42, got %q", d.Path())
	}
	if d.Charset() != DefaultCharset {
		t.Errorf("expected default charset, got %q", d.Charset())
	}
	if got := d.QueryParams("tag"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("expected query values [a b], got %v", got)
	}
	if d.ModifyScheme() != SchemeHTTP {
		t.Errorf("expected default scheme %q, got %q", SchemeHTTP, d.ModifyScheme())
	}
	if d.ModifyHost() != d.Host() || d.ModifyPath() != d.Path() {
		t.Error("expected overlay to start from the inbound host and path")
	}
}

func TestNew_InvalidURI(t *testing.T) {
	_, err := NewWithClock(Params{URI: "::not a uri", Method: http.MethodGet}, clock.NewFixed(time.UnixMilli(0)))
	if err == nil {
		t.Fatal("expected error for invalid uri")
	}
}

func TestFinalURL_ReflectsLatestOverlay(t *testing.T) {
	d := newDescriptor(t, Params{URI: "/a"})

	steps := []struct {
		scheme, host, path string
	}{
		{SchemeHTTP, "one:80", "/x"},
		{SchemeHTTPS, "two:443", "/y"},
		{SchemeHTTP, "three:8080", "/z/deeper"},
	}
	for _, s := range steps {
		d.SetModifyScheme(s.scheme)
		d.SetModifyHost(s.host)
		d.SetModifyPath(s.path)

		want := s.scheme + s.host + s.path
		if got := d.FinalURL(); got != want {
			t.Errorf("FinalURL() = %q, want %q", got, want)
		}
		out, err := d.Build()
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if out.URL != want {
			t.Errorf("Build().URL = %q, want %q", out.URL, want)
		}
	}

	if d.Host() != "gateway.local:7001" || d.Path() != "/a" {
		t.Error("overlay mutations must not change inbound facts")
	}
}

func TestBuild_Idempotent(t *testing.T) {
	d := newDescriptor(t, Params{
		URI:     "/orders?id=7",
		Method:  http.MethodPost,
		Headers: http.Header{"Content-Type": {"text/plain"}},
		Payload: NewPayload([]byte("body"), nil),
	})
	d.SetModifyHost("orders.svc:9000")
	d.AddHeader("X-A", "1")
	d.AddQueryParam("page", "2")
	d.SetRequestTimeout(2 * time.Second)

	first, err := d.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	second, err := d.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("expected identical builds, got %+v and %+v", first, second)
	}
	if d.FinalURL() != d.FinalURL() {
		t.Error("expected FinalURL to be stable")
	}

	// Mutating one snapshot must not leak into the descriptor.
	first.Header.Set("X-A", "changed")
	first.Query.Set("page", "9")
	third, _ := d.Build()
	if third.Header.Get("X-A") != "1" || third.Query.Get("page") != "2" {
		t.Error("outbound snapshot shares state with the descriptor")
	}
	if third.Timeout != 2*time.Second {
		t.Errorf("expected timeout 2s, got %v", third.Timeout)
	}
	if string(third.Body) != "body" {
		t.Errorf("expected body to be carried, got %q", third.Body)
	}
}

func TestAddFormParam_IgnoredForNonForm(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		contentType string
	}{
		{"json post", http.MethodPost, "application/json"},
		{"plain post", http.MethodPost, "text/plain"},
		{"no content type", http.MethodPost, ""},
		{"form get", http.MethodGet, ContentTypeFormURLEncoded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDescriptor(t, Params{
				URI:         "/submit",
				Method:      tt.method,
				ContentType: tt.contentType,
				Headers:     http.Header{"Content-Type": {tt.contentType}},
				Payload:     NewPayload([]byte(`{"a":1}`), nil),
			})
			before, _ := d.Build()
			d.AddFormParam("extra", "value")
			after, err := d.Build()
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if !reflect.DeepEqual(before, after) {
				t.Errorf("AddFormParam changed a non-form request: %+v vs %+v", before, after)
			}
		})
	}
}

func TestAddFormParam_URLEncoded(t *testing.T) {
	d := newDescriptor(t, Params{
		URI:         "/login",
		Method:      http.MethodPost,
		ContentType: ContentTypeFormURLEncoded,
		Headers:     http.Header{"Content-Type": {ContentTypeFormURLEncoded}},
		Payload:     NewPayload([]byte("user=bob"), nil),
	})
	d.AddFormParam("source", "gateway")

	out, err := d.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	form, err := url.ParseQuery(string(out.Body))
	if err != nil {
		t.Fatalf("outbound body is not a form: %v", err)
	}
	if form.Get("user") != "bob" || form.Get("source") != "gateway" {
		t.Errorf("expected merged form, got %v", form)
	}
	if got := d.PostParams("source"); len(got) != 0 {
		t.Errorf("added form fields must not appear as inbound params, got %v", got)
	}
}

func TestAddFormParam_Multipart(t *testing.T) {
	var body strings.Builder
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("user", "alice")
	fw, _ := mw.CreateFormFile("avatar", "a.png")
	_, _ = fw.Write([]byte("PNG"))
	_ = mw.Close()
	ct := mw.FormDataContentType()

	d := newDescriptor(t, Params{
		URI:         "/upload",
		Method:      http.MethodPost,
		ContentType: ct,
		Headers:     http.Header{"Content-Type": {ct}},
		Payload:     NewPayload([]byte(body.String()), nil),
	})

	if got := d.PostParams("user"); !reflect.DeepEqual(got, []string{"alice"}) {
		t.Errorf("expected user=[alice], got %v", got)
	}
	if got := d.PostParams("avatar"); len(got) != 0 {
		t.Errorf("expected file parts to be skipped, got %v", got)
	}

	d.AddFormParam("tenant", "t1")
	out, err := d.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	_, params, err := mime.ParseMediaType(out.Header.Get("Content-Type"))
	if err != nil {
		t.Fatalf("invalid outbound content type: %v", err)
	}
	mr := multipart.NewReader(strings.NewReader(string(out.Body)), params["boundary"])
	fields := map[string]string{}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextPart() error = %v", err)
		}
		data, _ := io.ReadAll(part)
		fields[part.FormName()] = string(data)
	}
	want := map[string]string{"user": "alice", "avatar": "PNG", "tenant": "t1"}
	if !reflect.DeepEqual(fields, want) {
		t.Errorf("expected parts %v, got %v", want, fields)
	}
}

func TestPostParams_JSON(t *testing.T) {
	tests := []struct {
		name string
		body string
		path string
		want []string
	}{
		{"string value", `{"user":{"name":"bob"}}`, "user.name", []string{"bob"}},
		{"explicit root", `{"user":{"name":"bob"}}`, "$.user.name", []string{"bob"}},
		{"number value", `{"count":3}`, "count", []string{"3"}},
		{"object value", `{"o":{"k":true}}`, "o", []string{`{"k":true}`}},
		{"null value", `{"n":null}`, "n", []string{"null"}},
		{"missing path", `{"a":1}`, "b", []string{}},
		{"malformed body", `{"a":`, "a", []string{}},
		{"bad path", `{"a":1}`, "$[[", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDescriptor(t, Params{
				URI:         "/json",
				Method:      http.MethodPost,
				ContentType: "application/json; charset=utf-8",
				Payload:     NewPayload([]byte(tt.body), nil),
			})
			got := d.PostParams(tt.path)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("PostParams(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestPostParams_JSONLogging(t *testing.T) {
	const secret = "s3cr3t-card-4111"
	tests := []struct {
		name      string
		body      string
		path      string
		wantLevel string
		wantMsg   string
	}{
		{"missing path", `{"card":"` + secret + `"}`, "user.id", "DEBUG", "json path not found"},
		{"malformed body", `{"card":"` + secret + `",`, "card", "WARN", "json path lookup failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := slog.Default()
			defer slog.SetDefault(prev)

			var buf bytes.Buffer
			slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

			d := newDescriptor(t, Params{
				URI:         "/json",
				Method:      http.MethodPost,
				ContentType: "application/json",
				Payload:     NewPayload([]byte(tt.body), nil),
			})
			if got := d.PostParams(tt.path); len(got) != 0 {
				t.Fatalf("PostParams(%q) = %v, want empty", tt.path, got)
			}

			out := buf.String()
			if strings.Contains(out, secret) {
				t.Errorf("log output leaks body: %s", out)
			}
			if strings.Contains(out, "level=ERROR") {
				t.Errorf("expected no error-level record: %s", out)
			}
			if !strings.Contains(out, "level="+tt.wantLevel) || !strings.Contains(out, tt.wantMsg) {
				t.Errorf("expected %s record %q, got: %s", tt.wantLevel, tt.wantMsg, out)
			}
		})
	}
}

func TestPostParams_OtherRequests(t *testing.T) {
	d := newDescriptor(t, Params{
		URI:         "/x",
		Method:      http.MethodPut,
		ContentType: ContentTypeFormURLEncoded,
		Payload:     NewPayload([]byte("a=1"), nil),
	})
	if got := d.PostParams("a"); got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil list, got %#v", got)
	}
}

func TestBody_DecodesCharset(t *testing.T) {
	// "café" in ISO-8859-1.
	latin1 := []byte{'c', 'a', 'f', 0xe9}
	d := newDescriptor(t, Params{
		URI:     "/x",
		Method:  http.MethodPost,
		Charset: "iso-8859-1",
		Payload: NewPayload(latin1, nil),
	})
	if got := d.Body(); got != "café" {
		t.Errorf("expected decoded body %q, got %q", "café", got)
	}
}

func TestBody_UnknownCharsetFallsBack(t *testing.T) {
	d := newDescriptor(t, Params{
		URI:     "/x",
		Charset: "x-no-such-charset",
		Payload: NewPayload([]byte("plain"), nil),
	})
	if got := d.Body(); got != "plain" {
		t.Errorf("expected utf-8 fallback, got %q", got)
	}
}

func TestCharsetOf(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", DefaultCharset},
		{"text/plain", DefaultCharset},
		{"text/plain; charset=GBK", "gbk"},
		{"application/json;charset=utf-8", "utf-8"},
		{"not a media type;;", DefaultCharset},
	}
	for _, tt := range tests {
		if got := CharsetOf(tt.in); got != tt.want {
			t.Errorf("CharsetOf(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCookies(t *testing.T) {
	d := newDescriptor(t, Params{
		URI:     "/x",
		Headers: http.Header{"Cookie": {"session=abc; theme=dark"}},
	})

	if c := d.Cookie("session"); c == nil || c.Value != "abc" {
		t.Errorf("expected session cookie, got %v", c)
	}
	if d.Cookie("missing") != nil {
		t.Error("expected nil for unknown cookie")
	}

	d.AddOrReplaceCookie(&http.Cookie{Name: "session", Value: "xyz"})
	d.AddOrReplaceCookie(&http.Cookie{Name: "lang", Value: "en"})

	out, err := d.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	got := map[string]string{}
	for _, c := range out.Cookies {
		got[c.Name] = c.Value
	}
	want := map[string]string{"session": "xyz", "theme": "dark", "lang": "en"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected cookies %v, got %v", want, got)
	}
	if out.Header.Get("Cookie") != "" {
		t.Error("cookies must not remain in the outbound header map")
	}
	if c := d.Cookie("session"); c.Value != "abc" {
		t.Error("replacing an outbound cookie must not change the inbound one")
	}
}

func TestOutbound_NewHTTPRequest(t *testing.T) {
	d := newDescriptor(t, Params{
		URI:    "/items?x=1",
		Method: http.MethodPost,
		Headers: http.Header{
			"Connection":     {"keep-alive"},
			"Content-Length": {"4"},
			"X-Keep":         {"yes"},
			"Cookie":         {"a=1"},
		},
		Payload: NewPayload([]byte("data"), nil),
	})
	d.SetModifyHost("backend:8080")

	out, err := d.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if out.RawURL() != "http://backend:8080/items?x=1" {
		t.Errorf("unexpected raw url %q", out.RawURL())
	}

	req, err := out.NewHTTPRequest(context.Background())
	if err != nil {
		t.Fatalf("NewHTTPRequest() error = %v", err)
	}
	if req.Header.Get("Connection") != "" || req.Header.Get("Content-Length") != "" {
		t.Error("expected hop-by-hop headers to be dropped")
	}
	if req.Header.Get("X-Keep") != "yes" {
		t.Error("expected end-to-end header to be forwarded")
	}
	if c, err := req.Cookie("a"); err != nil || c.Value != "1" {
		t.Errorf("expected cookie a=1, got %v (%v)", c, err)
	}
	if req.ContentLength != 4 {
		t.Errorf("expected content length 4, got %d", req.ContentLength)
	}
}

func TestPayload_ReleaseOnce(t *testing.T) {
	var calls atomic.Int32
	p := NewPayload([]byte("x"), func([]byte) { calls.Add(1) })

	if !p.Release() {
		t.Error("expected first Release to report true")
	}
	if p.Release() {
		t.Error("expected second Release to report false")
	}
	if !p.Released() || calls.Load() != 1 {
		t.Errorf("expected one release callback, got %d", calls.Load())
	}

	var nilPayload *Payload
	if nilPayload.Release() || nilPayload.Len() != 0 {
		t.Error("nil payload must be inert")
	}
}
