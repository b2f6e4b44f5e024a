package processor

import (
	"errors"
	"net"
	"net/http"
	"reflect"
	"testing"
	"time"

	"hikari-hq/gateway/pkg/proxy"
	"hikari-hq/gateway/pkg/proxy/request"
	"hikari-hq/gateway/pkg/rule"
)

type filterFunc struct {
	id    string
	order int
	fn    func(*proxy.Context) error
}

func (f filterFunc) ID() string                      { return f.id }
func (f filterFunc) Order() int                      { return f.order }
func (f filterFunc) Filter(ctx *proxy.Context) error { return f.fn(ctx) }

func newContext(t *testing.T, r *rule.Rule, uri string) *proxy.Context {
	t.Helper()
	d, err := request.New(request.Params{
		UniqueID: "u-1",
		Host:     "gateway.local",
		URI:      uri,
		Method:   http.MethodGet,
		Payload:  request.NewPayload(nil, nil),
	})
	if err != nil {
		t.Fatalf("request.New() error = %v", err)
	}
	return proxy.NewContext(proxy.Options{Request: d, Rule: r})
}

func TestChain_OrderAndSelection(t *testing.T) {
	var ran []string
	record := func(id string, order int) Filter {
		return filterFunc{id: id, order: order, fn: func(*proxy.Context) error {
			ran = append(ran, id)
			return nil
		}}
	}

	chain, err := NewChain(record("c", 10), record("b", 5), record("a", 5), record("skipped", 1))
	if err != nil {
		t.Fatal(err)
	}
	if got := chain.IDs(); !reflect.DeepEqual(got, []string{"skipped", "a", "b", "c"}) {
		t.Errorf("IDs() = %v", got)
	}

	r := &rule.Rule{ID: "r", FilterConfigs: []rule.FilterConfig{{ID: "a"}, {ID: "b"}, {ID: "c"}}}
	if err := chain.Run(newContext(t, r, "/")); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ran, []string{"a", "b", "c"}) {
		t.Errorf("ran = %v", ran)
	}
}

func TestChain_StopsOnError(t *testing.T) {
	boom := errors.New("boom")
	var ranAfter bool
	chain, _ := NewChain(
		filterFunc{id: "first", order: 1, fn: func(*proxy.Context) error { return boom }},
		filterFunc{id: "second", order: 2, fn: func(*proxy.Context) error { ranAfter = true; return nil }},
	)
	r := &rule.Rule{ID: "r", FilterConfigs: []rule.FilterConfig{{ID: "first"}, {ID: "second"}}}

	err := chain.Run(newContext(t, r, "/"))
	var fe *proxy.FilterError
	if !errors.As(err, &fe) || fe.FilterID != "first" || !errors.Is(err, boom) {
		t.Errorf("Run() error = %v", err)
	}
	if ranAfter {
		t.Error("chain must stop at the first failure")
	}
}

func TestRouterFilter(t *testing.T) {
	tests := []struct {
		name        string
		config      string
		uri         string
		wantURL     string
		wantTimeout time.Duration
		wantErr     error
	}{
		{"host only", `{"host":"svc:80"}`, "/users/1", "http://svc:80/users/1", 0, nil},
		{"prefix and timeout", `{"host":"svc","path_prefix":"/api/","timeout_ms":250}`, "/users", "http://svc/api/users", 250 * time.Millisecond, nil},
		{"strip matched", `{"host":"svc","scheme":"https","paths":["/users"],"strip_prefix":true}`, "/users/7", "https://svc/7", 0, nil},
		{"strip whole path", `{"host":"svc","paths":["/users"],"strip_prefix":true}`, "/users", "http://svc/", 0, nil},
		{"no match", `{"host":"svc","paths":["/orders"]}`, "/users", "", 0, proxy.ErrPathNotMatched},
		{"missing host", `{"path_prefix":"/x"}`, "/users", "", 0, errRouterHost},
	}

	f := NewRouterFilter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &rule.Rule{ID: "r", FilterConfigs: []rule.FilterConfig{{ID: RouterFilterID, Config: tt.config}}}
			ctx := newContext(t, r, tt.uri)

			err := f.Filter(ctx)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Filter() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Filter() error = %v", err)
			}
			if got := ctx.Request().FinalURL(); got != tt.wantURL {
				t.Errorf("FinalURL() = %q, want %q", got, tt.wantURL)
			}
			if got := ctx.Request().RequestTimeout(); got != tt.wantTimeout {
				t.Errorf("RequestTimeout() = %v, want %v", got, tt.wantTimeout)
			}
		})
	}
}

func TestHeaderFilter(t *testing.T) {
	r := &rule.Rule{ID: "r", FilterConfigs: []rule.FilterConfig{{
		ID:     HeaderFilterID,
		Config: `{"set":{"X-Env":"prod"},"add":{"X-Tag":"edge"},"forward_unique_id":true}`,
	}}}
	ctx := newContext(t, r, "/")
	if err := NewHeaderFilter().Filter(ctx); err != nil {
		t.Fatal(err)
	}

	out, err := ctx.Request().Build()
	if err != nil {
		t.Fatal(err)
	}
	if out.Header.Get("X-Env") != "prod" || out.Header.Get("X-Tag") != "edge" {
		t.Errorf("headers = %v", out.Header)
	}
	if out.Header.Get(HeaderUniqueID) != "u-1" {
		t.Errorf("unique id header = %q", out.Header.Get(HeaderUniqueID))
	}
}

func TestIdentity(t *testing.T) {
	remote := &net.TCPAddr{IP: net.ParseIP("192.0.2.1"), Port: 4000}

	tests := []struct {
		name string
		xff  string
		want string
	}{
		{"forwarded", "198.51.100.2, 10.0.0.1", "198.51.100.2"},
		{"blank forwarded", " , 10.0.0.1", "192.0.2.1"},
		{"remote", "", "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.xff != "" {
				h.Set(HeaderForwardedFor, tt.xff)
			}
			if got := clientIP(h, remote); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}

	h := http.Header{}
	if id := uniqueID(h); len(id) != 36 {
		t.Errorf("expected generated UUID, got %q", id)
	}
	h.Set(HeaderUniqueID, "client-id")
	if id := uniqueID(h); id != "client-id" {
		t.Errorf("uniqueID() = %q", id)
	}
}
