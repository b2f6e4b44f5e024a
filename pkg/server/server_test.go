package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"hikari-hq/gateway/pkg/config"
	"hikari-hq/gateway/pkg/proxy"
	"hikari-hq/gateway/pkg/proxy/response"
)

type recordingObserver struct {
	opened, closed, idle atomic.Int32
	rejected             atomic.Value
}

func (o *recordingObserver) ConnectionOpened()        { o.opened.Add(1) }
func (o *recordingObserver) ConnectionClosed()        { o.closed.Add(1) }
func (o *recordingObserver) IdleClosed()              { o.idle.Add(1) }
func (o *recordingObserver) RequestRejected(r string) { o.rejected.Store(r) }

func (o *recordingObserver) lastRejection() string {
	r, _ := o.rejected.Load().(string)
	return r
}

func testConfig() config.ServerConfig {
	return config.ServerConfig{
		ListenHost:        "127.0.0.1",
		Port:              0,
		AcceptThreads:     2,
		WorkerThreads:     4,
		MaxContentLength:  16,
		MaxHeaderBytes:    1024,
		IdleTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   time.Second,
		Transport:         config.TransportPortable,
	}
}

// echoProcessor answers with the request body and counts calls.
func echoProcessor(calls *atomic.Int32) proxy.Processor {
	return proxy.ProcessorFunc(func(w *proxy.RequestWrapper, conn proxy.ConnHandle) {
		if calls != nil {
			calls.Add(1)
		}
		body := string(w.Payload.Bytes())
		w.Payload.Release()

		env := response.New()
		env.Status = http.StatusOK
		env.Body = body
		env.PutHeader("X-Method", w.Request.Method)
		_ = conn.WriteBack(env, w.KeepAlive)
	})
}

func startServer(t *testing.T, cfg config.ServerConfig, p proxy.Processor, opts ...Option) *Server {
	t.Helper()
	srv := New(&cfg, p, opts...)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

func dial(t *testing.T, srv *Server) (net.Conn, *bufio.Reader) {
	t.Helper()
	c, err := net.DialTimeout("tcp", srv.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	_ = c.SetDeadline(time.Now().Add(5 * time.Second))
	return c, bufio.NewReader(c)
}

func roundTrip(t *testing.T, c net.Conn, br *bufio.Reader, raw string) *http.Response {
	t.Helper()
	if _, err := io.WriteString(c, raw); err != nil {
		t.Fatalf("write: %v", err)
	}
	resp, err := http.ReadResponse(br, nil)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func expectClosed(t *testing.T, br *bufio.Reader) {
	t.Helper()
	if _, err := br.ReadByte(); err == nil {
		t.Error("expected connection to be closed")
	}
}

func TestServer_KeepAlive(t *testing.T) {
	var calls atomic.Int32
	srv := startServer(t, testConfig(), echoProcessor(&calls))
	c, br := dial(t, srv)

	for i := 0; i < 3; i++ {
		body := fmt.Sprintf("ping-%d", i)
		resp := roundTrip(t, c, br, fmt.Sprintf(
			"POST /echo HTTP/1.1\r\nHost: x\r\nContent-Length: %d\r\n\r\n%s", len(body), body))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, resp.StatusCode)
		}
		if resp.Close {
			t.Fatalf("request %d: expected keep-alive", i)
		}
		if got := readBody(t, resp); got != body {
			t.Errorf("request %d: body = %q, want %q", i, got, body)
		}
		if resp.Header.Get("Date") == "" {
			t.Error("expected Date header")
		}
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 processor calls, got %d", calls.Load())
	}
}

func TestServer_ConnectionClose(t *testing.T) {
	srv := startServer(t, testConfig(), echoProcessor(nil))
	c, br := dial(t, srv)

	resp := roundTrip(t, c, br, "GET / HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")
	if !resp.Close {
		t.Error("expected Connection: close")
	}
	readBody(t, resp)
	expectClosed(t, br)
}

func TestServer_HTTP10(t *testing.T) {
	srv := startServer(t, testConfig(), echoProcessor(nil))
	c, br := dial(t, srv)

	resp := roundTrip(t, c, br, "GET / HTTP/1.0\r\n\r\n")
	if !resp.Close {
		t.Error("expected HTTP/1.0 request without keep-alive to close")
	}
	readBody(t, resp)
	expectClosed(t, br)
}

func TestServer_BodyLimit(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantStatus int
		wantCalls  int32
	}{
		{
			name:       "exactly max",
			raw:        "POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 16\r\n\r\n0123456789abcdef",
			wantStatus: http.StatusOK,
			wantCalls:  1,
		},
		{
			name:       "declared max plus one",
			raw:        "POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 17\r\n\r\n0123456789abcdefg",
			wantStatus: http.StatusRequestEntityTooLarge,
		},
		{
			name:       "chunked max plus one",
			raw:        "POST / HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n11\r\n0123456789abcdefg\r\n0\r\n\r\n",
			wantStatus: http.StatusRequestEntityTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			obs := &recordingObserver{}
			srv := startServer(t, testConfig(), echoProcessor(&calls), WithObserver(obs))
			c, br := dial(t, srv)

			resp := roundTrip(t, c, br, tt.raw)
			readBody(t, resp)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("processor calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
			if tt.wantStatus == http.StatusRequestEntityTooLarge {
				if !resp.Close {
					t.Error("expected rejection to close the connection")
				}
				expectClosed(t, br)
				if obs.lastRejection() != RejectTooLarge {
					t.Errorf("rejection reason = %q", obs.lastRejection())
				}
			}
		})
	}
}

func TestServer_HeaderTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.MaxHeaderBytes = 64
	obs := &recordingObserver{}
	srv := startServer(t, cfg, echoProcessor(nil), WithObserver(obs))
	c, br := dial(t, srv)

	raw := "GET / HTTP/1.1\r\nHost: x\r\nX-Big: " + strings.Repeat("a", 8192) + "\r\n\r\n"
	resp := roundTrip(t, c, br, raw)
	readBody(t, resp)
	if resp.StatusCode != http.StatusRequestHeaderFieldsTooLarge {
		t.Errorf("status = %d, want 431", resp.StatusCode)
	}
	if obs.lastRejection() != RejectHeaderTooLarge {
		t.Errorf("rejection reason = %q", obs.lastRejection())
	}
}

func TestServer_MalformedRequest(t *testing.T) {
	var calls atomic.Int32
	srv := startServer(t, testConfig(), echoProcessor(&calls))
	c, br := dial(t, srv)

	resp := roundTrip(t, c, br, "THIS IS NOT HTTP\r\n\r\n")
	readBody(t, resp)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	expectClosed(t, br)
	if calls.Load() != 0 {
		t.Error("processor must not see malformed requests")
	}
}

func TestServer_ExpectContinue(t *testing.T) {
	srv := startServer(t, testConfig(), echoProcessor(nil))
	c, br := dial(t, srv)

	io.WriteString(c, "POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 4\r\nExpect: 100-continue\r\n\r\n")
	line, err := br.ReadString('\n')
	if err != nil || !strings.HasPrefix(line, "HTTP/1.1 100") {
		t.Fatalf("expected 100 Continue, got %q (%v)", line, err)
	}
	if _, err := br.ReadString('\n'); err != nil {
		t.Fatal(err)
	}

	resp := roundTrip(t, c, br, "data")
	if got := readBody(t, resp); got != "data" {
		t.Errorf("body = %q", got)
	}
}

func TestServer_Head(t *testing.T) {
	srv := startServer(t, testConfig(), proxy.ProcessorFunc(func(w *proxy.RequestWrapper, conn proxy.ConnHandle) {
		w.Payload.Release()
		env := response.New()
		env.Status = http.StatusOK
		env.Body = "hidden"
		_ = conn.WriteBack(env, true)
	}))
	c, br := dial(t, srv)

	io.WriteString(c, "HEAD / HTTP/1.1\r\nHost: x\r\n\r\n")
	resp, err := http.ReadResponse(br, &http.Request{Method: http.MethodHead})
	if err != nil {
		t.Fatal(err)
	}
	if resp.ContentLength != 6 {
		t.Errorf("Content-Length = %d, want 6", resp.ContentLength)
	}

	// The next response must parse cleanly, proving no body was written.
	resp = roundTrip(t, c, br, "GET / HTTP/1.1\r\nHost: x\r\n\r\n")
	if got := readBody(t, resp); got != "hidden" {
		t.Errorf("body = %q", got)
	}
}

func TestServer_ProcessorPanic(t *testing.T) {
	srv := startServer(t, testConfig(), proxy.ProcessorFunc(func(*proxy.RequestWrapper, proxy.ConnHandle) {
		panic("boom")
	}))
	c, br := dial(t, srv)

	resp := roundTrip(t, c, br, "GET / HTTP/1.1\r\nHost: x\r\n\r\n")
	readBody(t, resp)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	expectClosed(t, br)
}

func TestServer_AsyncWriteBack(t *testing.T) {
	second := make(chan error, 2)
	srv := startServer(t, testConfig(), proxy.ProcessorFunc(func(w *proxy.RequestWrapper, conn proxy.ConnHandle) {
		go func() {
			time.Sleep(20 * time.Millisecond)
			w.Payload.Release()
			env := response.New()
			env.Status = http.StatusAccepted
			env.Body = w.Request.URL.Path
			_ = conn.WriteBack(env, true)
			second <- conn.WriteBack(response.New(), true)
		}()
	}))
	c, br := dial(t, srv)

	// Pipelined requests are answered in order.
	io.WriteString(c, "GET /a HTTP/1.1\r\nHost: x\r\n\r\nGET /b HTTP/1.1\r\nHost: x\r\n\r\n")
	for _, want := range []string{"/a", "/b"} {
		resp, err := http.ReadResponse(br, nil)
		if err != nil {
			t.Fatal(err)
		}
		if got := readBody(t, resp); got != want {
			t.Errorf("body = %q, want %q", got, want)
		}
	}
	for i := 0; i < 2; i++ {
		if err := <-second; !errors.Is(err, ErrAlreadyWritten) {
			t.Errorf("second WriteBack error = %v", err)
		}
	}
}

func TestServer_IdleClose(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTimeout = 100 * time.Millisecond
	obs := &recordingObserver{}
	srv := startServer(t, cfg, echoProcessor(nil), WithObserver(obs))
	c, br := dial(t, srv)

	resp := roundTrip(t, c, br, "GET / HTTP/1.1\r\nHost: x\r\n\r\n")
	readBody(t, resp)

	start := time.Now()
	expectClosed(t, br)
	if time.Since(start) > 3*time.Second {
		t.Error("idle connection was not closed promptly")
	}

	deadline := time.Now().Add(time.Second)
	for obs.idle.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if obs.idle.Load() != 1 {
		t.Errorf("idle closes = %d, want 1", obs.idle.Load())
	}
}

func TestServer_IdleSparesInFlight(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTimeout = 50 * time.Millisecond
	srv := startServer(t, cfg, proxy.ProcessorFunc(func(w *proxy.RequestWrapper, conn proxy.ConnHandle) {
		w.Payload.Release()
		time.Sleep(200 * time.Millisecond)
		env := response.New()
		env.Status = http.StatusOK
		_ = conn.WriteBack(env, true)
	}))
	c, br := dial(t, srv)

	resp := roundTrip(t, c, br, "GET / HTTP/1.1\r\nHost: x\r\n\r\n")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestServer_Shutdown(t *testing.T) {
	obs := &recordingObserver{}
	cfg := testConfig()
	srv := New(&cfg, echoProcessor(nil), WithObserver(obs))
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	if !srv.Listening() {
		t.Error("expected Listening after Start")
	}
	if err := srv.Start(); !errors.Is(err, ErrServerStarted) {
		t.Errorf("second Start error = %v", err)
	}

	c, br := dial(t, srv)
	resp := roundTrip(t, c, br, "GET / HTTP/1.1\r\nHost: x\r\n\r\n")
	readBody(t, resp)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
	expectClosed(t, br)

	if srv.Listening() || srv.Check(ctx) == nil {
		t.Error("expected server to stop listening")
	}
	if err := srv.Start(); !errors.Is(err, ErrServerClosed) {
		t.Errorf("Start after Shutdown error = %v", err)
	}
	if _, err := net.DialTimeout("tcp", srv.Addr().String(), 200*time.Millisecond); err == nil {
		t.Error("expected dial to fail after shutdown")
	}
	if obs.opened.Load() != 1 || obs.closed.Load() != 1 {
		t.Errorf("opened/closed = %d/%d", obs.opened.Load(), obs.closed.Load())
	}
}

func TestServer_ShutdownWithoutStart(t *testing.T) {
	cfg := testConfig()
	srv := New(&cfg, echoProcessor(nil))
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if srv.Addr() != nil {
		t.Error("expected nil Addr before Start")
	}
}

func TestServer_ShutdownTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	srv := startServer(t, testConfig(), proxy.ProcessorFunc(func(w *proxy.RequestWrapper, conn proxy.ConnHandle) {
		w.Payload.Release()
		<-release
	}))
	c, _ := dial(t, srv)
	io.WriteString(c, "GET / HTTP/1.1\r\nHost: x\r\n\r\n")

	deadline := time.Now().Add(time.Second)
	for srv.workers.inUse() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := srv.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown() error = %v, want deadline exceeded", err)
	}
}

func TestServer_Run(t *testing.T) {
	cfg := testConfig()
	srv := New(&cfg, echoProcessor(nil))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for !srv.Listening() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestServer_BindError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	cfg := testConfig()
	cfg.Port = ln.Addr().(*net.TCPAddr).Port
	srv := New(&cfg, echoProcessor(nil))
	if err := srv.Start(); err == nil {
		srv.Shutdown(context.Background())
		t.Fatal("expected bind error")
	}
	if srv.Listening() {
		t.Error("failed server must not report listening")
	}
}
