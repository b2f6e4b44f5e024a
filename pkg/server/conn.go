package server

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"hikari-hq/gateway/pkg/proxy"
	"hikari-hq/gateway/pkg/proxy/response"
)

// Connection states. A connection is reading from the first byte of a
// request until it is dispatched, and active until the response is written.
const (
	stateIdle int32 = iota
	stateReading
	stateActive
)

// conn is one accepted client connection.
type conn struct {
	id     uint64
	server *Server
	rwc    net.Conn
	lr     *limitReader
	br     *bufio.Reader
	bw     *bufio.Writer
	logger *slog.Logger

	// lastActivity is the unix nano time of the last byte moved in
	// either direction.
	lastActivity atomic.Int64
	state        atomic.Int32
	idleTimer    *time.Timer

	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(s *Server, id uint64, rwc net.Conn) *conn {
	c := &conn{
		id:     id,
		server: s,
		rwc:    rwc,
		closed: make(chan struct{}),
		logger: s.logger.With("conn_id", id, "remote", rwc.RemoteAddr().String()),
	}
	c.lr = &limitReader{r: activityReader{c}}
	c.lr.unlimit()
	c.br = bufio.NewReader(c.lr)
	c.bw = bufio.NewWriter(activityWriter{c})
	c.touch()
	if d := s.cfg.IdleTimeout; d > 0 {
		c.idleTimer = time.AfterFunc(d, c.checkIdle)
	}
	return c
}

type activityReader struct{ c *conn }

func (a activityReader) Read(p []byte) (int, error) {
	n, err := a.c.rwc.Read(p)
	if n > 0 {
		a.c.touch()
	}
	return n, err
}

type activityWriter struct{ c *conn }

func (a activityWriter) Write(p []byte) (int, error) {
	n, err := a.c.rwc.Write(p)
	if n > 0 {
		a.c.touch()
	}
	return n, err
}

func (c *conn) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

func (c *conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *conn) close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.idleTimer != nil {
			c.idleTimer.Stop()
		}
		err = c.rwc.Close()
	})
	return err
}

// checkIdle closes the connection once both directions have been quiet for
// the idle timeout and no request is in flight; otherwise it re-arms.
func (c *conn) checkIdle() {
	if c.isClosed() {
		return
	}
	idle := c.server.cfg.IdleTimeout
	elapsed := time.Since(time.Unix(0, c.lastActivity.Load()))
	if c.state.Load() == stateActive {
		c.idleTimer.Reset(idle)
		return
	}
	if elapsed < idle {
		c.idleTimer.Reset(idle - elapsed)
		return
	}
	c.logger.Warn("closing idle connection", "idle", elapsed.Round(time.Millisecond))
	c.server.observer.IdleClosed()
	_ = c.close()
}

// serve runs the request loop until the connection closes.
func (c *conn) serve() {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("connection panicked", "panic", r, "stack", string(debug.Stack()))
		}
		_ = c.close()
		c.logger.Debug("connection inactive")
		c.server.untrack(c)
	}()

	c.logger.Debug("connection active")

	for {
		if c.server.shuttingDown() {
			return
		}

		c.lr.setLimit(int64(c.server.cfg.MaxHeaderBytes) + headSlack)
		if _, err := c.br.Peek(1); err != nil {
			c.logReadError(err)
			return
		}
		c.state.Store(stateReading)

		if err := c.server.workers.acquire(c.server.ctx); err != nil {
			return
		}
		w, err := c.readRequest()
		if err != nil {
			c.server.workers.release()
			c.reject(err)
			return
		}

		c.state.Store(stateActive)
		h := newHandle(c, w.Request.Method)
		c.dispatch(w, h)
		c.server.workers.release()

		select {
		case <-h.done:
		case <-c.closed:
			return
		}
		c.state.Store(stateIdle)
		c.touch()

		if !h.keepAlive {
			return
		}
	}
}

// readRequest decodes one request head and aggregates its body.
func (c *conn) readRequest() (*proxy.RequestWrapper, error) {
	cfg := c.server.cfg
	if t := cfg.ReadHeaderTimeout; t > 0 {
		_ = c.rwc.SetReadDeadline(time.Now().Add(t))
	}

	req, err := http.ReadRequest(c.br)
	if err != nil {
		if c.lr.exhausted() {
			return nil, errHeaderTooLarge
		}
		return nil, err
	}
	c.lr.unlimit()
	_ = c.rwc.SetReadDeadline(time.Time{})

	if req.ProtoMajor != 1 {
		return nil, errors.New("unsupported protocol " + req.Proto)
	}

	limit := int64(cfg.MaxContentLength)
	if req.ContentLength > limit {
		return nil, errEntityTooLarge
	}
	if expectsContinue(req) {
		req.Header.Del("Expect")
		if hasBody(req) {
			if _, err := c.bw.WriteString("HTTP/1.1 100 Continue\r\n\r\n"); err != nil {
				return nil, err
			}
			if err := c.bw.Flush(); err != nil {
				return nil, err
			}
		}
	}

	payload, err := readPayload(req.Body, limit)
	if err != nil {
		return nil, err
	}
	req.Body = http.NoBody
	req.RemoteAddr = c.rwc.RemoteAddr().String()

	return &proxy.RequestWrapper{
		Request:    req,
		Payload:    payload,
		KeepAlive:  !req.Close,
		ReceivedAt: time.Now(),
	}, nil
}

// reject answers a request that could not be decoded and closes the
// connection.
func (c *conn) reject(err error) {
	var code response.Code
	reason := RejectMalformed
	switch {
	case errors.Is(err, errEntityTooLarge):
		code, reason = response.RequestEntityTooLarge, RejectTooLarge
	case errors.Is(err, errHeaderTooLarge):
		code, reason = response.RequestHeaderFieldsTooLarge, RejectHeaderTooLarge
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		c.logger.Debug("connection closed mid-request", "error", err)
		return
	case errors.Is(err, os.ErrDeadlineExceeded):
		c.logger.Debug("request head timed out")
		c.server.observer.RequestRejected(RejectTimeout)
		return
	default:
		code = response.BadRequest
	}

	c.logger.Warn("rejecting request", "status", code.Status, "reason", reason, "error", err)
	c.server.observer.RequestRejected(reason)

	env := response.FromCode(code)
	defer env.Close()
	_ = c.rwc.SetWriteDeadline(time.Now().Add(c.server.cfg.ShutdownTimeout))
	if err := writeEnvelope(c.bw, env, false, false, time.Now()); err != nil {
		c.logger.Debug("failed to write rejection", "error", err)
		return
	}
	c.lingerClose()
}

// rstAvoidanceDelay is how long a rejected connection stays half-closed so
// the client can read the response before unread input triggers a reset.
const rstAvoidanceDelay = 500 * time.Millisecond

func (c *conn) lingerClose() {
	tc, ok := c.rwc.(*net.TCPConn)
	if !ok {
		return
	}
	_ = tc.CloseWrite()
	select {
	case <-time.After(rstAvoidanceDelay):
	case <-c.closed:
	}
}

// dispatch hands the request to the processor. A panicking processor is
// answered with 500 and the connection is closed.
func (c *conn) dispatch(w *proxy.RequestWrapper, h *handle) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("processor panicked", "panic", r, "stack", string(debug.Stack()))
			w.Payload.Release()
			_ = h.WriteBack(response.FromCode(response.InternalError), false)
		}
	}()
	c.server.processor.Process(w, h)
}

func (c *conn) logReadError(err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || c.isClosed() {
		return
	}
	c.logger.Debug("read failed", "error", err)
}
