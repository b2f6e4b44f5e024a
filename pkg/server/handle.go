package server

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"hikari-hq/gateway/pkg/proxy/response"
)

// ErrAlreadyWritten is returned by WriteBack after the first call.
var ErrAlreadyWritten = errors.New("server: response already written")

// handle is the proxy.ConnHandle for one request on a connection.
type handle struct {
	c      *conn
	method string

	once sync.Once
	done chan struct{}

	// keepAlive is valid once done is closed.
	keepAlive bool
}

func newHandle(c *conn, method string) *handle {
	return &handle{c: c, method: method, done: make(chan struct{})}
}

// RemoteAddr returns the client address.
func (h *handle) RemoteAddr() net.Addr {
	return h.c.rwc.RemoteAddr()
}

// WriteBack writes env and releases it. Only the first call writes; the
// envelope of a later call is still closed. A nil envelope is answered
// with 500.
func (h *handle) WriteBack(env *response.Envelope, keepAlive bool) error {
	if env == nil {
		env = response.FromCode(response.InternalError)
	}
	err := ErrAlreadyWritten
	h.once.Do(func() {
		defer close(h.done)
		keep := keepAlive && !h.c.server.shuttingDown()
		err = writeEnvelope(h.c.bw, env, keep, h.method == http.MethodHead, time.Now())
		h.keepAlive = keep && err == nil
		if err != nil {
			h.c.logger.Debug("write back failed", "error", err)
		}
		if !h.keepAlive {
			_ = h.c.close()
		}
	})
	_ = env.Close()
	return err
}

// Close closes the connection. A pending WriteBack becomes a no-op.
func (h *handle) Close() error {
	h.once.Do(func() { close(h.done) })
	return h.c.close()
}
