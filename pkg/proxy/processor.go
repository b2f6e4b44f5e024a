package proxy

import (
	"net"
	"net/http"
	"time"

	"hikari-hq/gateway/pkg/proxy/request"
	"hikari-hq/gateway/pkg/proxy/response"
)

// RequestWrapper carries one fully aggregated inbound request from the
// front-end to a Processor.
type RequestWrapper struct {
	// Request holds the decoded request line and headers. Its Body has
	// already been drained into Payload.
	Request *http.Request

	// Payload is the aggregated body. The Processor owns it and must
	// release it exactly once.
	Payload *request.Payload

	// KeepAlive reports whether the client asked to reuse the connection.
	KeepAlive bool

	// ReceivedAt is when aggregation finished.
	ReceivedAt time.Time
}

// ConnHandle is the connection side of one request/response cycle.
type ConnHandle interface {
	// RemoteAddr returns the client address of the connection.
	RemoteAddr() net.Addr

	// WriteBack writes env to the client. keepAlive false closes the
	// connection after the write. Only the first call writes.
	WriteBack(env *response.Envelope, keepAlive bool) error

	// Close closes the connection without writing.
	Close() error
}

// Processor handles a decoded request. It must eventually cause exactly
// one WriteBack (or Close) on conn and exactly one release of the payload.
// Process may return before that happens.
type Processor interface {
	Process(w *RequestWrapper, conn ConnHandle)
}

// ProcessorFunc adapts an ordinary function to the Processor interface.
type ProcessorFunc func(w *RequestWrapper, conn ConnHandle)

// Process calls f(w, conn).
func (f ProcessorFunc) Process(w *RequestWrapper, conn ConnHandle) {
	f(w, conn)
}
