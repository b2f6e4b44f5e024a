package server

import (
	"bytes"
	"errors"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"

	"hikari-hq/gateway/pkg/proxy/request"
)

var (
	errEntityTooLarge = errors.New("request entity too large")
	errHeaderTooLarge = errors.New("request header too large")
)

// headSlack is read beyond max_header_bytes before the head is rejected,
// to leave room for the request line.
const headSlack = 4096

// maxPooledBuffer bounds the capacity of body buffers returned to the pool.
const maxPooledBuffer = 1 << 20

var bufferPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// limitReader caps how many bytes may be pulled from the socket while a
// request head is being parsed.
type limitReader struct {
	r io.Reader
	n int64
}

func (l *limitReader) Read(p []byte) (int, error) {
	if l.n <= 0 {
		return 0, errHeaderTooLarge
	}
	if int64(len(p)) > l.n {
		p = p[:l.n]
	}
	n, err := l.r.Read(p)
	l.n -= int64(n)
	return n, err
}

func (l *limitReader) setLimit(n int64) { l.n = n }

func (l *limitReader) unlimit() { l.n = math.MaxInt64 }

func (l *limitReader) exhausted() bool { return l.n <= 0 }

// expectsContinue reports whether the client is waiting for an interim
// 100 response before sending the body.
func expectsContinue(r *http.Request) bool {
	return r.ProtoAtLeast(1, 1) && strings.EqualFold(r.Header.Get("Expect"), "100-continue")
}

func hasBody(r *http.Request) bool {
	return r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0
}

// readPayload drains body into a pooled buffer. A body of exactly limit
// bytes is accepted; one more byte fails with errEntityTooLarge.
func readPayload(body io.Reader, limit int64) (*request.Payload, error) {
	if body == nil || body == http.NoBody {
		return request.NewPayload(nil, nil), nil
	}

	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	n, err := buf.ReadFrom(io.LimitReader(body, limit+1))
	if err != nil {
		recycle(buf)
		return nil, err
	}
	if n > limit {
		recycle(buf)
		return nil, errEntityTooLarge
	}
	if n == 0 {
		recycle(buf)
		return request.NewPayload(nil, nil), nil
	}
	return request.NewPayload(buf.Bytes(), func([]byte) { recycle(buf) }), nil
}

func recycle(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBuffer {
		return
	}
	buf.Reset()
	bufferPool.Put(buf)
}
