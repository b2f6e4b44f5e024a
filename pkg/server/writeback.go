package server

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"strconv"
	"strings"
	"time"

	"hikari-hq/gateway/pkg/proxy/response"
)

// framingHeaders are computed by the writer and never copied from the
// envelope.
var framingHeaders = map[string]bool{
	"Connection":        true,
	"Content-Length":    true,
	"Keep-Alive":        true,
	"Transfer-Encoding": true,
}

func bodyAllowed(status int) bool {
	return status >= 200 && status != http.StatusNoContent && status != http.StatusNotModified
}

// writeEnvelope serializes env as an HTTP/1.1 response: status line,
// headers, extra headers, framing, then the body. A body string set on the
// envelope wins over a streamed upstream body. The caller closes env.
func writeEnvelope(w *bufio.Writer, env *response.Envelope, keepAlive, headOnly bool, now time.Time) error {
	status := env.Status
	if status == 0 {
		status = http.StatusOK
	}
	text := http.StatusText(status)
	if text == "" {
		text = "status code " + strconv.Itoa(status)
	}
	if _, err := fmt.Fprintf(w, "HTTP/1.1 %03d %s\r\n", status, text); err != nil {
		return err
	}

	if err := env.Headers.WriteSubset(w, framingHeaders); err != nil {
		return err
	}
	if err := env.ExtraHeaders.WriteSubset(w, framingHeaders); err != nil {
		return err
	}
	if env.Headers.Get("Date") == "" && env.ExtraHeaders.Get("Date") == "" {
		w.WriteString("Date: " + now.UTC().Format(http.TimeFormat) + "\r\n")
	}

	var body io.Reader
	chunked := false
	switch {
	case !bodyAllowed(status):
	case env.Body == "" && env.Upstream != nil && env.Upstream.Body != nil:
		body = env.Upstream.Body
		if n := env.Upstream.ContentLength; n >= 0 {
			w.WriteString("Content-Length: " + strconv.FormatInt(n, 10) + "\r\n")
			body = io.LimitReader(body, n)
		} else {
			w.WriteString("Transfer-Encoding: chunked\r\n")
			chunked = true
		}
	default:
		w.WriteString("Content-Length: " + strconv.Itoa(len(env.Body)) + "\r\n")
		if len(env.Body) > 0 {
			body = strings.NewReader(env.Body)
		}
	}

	if keepAlive {
		w.WriteString("Connection: keep-alive\r\n")
	} else {
		w.WriteString("Connection: close\r\n")
	}
	if _, err := w.WriteString("\r\n"); err != nil {
		return err
	}

	if body != nil && !headOnly {
		if chunked {
			cw := httputil.NewChunkedWriter(w)
			if _, err := io.Copy(cw, body); err != nil {
				return err
			}
			if err := cw.Close(); err != nil {
				return err
			}
			if _, err := w.WriteString("\r\n"); err != nil {
				return err
			}
		} else if _, err := io.Copy(w, body); err != nil {
			return err
		}
	}
	return w.Flush()
}
