package processor

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	// HeaderUniqueID carries a client-supplied request identifier.
	HeaderUniqueID = "X-Unique-Id"

	// HeaderForwardedFor lists the client and intermediate proxies.
	HeaderForwardedFor = "X-Forwarded-For"
)

// uniqueID returns the identifier supplied by the client, or a new UUID.
func uniqueID(h http.Header) string {
	if id := strings.TrimSpace(h.Get(HeaderUniqueID)); id != "" {
		return id
	}
	return uuid.NewString()
}

// clientIP returns the first X-Forwarded-For entry, falling back to the
// host part of the connection's remote address.
func clientIP(h http.Header, remote net.Addr) string {
	if xff := h.Get(HeaderForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if remote == nil {
		return ""
	}
	if tcp, ok := remote.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(remote.String())
	if err != nil {
		return remote.String()
	}
	return host
}
