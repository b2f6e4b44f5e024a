package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"hikari-hq/gateway/pkg/config"
)

// ErrTransportUnavailable is returned when the reuseport transport is
// requested on a platform that cannot provide it.
var ErrTransportUnavailable = errors.New("server: reuseport transport unavailable on this platform")

var supportsReusePort = sync.OnceValue(reusePortAvailable)

// selectTransport resolves the configured transport mode to the one that
// will actually be used.
func selectTransport(mode string) (string, error) {
	switch mode {
	case config.TransportPortable:
		return config.TransportPortable, nil
	case config.TransportReusePort:
		if !supportsReusePort() {
			return "", ErrTransportUnavailable
		}
		return config.TransportReusePort, nil
	default:
		if supportsReusePort() {
			return config.TransportReusePort, nil
		}
		return config.TransportPortable, nil
	}
}

// bindListeners opens the listening sockets for n gates. The reuseport
// transport returns n sockets on the same address; the portable transport
// returns a single socket shared by every gate.
func bindListeners(ctx context.Context, transport, addr string, n int) ([]net.Listener, error) {
	if transport != config.TransportReusePort {
		ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("server: listen %s: %w", addr, err)
		}
		return []net.Listener{ln}, nil
	}

	lc := net.ListenConfig{Control: reusePortControl}
	listeners := make([]net.Listener, 0, n)
	for i := 0; i < n; i++ {
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			closeListeners(listeners)
			return nil, fmt.Errorf("server: listen %s (gate %d): %w", addr, i, err)
		}
		listeners = append(listeners, ln)
		if i == 0 {
			// An ephemeral port must be shared by the remaining gates.
			if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
				host, _, _ := net.SplitHostPort(addr)
				addr = net.JoinHostPort(host, strconv.Itoa(tcp.Port))
			}
		}
	}
	return listeners, nil
}

func closeListeners(listeners []net.Listener) {
	for _, ln := range listeners {
		_ = ln.Close()
	}
}
