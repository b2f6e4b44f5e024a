package server

import (
	"errors"
	"log/slog"
	"net"
	"time"
)

// gate is one accept loop. Gates of the portable transport share a
// listener; reuseport gates each own one.
type gate struct {
	id       int
	server   *Server
	listener net.Listener
	logger   *slog.Logger
}

func (g *gate) serve() {
	defer g.server.gates.Done()

	var delay time.Duration
	for {
		rwc, err := g.listener.Accept()
		if err != nil {
			if g.server.shuttingDown() || errors.Is(err, net.ErrClosed) {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			// Back off on resource exhaustion such as EMFILE.
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else if delay *= 2; delay > time.Second {
				delay = time.Second
			}
			g.logger.Warn("accept failed", "error", err, "retry_in", delay)
			time.Sleep(delay)
			continue
		}
		delay = 0

		c := g.server.track(rwc)
		if c == nil {
			_ = rwc.Close()
			continue
		}
		go c.serve()
	}
}
