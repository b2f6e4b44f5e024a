package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"hikari-hq/gateway/pkg/config"
	"hikari-hq/gateway/pkg/proxy"
)

var (
	// ErrServerClosed is returned by Start after Shutdown.
	ErrServerClosed = errors.New("server: closed")

	// ErrServerStarted is returned by a second call to Start.
	ErrServerStarted = errors.New("server: already started")

	errNotListening = errors.New("server: not listening")
)

// shutdownPollInterval is how often Shutdown checks for drained connections.
const shutdownPollInterval = 10 * time.Millisecond

// Option configures a Server.
type Option func(*Server)

// WithObserver reports connection events to o.
func WithObserver(o Observer) Option {
	return func(s *Server) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithLogger sets the logger used for connection events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server accepts HTTP/1.1 connections and feeds decoded requests to a
// proxy.Processor.
type Server struct {
	cfg       *config.ServerConfig
	processor proxy.Processor
	observer  Observer
	logger    *slog.Logger

	transport string
	listeners []net.Listener
	workers   *workerGroup
	gates     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	started  bool
	conns    map[*conn]struct{}
	nextID   uint64
	closing  atomic.Bool
	stopOnce sync.Once
	stopErr  error
	stopped  chan struct{}
}

// New creates a Server. It does not bind until Start is called.
func New(cfg *config.ServerConfig, p proxy.Processor, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg,
		processor: p,
		observer:  nopObserver{},
		logger:    slog.Default(),
		workers:   newWorkerGroup(cfg.WorkerThreads),
		ctx:       ctx,
		cancel:    cancel,
		conns:     make(map[*conn]struct{}),
		stopped:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")
	return s
}

// Start binds the accept gates and begins serving in the background.
// Bind failures are returned.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing.Load() {
		return ErrServerClosed
	}
	if s.started {
		return ErrServerStarted
	}

	transport, err := selectTransport(s.cfg.Transport)
	if err != nil {
		return err
	}
	gates := s.cfg.AcceptThreads
	if gates < 1 {
		gates = 1
	}
	listeners, err := bindListeners(s.ctx, transport, s.cfg.ListenAddress(), gates)
	if err != nil {
		return err
	}

	s.transport = transport
	s.listeners = listeners
	s.started = true

	for i := 0; i < gates; i++ {
		ln := listeners[0]
		if len(listeners) > 1 {
			ln = listeners[i]
		}
		g := &gate{id: i, server: s, listener: ln, logger: s.logger.With("gate", i)}
		s.gates.Add(1)
		go g.serve()
	}

	s.logger.Info("server listening",
		"address", listeners[0].Addr().String(),
		"transport", transport,
		"accept_threads", gates,
		"worker_threads", cap(s.workers.slots),
	)
	return nil
}

// Run starts the server and blocks until ctx is cancelled or Shutdown is
// called. On cancellation it shuts down within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case <-s.stopped:
		return s.stopErr
	}
}

// Shutdown stops accepting, closes idle connections and waits for active
// ones to finish. When ctx expires the remaining connections are closed and
// ctx's error is returned. Calls after the first wait for and return the
// first call's result.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.closing.Store(true)
		s.stopErr = s.shutdown(ctx)
		close(s.stopped)
	})
	<-s.stopped
	return s.stopErr
}

func (s *Server) shutdown(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	listeners := s.listeners
	s.mu.Unlock()

	if !started {
		s.cancel()
		return nil
	}

	s.logger.Info("server shutting down")
	closeListeners(listeners)
	s.gates.Wait()

	ticker := time.NewTicker(shutdownPollInterval)
	defer ticker.Stop()
	for {
		if s.closeIdleConns() {
			s.cancel()
			s.logger.Info("server stopped")
			return nil
		}
		select {
		case <-ctx.Done():
			s.cancel()
			s.closeAllConns()
			s.logger.Warn("server shutdown timed out, connections closed")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// closeIdleConns closes connections waiting for their next request and
// reports whether none remain.
func (s *Server) closeIdleConns() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		if c.state.Load() == stateIdle {
			_ = c.close()
		}
	}
	return len(s.conns) == 0
}

func (s *Server) closeAllConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.close()
	}
}

func (s *Server) shuttingDown() bool {
	return s.closing.Load()
}

func (s *Server) track(rwc net.Conn) *conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return nil
	}
	s.nextID++
	c := newConn(s, s.nextID, rwc)
	s.conns[c] = struct{}{}
	s.observer.ConnectionOpened()
	c.logger.Debug("connection registered")
	return c
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[c]; ok {
		delete(s.conns, c)
		s.observer.ConnectionClosed()
		c.logger.Debug("connection unregistered")
	}
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.listeners) == 0 {
		return nil
	}
	return s.listeners[0].Addr()
}

// Transport returns the transport chosen by Start.
func (s *Server) Transport() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

// Listening reports whether the server is accepting connections.
func (s *Server) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.closing.Load()
}

// ActiveConnections returns the number of open client connections.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Check is a readiness check that fails unless the server is accepting.
func (s *Server) Check(context.Context) error {
	if !s.Listening() {
		return errNotListening
	}
	return nil
}
