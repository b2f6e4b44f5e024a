package proxy

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"hikari-hq/gateway/pkg/proxy/request"
	"hikari-hq/gateway/pkg/proxy/response"
	"hikari-hq/gateway/pkg/rule"
)

// ProtocolHTTP is the protocol tag of plain HTTP requests.
const ProtocolHTTP = "http"

// State is the lifecycle state of a request context.
type State int32

const (
	// StateRunning is the initial state while filters and the downstream
	// call execute.
	StateRunning State = 0

	// StateWritten means the response has been handed to the connection.
	StateWritten State = 1

	// StateCompleted means the write finished and completion work may run.
	StateCompleted State = 2

	// StateTerminated marks an aborted request. It is reachable from any state.
	StateTerminated State = -1
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateWritten:
		return "written"
	case StateCompleted:
		return "completed"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Options configure a new Context. Protocol, Conn and KeepAlive are fixed
// for the lifetime of the context.
type Options struct {
	Protocol  string
	Request   *request.Descriptor
	Rule      *rule.Rule
	Conn      ConnHandle
	KeepAlive bool
}

// Context is the in-flight record of one request/response cycle.
//
// State transitions are plain setters; no transition table is enforced and
// the owner must call SetWritten once per request. Release is safe to call
// from any number of goroutines and takes effect exactly once.
type Context struct {
	protocol  string
	request   *request.Descriptor
	rule      *rule.Rule
	conn      ConnHandle
	keepAlive bool

	state    atomic.Int32
	released atomic.Bool

	attrMu sync.RWMutex
	attrs  map[string]any

	mu       sync.Mutex
	failure  error
	response *response.Envelope

	cbMu      sync.Mutex
	callbacks []func(*Context)

	logger *slog.Logger
}

// NewContext returns a running context bound to a request descriptor.
func NewContext(opts Options) *Context {
	protocol := opts.Protocol
	if protocol == "" {
		protocol = ProtocolHTTP
	}
	c := &Context{
		protocol:  protocol,
		request:   opts.Request,
		rule:      opts.Rule,
		conn:      opts.Conn,
		keepAlive: opts.KeepAlive,
		attrs:     make(map[string]any),
	}
	c.logger = slog.Default().With("component", "proxy.context", "request_id", c.UniqueID())
	return c
}

// Protocol returns the protocol tag.
func (c *Context) Protocol() string { return c.protocol }

// Request returns the request descriptor.
func (c *Context) Request() *request.Descriptor { return c.request }

// Rule returns the bound rule, or nil when resolution did not happen.
func (c *Context) Rule() *rule.Rule { return c.rule }

// Conn returns the connection handle that delivered the request.
func (c *Context) Conn() ConnHandle { return c.conn }

// KeepAlive reports whether the connection stays open after write-back.
func (c *Context) KeepAlive() bool { return c.keepAlive }

// UniqueID returns the request identifier.
func (c *Context) UniqueID() string {
	if c.request == nil {
		return ""
	}
	return c.request.UniqueID()
}

// FilterConfig looks up a filter configuration of the bound rule. The id
// match is case-insensitive.
func (c *Context) FilterConfig(id string) (rule.FilterConfig, error) {
	if c.rule == nil {
		return rule.FilterConfig{}, fmt.Errorf("no rule bound to request %s: %w", c.UniqueID(), rule.ErrRuleNotFound)
	}
	fc, ok := c.rule.FilterConfig(id)
	if !ok {
		return rule.FilterConfig{}, fmt.Errorf("rule %s, filter %s: %w", c.rule.ID, id, rule.ErrFilterConfigNotFound)
	}
	return fc, nil
}

// State returns the current lifecycle state.
func (c *Context) State() State { return State(c.state.Load()) }

// Running reports whether the context is in StateRunning.
func (c *Context) Running() bool { return c.State() == StateRunning }

// SetWritten moves the context to StateWritten.
func (c *Context) SetWritten() { c.state.Store(int32(StateWritten)) }

// Written reports whether the context is in StateWritten.
func (c *Context) Written() bool { return c.State() == StateWritten }

// SetCompleted moves the context to StateCompleted.
func (c *Context) SetCompleted() { c.state.Store(int32(StateCompleted)) }

// Completed reports whether the context is in StateCompleted.
func (c *Context) Completed() bool { return c.State() == StateCompleted }

// Terminate moves the context to StateTerminated.
func (c *Context) Terminate() { c.state.Store(int32(StateTerminated)) }

// Terminated reports whether the context is in StateTerminated.
func (c *Context) Terminated() bool { return c.State() == StateTerminated }

// SetFailure records a processing failure. Later calls overwrite earlier
// ones; check Failure first to keep the first error.
func (c *Context) SetFailure(err error) {
	c.mu.Lock()
	c.failure = err
	c.mu.Unlock()
}

// Failure returns the recorded failure, if any.
func (c *Context) Failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failure
}

// SetResponse replaces the response envelope.
func (c *Context) SetResponse(env *response.Envelope) {
	c.mu.Lock()
	c.response = env
	c.mu.Unlock()
}

// Response returns the response envelope, or nil if none was set.
func (c *Context) Response() *response.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.response
}

// Release hands the inbound payload back to the transport. Only the first
// call has an effect; it reports whether this call performed the release.
func (c *Context) Release() bool {
	if !c.released.CompareAndSwap(false, true) {
		return false
	}
	if c.request != nil {
		c.request.Payload().Release()
	}
	return true
}

// Released reports whether Release has run.
func (c *Context) Released() bool { return c.released.Load() }

// AddCompletionCallback registers fn to run when the request completes.
func (c *Context) AddCompletionCallback(fn func(*Context)) {
	if fn == nil {
		return
	}
	c.cbMu.Lock()
	c.callbacks = append(c.callbacks, fn)
	c.cbMu.Unlock()
}

// RunCompletionCallbacks runs the registered callbacks in registration
// order on the calling goroutine. A panicking callback is logged and the
// remaining callbacks still run.
func (c *Context) RunCompletionCallbacks() {
	c.cbMu.Lock()
	callbacks := make([]func(*Context), len(c.callbacks))
	copy(callbacks, c.callbacks)
	c.cbMu.Unlock()

	for i, fn := range callbacks {
		c.runCallback(i, fn)
	}
}

func (c *Context) runCallback(index int, fn func(*Context)) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("completion callback panicked",
				"index", index,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	fn(c)
}
