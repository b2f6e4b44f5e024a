package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/trace"

	"hikari-hq/gateway/pkg/config"
	"hikari-hq/gateway/pkg/proxy"
	"hikari-hq/gateway/pkg/proxy/request"
	"hikari-hq/gateway/pkg/proxy/response"
	"hikari-hq/gateway/pkg/rule"
	"hikari-hq/gateway/pkg/telemetry/logging"
	"hikari-hq/gateway/pkg/telemetry/metrics"
	"hikari-hq/gateway/pkg/telemetry/tracing"
)

// DefaultTimeout bounds a downstream call when neither the rule nor the
// configuration sets a timeout.
const DefaultTimeout = 3 * time.Second

// Options configure a Processor.
type Options struct {
	// Resolver selects the rule of each request. Required.
	Resolver proxy.RuleResolver

	// Filters make up the filter chain. Nil installs the router and
	// header filters.
	Filters []Filter

	// Client performs downstream calls. Nil builds one from Downstream.
	Client *http.Client

	// Downstream configures the default client and timeout.
	Downstream config.DownstreamConfig

	// Metrics records request outcomes. Nil disables recording.
	Metrics *metrics.Collector

	// Tracer opens a span per request. Nil disables tracing.
	Tracer *tracing.Tracer

	// Logger is the base logger. Nil uses slog.Default.
	Logger *slog.Logger
}

// Processor is the default proxy.Processor.
type Processor struct {
	resolver proxy.RuleResolver
	chain    *Chain
	client   *http.Client
	timeout  time.Duration
	metrics  *metrics.Collector
	tracer   *tracing.Tracer
	logger   *slog.Logger
	redactor *logging.Redactor
}

// New builds a Processor.
func New(opts Options) (*Processor, error) {
	if opts.Resolver == nil {
		return nil, errors.New("processor: resolver is required")
	}

	filters := opts.Filters
	if filters == nil {
		filters = []Filter{NewRouterFilter(), NewHeaderFilter()}
	}
	chain, err := NewChain(filters...)
	if err != nil {
		return nil, fmt.Errorf("processor: %w", err)
	}

	client := opts.Client
	if client == nil {
		client = NewHTTPClient(opts.Downstream)
	}
	timeout := opts.Downstream.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = tracing.Disabled()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Processor{
		resolver: opts.Resolver,
		chain:    chain,
		client:   client,
		timeout:  timeout,
		metrics:  opts.Metrics,
		tracer:   tracer,
		logger:   logger.With("component", "processor"),
		redactor: logging.NewRedactor(),
	}, nil
}

// NewHTTPClient returns a client for downstream calls. Redirects are
// passed back to the caller instead of being followed.
func NewHTTPClient(cfg config.DownstreamConfig) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.MaxIdleConns > 0 {
		transport.MaxIdleConns = cfg.MaxIdleConns
		transport.MaxIdleConnsPerHost = cfg.MaxIdleConns
	}
	if cfg.IdleConnTimeout > 0 {
		transport.IdleConnTimeout = cfg.IdleConnTimeout
	}
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Process handles the request on its own goroutine and returns at once.
func (p *Processor) Process(w *proxy.RequestWrapper, conn proxy.ConnHandle) {
	go p.handle(w, conn)
}

// Handle processes the request on the calling goroutine and returns after
// the write-back.
func (p *Processor) Handle(w *proxy.RequestWrapper, conn proxy.ConnHandle) {
	p.handle(w, conn)
}

func (p *Processor) handle(w *proxy.RequestWrapper, conn proxy.ConnHandle) {
	start := time.Now()
	req := w.Request

	d, err := p.describe(w, conn)
	if err != nil {
		w.Payload.Release()
		p.logger.Warn("rejecting undecodable request", "uri", req.RequestURI, "error", err)
		env := proxy.HandleError(fmt.Errorf("%w: %v", proxy.ErrBadRequest, err))
		_ = conn.WriteBack(env, w.KeepAlive)
		p.metrics.RecordRequest("", strconv.Itoa(response.BadRequest.ID), env.Status, time.Since(start))
		return
	}

	ctx := logging.WithRequestID(context.Background(), d.UniqueID())
	ctx = logging.WithClientIP(ctx, d.ClientIP())
	ctx, span := p.tracer.StartServer(ctx, req.Header, d.Method(), d.Path())
	defer span.End()
	tracing.SetRequestAttributes(span, d.UniqueID(), d.ClientIP())
	p.logReceived(ctx, d)

	r, resolveErr := p.resolve(ctx, d)
	pc := proxy.NewContext(proxy.Options{
		Protocol:  protocolOf(r),
		Request:   d,
		Rule:      r,
		Conn:      conn,
		KeepAlive: w.KeepAlive,
	})
	defer pc.Release()
	if r != nil {
		ctx = logging.WithRuleID(ctx, r.ID)
		tracing.SetRuleAttributes(span, r.ID)
	}

	defer func() {
		if rec := recover(); rec != nil {
			logging.FromContext(ctx, p.logger).Error("panic while processing request",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			if pc.Running() {
				p.fail(pc, fmt.Errorf("panic: %v", rec))
				p.complete(ctx, pc, span, start)
			} else {
				pc.Terminate()
			}
		}
	}()

	switch {
	case resolveErr != nil:
		p.fail(pc, resolveErr)
	default:
		if err := p.chain.Run(pc); err != nil {
			var fe *proxy.FilterError
			if errors.As(err, &fe) {
				p.metrics.RecordFilterError(fe.FilterID)
			}
			p.fail(pc, err)
			break
		}
		env, err := p.forward(ctx, pc, span)
		if err != nil {
			p.fail(pc, err)
			break
		}
		pc.SetResponse(env)
	}

	p.complete(ctx, pc, span, start)
}

// describe builds the request descriptor from the aggregated request.
func (p *Processor) describe(w *proxy.RequestWrapper, conn proxy.ConnHandle) (*request.Descriptor, error) {
	req := w.Request
	contentType := req.Header.Get("Content-Type")
	uri := req.RequestURI
	if uri == "" {
		uri = req.URL.RequestURI()
	}
	return request.New(request.Params{
		UniqueID:    uniqueID(req.Header),
		Charset:     request.CharsetOf(contentType),
		ClientIP:    clientIP(req.Header, conn.RemoteAddr()),
		Host:        req.Host,
		URI:         uri,
		Method:      req.Method,
		ContentType: contentType,
		Headers:     req.Header,
		Payload:     w.Payload,
	})
}

// resolve runs the rule resolver. A panic is returned as an error so the
// request still gets a context, a write-back and a release.
func (p *Processor) resolve(ctx context.Context, d *request.Descriptor) (r *rule.Rule, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.FromContext(ctx, p.logger).Error("panic while resolving rule",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			r, err = nil, fmt.Errorf("rule resolver panic: %v", rec)
		}
	}()
	return p.resolver.ResolveRule(ctx, d)
}

// logReceived logs the inbound request at debug level with credentials masked.
func (p *Processor) logReceived(ctx context.Context, d *request.Descriptor) {
	logger := logging.FromContext(ctx, p.logger)
	if !logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	logger.Debug("request received",
		"method", d.Method(),
		"uri", p.redactor.RedactString(d.URI()),
		"headers", p.redactor.RedactHeader(d.Headers()),
	)
}

// forward performs the downstream call described by the context. The
// returned envelope streams the upstream body; closing it ends the call.
func (p *Processor) forward(ctx context.Context, pc *proxy.Context, span trace.Span) (*response.Envelope, error) {
	out, err := pc.Request().Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build outbound request: %w", err)
	}
	tracing.SetUpstreamAttributes(span, out.URL)

	timeout := out.Timeout
	if timeout <= 0 {
		timeout = p.timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)

	req, err := out.NewHTTPRequest(callCtx)
	if err != nil {
		cancel()
		return nil, err
	}
	tracing.Inject(callCtx, req.Header)

	ruleID := ruleIDOf(pc)
	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		cancel()
		derr := &proxy.DownstreamError{URL: out.URL, Err: err}
		kind := "connect"
		if derr.Timeout() {
			kind = "timeout"
		}
		p.metrics.RecordDownstream(ruleID, time.Since(start), kind)
		return nil, derr
	}
	p.metrics.RecordDownstream(ruleID, time.Since(start), "")

	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	env := response.FromUpstream(resp)
	env.CopyUpstreamHeaders()
	return env, nil
}

// fail records err on the context and sets the matching error envelope.
func (p *Processor) fail(pc *proxy.Context, err error) {
	pc.SetFailure(err)
	pc.SetResponse(proxy.HandleError(err))
}

// complete writes the response back and runs completion callbacks.
func (p *Processor) complete(ctx context.Context, pc *proxy.Context, span trace.Span, start time.Time) {
	env := pc.Response()
	if env == nil {
		env = proxy.HandleError(errors.New("no response produced"))
		pc.SetResponse(env)
	}
	status := env.Status
	failure := pc.Failure()

	pc.SetWritten()
	switch err := pc.Conn().WriteBack(env, pc.KeepAlive()); {
	case err != nil:
		pc.Terminate()
		logging.FromContext(ctx, p.logger).Warn("write back failed", "error", err)
	case timedOut(failure):
		pc.Terminate()
	default:
		pc.SetCompleted()
	}
	pc.RunCompletionCallbacks()

	elapsed := time.Since(start)
	code := proxy.CodeOf(failure)
	p.metrics.RecordRequest(ruleIDOf(pc), strconv.Itoa(code.ID), status, elapsed)
	tracing.SetHTTPStatus(span, status)
	if failure != nil {
		tracing.SetError(span, failure)
	}

	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	}
	attrs := []any{
		"method", pc.Request().Method(),
		"path", pc.Request().Path(),
		"status", status,
		"latency_ms", elapsed.Milliseconds(),
		"state", pc.State().String(),
	}
	if failure != nil {
		attrs = append(attrs, "error", failure.Error())
	}
	// Context fields are already attached by FromContext.
	logging.FromContext(ctx, p.logger).Log(context.Background(), level, "request completed", attrs...)
}

// timedOut reports whether err is a downstream call that hit its deadline.
func timedOut(err error) bool {
	var derr *proxy.DownstreamError
	return errors.As(err, &derr) && derr.Timeout()
}

func protocolOf(r *rule.Rule) string {
	if r == nil || r.Protocol == "" {
		return proxy.ProtocolHTTP
	}
	return r.Protocol
}

func ruleIDOf(pc *proxy.Context) string {
	if r := pc.Rule(); r != nil {
		return r.ID
	}
	return ""
}

// cancelBody releases the call context once the upstream body is closed.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
