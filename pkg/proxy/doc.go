// Package proxy defines the per-request lifecycle of the gateway.
//
// A Context is created by a Processor once the front-end has decoded and
// aggregated a full request. Filters read and rewrite it; the Processor
// writes the response back through the connection handle and releases the
// inbound payload.
//
// # Lifecycle
//
// Every context starts in StateRunning. The Processor moves it to
// StateWritten when it hands the envelope to the connection and to
// StateCompleted after the write. StateTerminated marks an aborted request,
// including one whose downstream call timed out, and can be entered from
// any state:
//
//	running ──> written ──> completed
//	   │           │            │
//	   └───────────┴────────────┴──> terminated
//
// The setters do not enforce this order. Whatever path finishes a request
// (success, error or timeout), it calls Release, and only the first call
// has an effect:
//
//	ctx := proxy.NewContext(proxy.Options{Request: d, Rule: r, Conn: conn, KeepAlive: true})
//	defer ctx.Release()
//
// # Attributes
//
// Filters pass data along the chain through string-keyed attributes.
// AttributeAs gives typed access and fails at the access site, naming the
// key, when an attribute is missing or holds another type:
//
//	upstream, err := proxy.AttributeAs[string](ctx, "router.upstream")
//	if err != nil {
//	    return err // *AttributeError, errors.Is(err, proxy.ErrAttributeMissing)
//	}
//
// # Rule resolution
//
// A RuleResolver selects the rule for a request. HeaderResolver reads the
// X-Rule-Id header, PathResolver uses the first path segment and FirstOf
// composes them. New protocols add a resolver, not a new context type.
//
// # Errors
//
// CodeOf maps processing errors to response codes and HandleError wraps
// the result in an error envelope:
//
//	{"status":404,"code":10001,"message":"rule not found"}
//
// # Thread Safety
//
// Attribute, failure and response access is synchronized. Release and the
// state accessors are atomic. Completion callbacks run on the goroutine
// that calls RunCompletionCallbacks.
package proxy
