// Package server is the HTTP/1.1 front-end of the gateway.
//
// A Server binds one or more accept gates on the configured port, decodes
// each inbound request, aggregates its body up to the configured limit and
// hands the result to a proxy.Processor together with a connection handle.
// Requests on one connection are served strictly in order: the next request
// is not read until the previous one has been written back or the
// connection has been closed.
//
// # Transports
//
// With the reuseport transport every gate owns its own listening socket
// bound with SO_REUSEPORT, so the kernel balances new connections across
// gates. The portable transport shares a single listener between all gates.
// The auto setting checks the platform once and picks reuseport where it is
// available.
//
// # Limits
//
// A body larger than max_content_length is answered with 413, an oversized
// request head with 431 and an unparsable request with 400. Each rejection
// closes the connection. Connections on which neither direction has moved
// for idle_timeout, and which have no request in flight, are closed.
//
// # Lifecycle
//
//	srv := server.New(&cfg.Server, processor, server.WithObserver(collector))
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Shutdown(context.Background())
//
// Start returns bind errors synchronously. Shutdown stops accepting, lets
// in-flight requests finish until its context expires and is safe to call
// more than once.
package server
