// Package health provides liveness and readiness probes for the gateway's
// admin listener.
//
// Components register checks by name; the gateway registers "listener"
// (the front-end is bound and accepting) and "rules" (the rule store
// answers a lookup).
//
//	checker := health.New(2 * time.Second)
//	checker.Register("rules", func(ctx context.Context) error {
//	    _, err := store.List(ctx)
//	    return err
//	})
//	health.Mount(mux, checker, health.VersionInfo{Version: version})
//
// # Endpoints
//
//   - /health/live: always 200 while the process runs
//   - /health/ready: 200 when every check passes, 503 otherwise
//   - /version: build information
package health
