// Hikari is an HTTP API gateway core.
//
// It accepts HTTP/1.x connections, resolves a rule for each request, runs
// the rule's filters and forwards the request to the downstream service
// the router filter selects.
//
// Usage:
//
//	# Start the gateway with a configuration file
//	hikari run --config gateway.yaml
//
//	# Override single keys
//	hikari run -D gateway.server.worker_threads=8 --set port=8080
//
//	# Print the resolved configuration
//	hikari config show --output yaml
//
//	# Check a rule file
//	hikari rules validate --file rules.yaml
//
//	# Show version information
//	hikari version
package main

import "os"

func main() {
	os.Exit(Execute())
}
