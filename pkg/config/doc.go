// Package config provides configuration management for the Hikari gateway.
//
// This package resolves one immutable configuration snapshot from built-in
// defaults, a YAML file, environment variables, runtime properties and
// command-line arguments. The snapshot is read at start-up only; there is
// no hot reload.
//
// # Configuration Loading
//
//	cfg, err := config.Load(config.Sources{
//	    File:       "gateway.yaml",
//	    Properties: []string{"gateway.server.worker_threads=8"},
//	    Args:       []string{"server.port=8080"},
//	})
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from the YAML file
//  3. Environment variables: GATEWAY_SERVER_PORT overrides server.port
//  4. Runtime properties: gateway.server.port=8080
//  5. Command-line arguments: server.port=8080 (or the alias port=8080)
//  6. Validation (fails fast if invalid)
//
// Every overridable key is declared in a static table (keys.go) that maps
// it to a typed parser. Unknown keys are ignored in the environment and
// property layers, where unrelated variables are common, and rejected on
// the command line.
//
// # Sizes
//
// Byte sizes accept human-readable values:
//
//	server:
//	  max_content_length: 64MiB
//	  max_header_bytes: 1MiB
//
// # Validation
//
// Validate collects every FieldError into a single ValidationError so a
// broken configuration is reported in one pass.
package config
