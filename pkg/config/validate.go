package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"

	"hikari-hq/gateway/pkg/rule"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.port").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// maxHeaderBytesLimit bounds server.max_header_bytes.
const maxHeaderBytesLimit = 10 << 20

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateApplication(&cfg.Application)...)
	errs = append(errs, validateDownstream(&cfg.Downstream)...)
	errs = append(errs, validateRules(&cfg.Rules)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.Port < 0 || cfg.Port > 65535 {
		errs = append(errs, FieldError{
			Field:   "server.port",
			Message: fmt.Sprintf("port %d out of range 0-65535", cfg.Port),
		})
	}
	if cfg.AcceptThreads < 1 {
		errs = append(errs, FieldError{
			Field:   "server.accept_threads",
			Message: "accept threads must be at least 1",
		})
	}
	if cfg.WorkerThreads < 1 {
		errs = append(errs, FieldError{
			Field:   "server.worker_threads",
			Message: "worker threads must be at least 1",
		})
	}
	if cfg.MaxContentLength <= 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_content_length",
			Message: "max content length must be positive",
		})
	}
	if cfg.MaxHeaderBytes <= 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must be positive",
		})
	}
	if cfg.MaxHeaderBytes > maxHeaderBytesLimit {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes exceeds reasonable limit (10MiB)",
		})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.idle_timeout",
			Message: "idle timeout must not be negative",
		})
	}
	if cfg.ReadHeaderTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_header_timeout",
			Message: "read header timeout must not be negative",
		})
	}
	if cfg.ShutdownTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "server.shutdown_timeout",
			Message: "shutdown timeout must be positive",
		})
	}

	switch cfg.Transport {
	case TransportAuto, TransportReusePort, TransportPortable:
	default:
		errs = append(errs, FieldError{
			Field:   "server.transport",
			Message: fmt.Sprintf("invalid transport %q: must be 'auto', 'reuseport', or 'portable'", cfg.Transport),
		})
	}

	return errs
}

func validateApplication(cfg *ApplicationConfig) []FieldError {
	var errs []FieldError

	if cfg.Name == "" {
		errs = append(errs, FieldError{
			Field:   "application.name",
			Message: "application name is required",
		})
	}
	if cfg.RegistryAddress != "" {
		if _, _, err := net.SplitHostPort(cfg.RegistryAddress); err != nil {
			errs = append(errs, FieldError{
				Field:   "application.registry_address",
				Message: fmt.Sprintf("invalid address %q: %v", cfg.RegistryAddress, err),
			})
		}
	}

	return errs
}

func validateDownstream(cfg *DownstreamConfig) []FieldError {
	var errs []FieldError

	if cfg.Timeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "downstream.timeout",
			Message: "downstream timeout must be positive",
		})
	}
	if cfg.MaxIdleConns < 0 {
		errs = append(errs, FieldError{
			Field:   "downstream.max_idle_conns",
			Message: "max idle connections must be non-negative",
		})
	}
	if cfg.IdleConnTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "downstream.idle_conn_timeout",
			Message: "idle connection timeout must not be negative",
		})
	}

	return errs
}

func validateRules(cfg *RulesConfig) []FieldError {
	var errs []FieldError

	switch cfg.Source {
	case RulesSourceMemory:
		seen := make(map[string]bool, len(cfg.Inline))
		for i, r := range cfg.Inline {
			field := fmt.Sprintf("rules.inline[%d]", i)
			if err := rule.Validate(r); err != nil {
				errs = append(errs, FieldError{Field: field, Message: err.Error()})
				continue
			}
			if seen[r.ID] {
				errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("duplicate rule id %q", r.ID)})
			}
			seen[r.ID] = true
		}
	case RulesSourceFile:
		if cfg.FilePath == "" {
			errs = append(errs, FieldError{
				Field:   "rules.file_path",
				Message: "file path is required when source is 'file'",
			})
		}
	case RulesSourceSQLite:
		if cfg.SQLite.Driver != rule.DriverPureGo && cfg.SQLite.Driver != rule.DriverCGo {
			errs = append(errs, FieldError{
				Field:   "rules.sqlite.driver",
				Message: fmt.Sprintf("invalid driver %q: must be %q or %q", cfg.SQLite.Driver, rule.DriverPureGo, rule.DriverCGo),
			})
		}
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "rules.sqlite.path",
				Message: "database path is required when source is 'sqlite'",
			})
		}
		if cfg.SQLite.BusyTimeout < 0 {
			errs = append(errs, FieldError{
				Field:   "rules.sqlite.busy_timeout",
				Message: "busy timeout must not be negative",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "rules.source",
			Message: fmt.Sprintf("invalid source %q: must be 'memory', 'file', or 'sqlite'", cfg.Source),
		})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	// Validate logging level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if cfg.Logging.Level == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: "logging level is required",
		})
	} else if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	// Validate logging format
	validFormats := map[string]bool{"json": true, "text": true}
	if cfg.Logging.Format == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: "logging format is required",
		})
	} else if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	errs = append(errs, validateTracing(&cfg.Tracing)...)

	if !cfg.Metrics.Enabled {
		return errs
	}

	if cfg.Metrics.Path == "" || !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with '/' when metrics are enabled",
		})
	}
	if cfg.Metrics.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.listen_address",
			Message: "metrics listen address is required when metrics are enabled",
		})
	}
	if cfg.Metrics.Namespace == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.namespace",
			Message: "metrics namespace is required when metrics are enabled",
		})
	}
	if cfg.Metrics.StatsSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Metrics.StatsSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.stats_schedule",
				Message: fmt.Sprintf("invalid cron schedule %q: %v", cfg.Metrics.StatsSchedule, err),
			})
		}
	}

	return errs
}

func validateTracing(cfg *TracingConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}

	var errs []FieldError
	if cfg.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "endpoint is required when tracing is enabled",
		})
	}
	if cfg.Timeout < 0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.timeout",
			Message: "timeout must not be negative",
		})
	}
	switch cfg.Sampler {
	case "always", "never":
	case "ratio":
		if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sample_ratio",
				Message: fmt.Sprintf("sample ratio %g out of range 0.0-1.0", cfg.SampleRatio),
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never', or 'ratio'", cfg.Sampler),
		})
	}
	return errs
}
