package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix is the prefix of environment variable overrides:
// GATEWAY_SERVER_PORT overrides server.port.
const EnvPrefix = "GATEWAY_"

// PropertyPrefix is the prefix of runtime property overrides:
// -D gateway.server.port=8080 overrides server.port.
const PropertyPrefix = "gateway."

// setter parses a raw value and stores it in cfg.
type setter func(cfg *Config, raw string) error

func stringKey(field func(*Config) *string) setter {
	return func(cfg *Config, raw string) error {
		*field(cfg) = raw
		return nil
	}
}

func intKey(field func(*Config) *int) setter {
	return func(cfg *Config, raw string) error {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid integer %q", raw)
		}
		*field(cfg) = n
		return nil
	}
}

func boolKey(field func(*Config) *bool) setter {
	return func(cfg *Config, raw string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid boolean %q", raw)
		}
		*field(cfg) = b
		return nil
	}
}

func floatKey(field func(*Config) *float64) setter {
	return func(cfg *Config, raw string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", raw)
		}
		*field(cfg) = f
		return nil
	}
}

func durationKey(field func(*Config) *time.Duration) setter {
	return func(cfg *Config, raw string) error {
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid duration %q", raw)
		}
		*field(cfg) = d
		return nil
	}
}

func sizeKey(field func(*Config) *ByteSize) setter {
	return func(cfg *Config, raw string) error {
		n, err := ParseByteSize(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		*field(cfg) = n
		return nil
	}
}

// keys maps every overridable key to its typed setter. Aliases share the
// setter of their canonical key.
var keys = map[string]setter{
	"server.port":                intKey(func(c *Config) *int { return &c.Server.Port }),
	"server.listen_host":         stringKey(func(c *Config) *string { return &c.Server.ListenHost }),
	"server.accept_threads":      intKey(func(c *Config) *int { return &c.Server.AcceptThreads }),
	"server.worker_threads":      intKey(func(c *Config) *int { return &c.Server.WorkerThreads }),
	"server.max_content_length":  sizeKey(func(c *Config) *ByteSize { return &c.Server.MaxContentLength }),
	"server.max_header_bytes":    sizeKey(func(c *Config) *ByteSize { return &c.Server.MaxHeaderBytes }),
	"server.idle_timeout":        durationKey(func(c *Config) *time.Duration { return &c.Server.IdleTimeout }),
	"server.read_header_timeout": durationKey(func(c *Config) *time.Duration { return &c.Server.ReadHeaderTimeout }),
	"server.shutdown_timeout":    durationKey(func(c *Config) *time.Duration { return &c.Server.ShutdownTimeout }),
	"server.transport":           stringKey(func(c *Config) *string { return &c.Server.Transport }),

	"application.name":             stringKey(func(c *Config) *string { return &c.Application.Name }),
	"application.env":              stringKey(func(c *Config) *string { return &c.Application.Env }),
	"application.registry_address": stringKey(func(c *Config) *string { return &c.Application.RegistryAddress }),

	"downstream.timeout":           durationKey(func(c *Config) *time.Duration { return &c.Downstream.Timeout }),
	"downstream.max_idle_conns":    intKey(func(c *Config) *int { return &c.Downstream.MaxIdleConns }),
	"downstream.idle_conn_timeout": durationKey(func(c *Config) *time.Duration { return &c.Downstream.IdleConnTimeout }),

	"rules.source":              stringKey(func(c *Config) *string { return &c.Rules.Source }),
	"rules.file_path":           stringKey(func(c *Config) *string { return &c.Rules.FilePath }),
	"rules.sqlite.driver":       stringKey(func(c *Config) *string { return &c.Rules.SQLite.Driver }),
	"rules.sqlite.path":         stringKey(func(c *Config) *string { return &c.Rules.SQLite.Path }),
	"rules.sqlite.busy_timeout": durationKey(func(c *Config) *time.Duration { return &c.Rules.SQLite.BusyTimeout }),

	"telemetry.logging.level":          stringKey(func(c *Config) *string { return &c.Telemetry.Logging.Level }),
	"telemetry.logging.format":         stringKey(func(c *Config) *string { return &c.Telemetry.Logging.Format }),
	"telemetry.logging.add_source":     boolKey(func(c *Config) *bool { return &c.Telemetry.Logging.AddSource }),
	"telemetry.metrics.enabled":        boolKey(func(c *Config) *bool { return &c.Telemetry.Metrics.Enabled }),
	"telemetry.metrics.listen_address": stringKey(func(c *Config) *string { return &c.Telemetry.Metrics.ListenAddress }),
	"telemetry.metrics.path":           stringKey(func(c *Config) *string { return &c.Telemetry.Metrics.Path }),
	"telemetry.metrics.namespace":      stringKey(func(c *Config) *string { return &c.Telemetry.Metrics.Namespace }),
	"telemetry.metrics.stats_schedule": stringKey(func(c *Config) *string { return &c.Telemetry.Metrics.StatsSchedule }),
	"telemetry.tracing.enabled":        boolKey(func(c *Config) *bool { return &c.Telemetry.Tracing.Enabled }),
	"telemetry.tracing.endpoint":       stringKey(func(c *Config) *string { return &c.Telemetry.Tracing.Endpoint }),
	"telemetry.tracing.insecure":       boolKey(func(c *Config) *bool { return &c.Telemetry.Tracing.Insecure }),
	"telemetry.tracing.timeout":        durationKey(func(c *Config) *time.Duration { return &c.Telemetry.Tracing.Timeout }),
	"telemetry.tracing.sampler":        stringKey(func(c *Config) *string { return &c.Telemetry.Tracing.Sampler }),
	"telemetry.tracing.sample_ratio":   floatKey(func(c *Config) *float64 { return &c.Telemetry.Tracing.SampleRatio }),
}

// aliases are the short names kept from the flat configuration layout.
var aliases = map[string]string{
	"port":             "server.port",
	"accept_threads":   "server.accept_threads",
	"worker_threads":   "server.worker_threads",
	"max_content_len":  "server.max_content_length",
	"application_name": "application.name",
	"env":              "application.env",
	"registry_address": "application.registry_address",
}

// Keys returns the canonical override keys in sorted order.
func Keys() []string {
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// lookupKey resolves a canonical key or alias. Matching is case-insensitive.
func lookupKey(name string) (string, setter, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	set, ok := keys[name]
	return name, set, ok
}

// envIndex maps environment variable names to canonical keys.
var envIndex = func() map[string]string {
	idx := make(map[string]string, len(keys)+len(aliases))
	for k := range keys {
		idx[EnvName(k)] = k
	}
	for alias, k := range aliases {
		idx[EnvName(alias)] = k
	}
	return idx
}()

// Set applies a single key=value override to cfg.
func Set(cfg *Config, key, value string) error {
	canonical, set, ok := lookupKey(key)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	if err := set(cfg, value); err != nil {
		return FieldError{Field: canonical, Message: err.Error()}
	}
	return nil
}

// splitPair splits "key=value".
func splitPair(pair string) (string, string, bool) {
	k, v, ok := strings.Cut(pair, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return "", "", false
	}
	return strings.TrimSpace(k), v, true
}
