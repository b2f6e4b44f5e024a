package config

import (
	"runtime"
	"time"
)

// Default values for configuration fields.
const (
	// Server defaults
	DefaultPort              = 7001
	DefaultAcceptThreads     = 1
	DefaultMaxContentLength  = ByteSize(64 << 20) // 64MiB
	DefaultMaxHeaderBytes    = ByteSize(1 << 20)  // 1MiB
	DefaultIdleTimeout       = 60 * time.Second
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultShutdownTimeout   = 30 * time.Second
	DefaultTransport         = TransportAuto

	// Application defaults
	DefaultApplicationName = "hikari-api-gateway"
	DefaultEnv             = "dev"
	DefaultRegistryAddress = "127.0.0.1:7001"

	// Downstream defaults
	DefaultDownstreamTimeout         = 3 * time.Second
	DefaultDownstreamMaxIdleConns    = 100
	DefaultDownstreamIdleConnTimeout = 90 * time.Second

	// Rules defaults
	DefaultRulesSource      = RulesSourceMemory
	DefaultRulesSQLiteDrv   = "sqlite"
	DefaultRulesSQLitePath  = "data/rules.db"
	DefaultRulesBusyTimeout = 5 * time.Second

	// Telemetry defaults
	DefaultLoggingLevel         = "info"
	DefaultLoggingFormat        = "json"
	DefaultMetricsEnabled       = true
	DefaultMetricsListenAddress = "127.0.0.1:9090"
	DefaultPrometheusPath       = "/metrics"
	DefaultMetricsNamespace     = "gateway"
	DefaultStatsSchedule        = "@every 1m"
	DefaultTracingEndpoint      = "localhost:4317"
	DefaultTracingTimeout       = 10 * time.Second
	DefaultTracingSampler       = "always"
	DefaultTracingSampleRatio   = 1.0
)

// Transport modes.
const (
	TransportAuto      = "auto"
	TransportReusePort = "reuseport"
	TransportPortable  = "portable"
)

// Rule sources.
const (
	RulesSourceMemory = "memory"
	RulesSourceFile   = "file"
	RulesSourceSQLite = "sqlite"
)

// DefaultWorkerThreads returns the default worker group size.
func DefaultWorkerThreads() int {
	return runtime.NumCPU()
}

// Default returns a Config holding every default value.
func Default() *Config {
	cfg := &Config{
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{
				Enabled:       DefaultMetricsEnabled,
				StatsSchedule: DefaultStatsSchedule,
			},
			Tracing: TracingConfig{
				SampleRatio: DefaultTracingSampleRatio,
			},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
//
// Zero cannot be told apart from an explicit zero, so
// telemetry.metrics.enabled and telemetry.metrics.stats_schedule are only
// defaulted by Default, and a layered Load never re-applies defaults.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.AcceptThreads == 0 {
		cfg.Server.AcceptThreads = DefaultAcceptThreads
	}
	if cfg.Server.WorkerThreads == 0 {
		cfg.Server.WorkerThreads = DefaultWorkerThreads()
	}
	if cfg.Server.MaxContentLength == 0 {
		cfg.Server.MaxContentLength = DefaultMaxContentLength
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ReadHeaderTimeout == 0 {
		cfg.Server.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.Transport == "" {
		cfg.Server.Transport = DefaultTransport
	}

	// Application defaults
	if cfg.Application.Name == "" {
		cfg.Application.Name = DefaultApplicationName
	}
	if cfg.Application.Env == "" {
		cfg.Application.Env = DefaultEnv
	}
	if cfg.Application.RegistryAddress == "" {
		cfg.Application.RegistryAddress = DefaultRegistryAddress
	}

	// Downstream defaults
	if cfg.Downstream.Timeout == 0 {
		cfg.Downstream.Timeout = DefaultDownstreamTimeout
	}
	if cfg.Downstream.MaxIdleConns == 0 {
		cfg.Downstream.MaxIdleConns = DefaultDownstreamMaxIdleConns
	}
	if cfg.Downstream.IdleConnTimeout == 0 {
		cfg.Downstream.IdleConnTimeout = DefaultDownstreamIdleConnTimeout
	}

	// Rules defaults
	if cfg.Rules.Source == "" {
		cfg.Rules.Source = DefaultRulesSource
	}
	if cfg.Rules.SQLite.Driver == "" {
		cfg.Rules.SQLite.Driver = DefaultRulesSQLiteDrv
	}
	if cfg.Rules.SQLite.Path == "" {
		cfg.Rules.SQLite.Path = DefaultRulesSQLitePath
	}
	if cfg.Rules.SQLite.BusyTimeout == 0 {
		cfg.Rules.SQLite.BusyTimeout = DefaultRulesBusyTimeout
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.ListenAddress == "" {
		cfg.Telemetry.Metrics.ListenAddress = DefaultMetricsListenAddress
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultPrometheusPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
}
