package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"hikari-hq/gateway/pkg/rule"
)

// Config is the root configuration structure for the Hikari gateway.
// A loaded Config is a snapshot: it is read at start-up and never changes
// for the lifetime of the process.
type Config struct {
	// Server contains the connection front-end configuration including the
	// listening port, thread group sizes and size limits.
	Server ServerConfig `yaml:"server"`

	// Application identifies this gateway instance.
	Application ApplicationConfig `yaml:"application"`

	// Downstream contains the HTTP client settings used for proxied calls.
	Downstream DownstreamConfig `yaml:"downstream"`

	// Rules selects where routing rules are loaded from.
	Rules RulesConfig `yaml:"rules"`

	// Telemetry contains logging, metrics and tracing configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the connection front-end.
type ServerConfig struct {
	// Port is the TCP port to listen on. Zero picks an ephemeral port.
	// Default: 7001
	Port int `yaml:"port"`

	// ListenHost is the interface to bind. Empty binds all interfaces.
	// Default: ""
	ListenHost string `yaml:"listen_host"`

	// AcceptThreads is the size of the accept group. With the reuseport
	// transport each member owns its own listening socket.
	// Default: 1
	AcceptThreads int `yaml:"accept_threads"`

	// WorkerThreads is the size of the worker group, the number of requests
	// processed concurrently.
	// Default: number of CPUs
	WorkerThreads int `yaml:"worker_threads"`

	// MaxContentLength is the largest aggregated request body accepted.
	// Larger requests are rejected with 413. Accepts sizes like "64MiB".
	// Default: 64MiB
	MaxContentLength ByteSize `yaml:"max_content_length"`

	// MaxHeaderBytes bounds the request line and headers.
	// Default: 1MiB
	MaxHeaderBytes ByteSize `yaml:"max_header_bytes"`

	// IdleTimeout closes connections that neither read nor wrote for this
	// long. Zero disables idle eviction.
	// Default: 60s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ReadHeaderTimeout bounds reading a request head once its first byte
	// has arrived.
	// Default: 10s
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`

	// ShutdownTimeout is the maximum time to wait for in-flight requests
	// during graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Transport selects the accept transport.
	// Options: "auto", "reuseport", "portable"
	// Default: "auto"
	Transport string `yaml:"transport"`
}

// ListenAddress returns the host:port to bind.
func (s ServerConfig) ListenAddress() string {
	return net.JoinHostPort(s.ListenHost, strconv.Itoa(s.Port))
}

// ApplicationConfig identifies the gateway instance.
type ApplicationConfig struct {
	// Name is the application name used in logs and metrics labels.
	// Default: "hikari-api-gateway"
	Name string `yaml:"name"`

	// Env is the deployment environment (dev, test, prod ...).
	// Default: "dev"
	Env string `yaml:"env"`

	// RegistryAddress is the address of the service registry.
	// Default: "127.0.0.1:7001"
	RegistryAddress string `yaml:"registry_address"`
}

// DownstreamConfig contains settings for the downstream HTTP client.
type DownstreamConfig struct {
	// Timeout bounds a downstream call when no filter set one.
	// Default: 3s
	Timeout time.Duration `yaml:"timeout"`

	// MaxIdleConns is the size of the downstream keep-alive pool.
	// Default: 100
	MaxIdleConns int `yaml:"max_idle_conns"`

	// IdleConnTimeout closes pooled downstream connections after this long.
	// Default: 90s
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

// RulesConfig selects the rule store.
type RulesConfig struct {
	// Source is the rule backend.
	// Options: "memory", "file", "sqlite"
	// Default: "memory"
	Source string `yaml:"source"`

	// FilePath is the YAML rule file read when Source is "file".
	FilePath string `yaml:"file_path"`

	// SQLite configures the store used when Source is "sqlite".
	SQLite RulesSQLiteConfig `yaml:"sqlite"`

	// Inline holds the rules served when Source is "memory".
	Inline []*rule.Rule `yaml:"inline,omitempty"`
}

// RulesSQLiteConfig contains SQLite rule store settings.
type RulesSQLiteConfig struct {
	// Driver is the database/sql driver name.
	// Options: "sqlite" (pure Go), "sqlite3" (cgo)
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// Path is the database file path.
	// Default: "data/rules.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long SQLite waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// ListenAddress is the address of the metrics HTTP endpoint.
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "gateway"
	Namespace string `yaml:"namespace"`

	// StatsSchedule is a cron expression for the periodic stats log line.
	// Empty disables it.
	// Default: "@every 1m"
	StatsSchedule string `yaml:"stats_schedule"`
}

// TracingConfig contains OpenTelemetry tracing configuration.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS towards the collector.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Timeout bounds each export call.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// Sampler is the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "always"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces sampled when Sampler is "ratio".
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`
}

// ByteSize is a size in bytes that reads and writes human-readable values
// such as "64MiB" or "512KB". Plain integers are bytes.
type ByteSize int64

// ParseByteSize parses a human-readable size.
func ParseByteSize(s string) (ByteSize, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return ByteSize(n), nil
}

// String formats the size with IEC units.
func (b ByteSize) String() string {
	if b < 0 {
		return strconv.FormatInt(int64(b), 10)
	}
	return humanize.IBytes(uint64(b))
}

// UnmarshalYAML accepts both integers and human-readable strings.
func (b *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	var n int64
	if err := node.Decode(&n); err == nil {
		*b = ByteSize(n)
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseByteSize(s)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// MarshalYAML writes the human-readable form.
func (b ByteSize) MarshalYAML() (any, error) {
	return b.String(), nil
}
