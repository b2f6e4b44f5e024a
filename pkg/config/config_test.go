package config

import (
	"runtime"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != DefaultPort {
		t.Errorf("expected port %d, got %d", DefaultPort, cfg.Server.Port)
	}
	if cfg.Server.AcceptThreads != 1 {
		t.Errorf("expected 1 accept thread, got %d", cfg.Server.AcceptThreads)
	}
	if cfg.Server.WorkerThreads != runtime.NumCPU() {
		t.Errorf("expected %d worker threads, got %d", runtime.NumCPU(), cfg.Server.WorkerThreads)
	}
	if cfg.Server.MaxContentLength != 64*1024*1024 {
		t.Errorf("expected 64MiB max content length, got %d", cfg.Server.MaxContentLength)
	}
	if cfg.Application.Name != "hikari-api-gateway" {
		t.Errorf("expected default application name, got %q", cfg.Application.Name)
	}
	if cfg.Application.Env != "dev" || cfg.Application.RegistryAddress != "127.0.0.1:7001" {
		t.Errorf("unexpected application defaults: %+v", cfg.Application)
	}
	if !cfg.Telemetry.Metrics.Enabled || cfg.Telemetry.Metrics.StatsSchedule != DefaultStatsSchedule {
		t.Errorf("unexpected metrics defaults: %+v", cfg.Telemetry.Metrics)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestApplyDefaults_KeepsSetValues(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Port: 9000, IdleTimeout: time.Second},
	}
	ApplyDefaults(cfg)
	ApplyDefaults(cfg)

	if cfg.Server.Port != 9000 || cfg.Server.IdleTimeout != time.Second {
		t.Errorf("expected explicit values to survive, got %+v", cfg.Server)
	}
	if cfg.Server.ShutdownTimeout != DefaultShutdownTimeout {
		t.Errorf("expected zero field to be defaulted, got %v", cfg.Server.ShutdownTimeout)
	}
}

func TestServerConfig_ListenAddress(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"", 7001, ":7001"},
		{"127.0.0.1", 8080, "127.0.0.1:8080"},
		{"::1", 9000, "[::1]:9000"},
	}
	for _, tt := range tests {
		got := ServerConfig{ListenHost: tt.host, Port: tt.port}.ListenAddress()
		if got != tt.want {
			t.Errorf("ListenAddress(%q, %d) = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}

func TestByteSize_YAML(t *testing.T) {
	tests := []struct {
		in      string
		want    ByteSize
		wantErr bool
	}{
		{"size: 1024", 1024, false},
		{"size: 64MiB", 64 << 20, false},
		{"size: 1KB", 1000, false},
		{`size: "2 MiB"`, 2 << 20, false},
		{"size: lots", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var v struct {
				Size ByteSize `yaml:"size"`
			}
			err := yaml.Unmarshal([]byte(tt.in), &v)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && v.Size != tt.want {
				t.Errorf("expected %d, got %d", tt.want, v.Size)
			}
		})
	}

	out, err := yaml.Marshal(struct {
		Size ByteSize `yaml:"size"`
	}{Size: 64 << 20})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(out), "64 MiB") {
		t.Errorf("expected human-readable size, got %s", out)
	}
}

func TestConfig_YAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 8088

	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	loaded := &Config{}
	if err := yaml.Unmarshal(data, loaded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if loaded.Server.Port != 8088 || loaded.Server.MaxContentLength != cfg.Server.MaxContentLength {
		t.Errorf("round trip lost values: %+v", loaded.Server)
	}
	if loaded.Server.IdleTimeout != cfg.Server.IdleTimeout {
		t.Errorf("expected idle timeout %v, got %v", cfg.Server.IdleTimeout, loaded.Server.IdleTimeout)
	}
}
