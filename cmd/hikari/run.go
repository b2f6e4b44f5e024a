package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"hikari-hq/gateway/pkg/cli"
	"hikari-hq/gateway/pkg/clock"
	"hikari-hq/gateway/pkg/config"
	"hikari-hq/gateway/pkg/processor"
	"hikari-hq/gateway/pkg/proxy"
	"hikari-hq/gateway/pkg/rule"
	"hikari-hq/gateway/pkg/server"
	"hikari-hq/gateway/pkg/telemetry/health"
	"hikari-hq/gateway/pkg/telemetry/logging"
	"hikari-hq/gateway/pkg/telemetry/metrics"
	"hikari-hq/gateway/pkg/telemetry/tracing"
)

const adminShutdownTimeout = 5 * time.Second

var runFlags struct {
	port   int
	dryRun bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the gateway",
	Long: `Start the gateway with the resolved configuration.

The gateway listens on server.listen_host:server.port. When metrics are
enabled an admin listener serves Prometheus metrics and the health probes
(/health/live, /health/ready, /version).

Examples:
  # Start with a config file
  hikari run --config /etc/hikari/gateway.yaml

  # Override the listen port
  hikari run --port 8080

  # Validate config and rules without starting the server
  hikari run --dry-run`,
	RunE: runGateway,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVarP(&runFlags.port, "port", "p", -1, "override server.port")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config and rules without starting the server")
}

func runGateway(cmd *cobra.Command, args []string) error {
	var extra []string
	if runFlags.port >= 0 {
		extra = append(extra, "port="+strconv.Itoa(runFlags.port))
	}
	cfg, err := loadConfig(extra...)
	if err != nil {
		return err
	}

	logger, err := logging.Setup(logging.Config{
		Level:     cfg.Telemetry.Logging.Level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
	})
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	store, err := openRuleStore(&cfg.Rules)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to open rule store: %w", err))
	}
	defer store.Close()

	if runFlags.dryRun {
		rules, err := store.List(cmd.Context())
		if err != nil {
			return cli.NewCommandError("run", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Configuration valid (%d rules)\n", len(rules))
		return nil
	}

	return serve(cmd.Context(), cfg, store, logger)
}

// serve wires the gateway components and blocks until ctx is cancelled or
// a shutdown signal arrives.
func serve(parent context.Context, cfg *config.Config, store rule.Store, logger *slog.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := cli.SignalContext(parent)
	defer stop()

	clk := clock.NewCoarse(clock.DefaultResolution)
	clk.Start()
	defer clk.Stop()
	prev := clock.SetDefault(clk)
	defer clock.SetDefault(prev)

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, cfg.Application.Name, Version)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to initialize tracing: %w", err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), adminShutdownTimeout)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	proc, err := processor.New(processor.Options{
		Resolver: proxy.FirstOf{
			proxy.HeaderResolver{Store: store},
			proxy.PathResolver{Store: store},
		},
		Downstream: cfg.Downstream,
		Metrics:    collector,
		Tracer:     tracer,
		Logger:     logger,
	})
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	srv := server.New(&cfg.Server, proc,
		server.WithObserver(collector),
		server.WithLogger(logger),
	)

	if cfg.Telemetry.Metrics.Enabled {
		reporter := metrics.NewReporter(collector, cfg.Telemetry.Metrics.StatsSchedule, logger)
		if err := reporter.Start(); err != nil {
			return cli.NewCommandError("run", err)
		}
		defer reporter.Stop()

		admin, err := startAdmin(cfg, collector, adminChecker(srv, store), logger)
		if err != nil {
			return cli.NewCommandError("run", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), adminShutdownTimeout)
			defer cancel()
			if err := admin.Shutdown(shutdownCtx); err != nil {
				logger.Warn("admin shutdown failed", "error", err)
			}
		}()
	}

	logger.Info("starting gateway",
		"application", cfg.Application.Name,
		"env", cfg.Application.Env,
		"address", cfg.Server.ListenAddress(),
		"version", Version,
	)

	if err := srv.Run(ctx); err != nil && !errors.Is(err, server.ErrServerClosed) {
		return cli.NewCommandError("run", err)
	}
	logger.Info("gateway stopped")
	return nil
}

// adminChecker builds the readiness checks of the admin listener.
func adminChecker(srv *server.Server, store rule.Store) *health.Checker {
	checker := health.New(0)
	checker.Register("listener", srv.Check)
	checker.Register("rules", func(ctx context.Context) error {
		_, err := store.List(ctx)
		return err
	})
	return checker
}

// startAdmin serves metrics and health probes on the metrics listen address.
func startAdmin(cfg *config.Config, collector *metrics.Collector, checker *health.Checker, logger *slog.Logger) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
	health.Mount(mux, checker, health.VersionInfo{
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildDate,
		GoVersion: runtime.Version(),
	})

	ln, err := net.Listen("tcp", cfg.Telemetry.Metrics.ListenAddress)
	if err != nil {
		return nil, fmt.Errorf("admin listen %s: %w", cfg.Telemetry.Metrics.ListenAddress, err)
	}

	admin := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}
	go func() {
		if err := admin.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin server failed", "error", err)
		}
	}()
	logger.Info("admin endpoints listening", "address", ln.Addr().String(), "metrics_path", cfg.Telemetry.Metrics.Path)
	return admin, nil
}
