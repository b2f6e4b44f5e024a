package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"hikari-hq/gateway/pkg/cli"
	"hikari-hq/gateway/pkg/config"
)

var (
	// Global flags
	cfgFile    string
	properties []string
	overrides  []string
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hikari",
		Short: "Hikari - HTTP API gateway",
		Long: `Hikari is an HTTP API gateway core.

It accepts client connections, selects a rule for every request, runs the
rule's filters and forwards the request to a downstream service.

Configuration is resolved from defaults, a YAML file, GATEWAY_* environment
variables, -D gateway.* properties and --set key=value arguments, in that
order.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	cmd.PersistentFlags().StringArrayVarP(&properties, "property", "D", nil, "runtime property gateway.key=value (repeatable)")
	cmd.PersistentFlags().StringArrayVar(&overrides, "set", nil, "configuration override key=value (repeatable)")
	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return cli.ExitCode(err)
	}
	return cli.ExitOK
}

// loadConfig resolves the configuration from the global flags plus extra
// argument overrides.
func loadConfig(extra ...string) (*config.Config, error) {
	args := append(append([]string(nil), overrides...), extra...)
	cfg, err := config.Load(config.Sources{
		File:       cfgFile,
		Properties: properties,
		Args:       args,
	})
	if err != nil {
		return nil, cli.WrapConfigError(err)
	}
	return cfg, nil
}
