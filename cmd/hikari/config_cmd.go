package main

import (
	"github.com/spf13/cobra"

	"hikari-hq/gateway/pkg/cli"
)

var configFlags struct {
	output string
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the gateway configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	Long: `Print the configuration after defaults, file, environment, properties
and overrides have been applied and validated.

Examples:
  hikari config show
  hikari config show --config gateway.yaml --output json
  GATEWAY_SERVER_PORT=8080 hikari config show`,
	RunE: func(cmd *cobra.Command, args []string) error {
		formatter, err := cli.NewFormatter(cli.OutputFormat(configFlags.output))
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return formatter.FormatTo(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	configShowCmd.Flags().StringVarP(&configFlags.output, "output", "o", string(cli.FormatYAML), "output format (yaml, json)")
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
