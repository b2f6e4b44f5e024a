/*
Package cli provides command-line interface utilities for the hikari command.

Output Formatting:

Command results can be printed as text, JSON or YAML:

	formatter, err := cli.NewFormatter(cli.FormatYAML)
	if err != nil {
		return err
	}
	if err := formatter.FormatTo(cmd.OutOrStdout(), cfg); err != nil {
		return err
	}

Errors:

ConfigError and CommandError classify failures; ExitCode maps them to a
process exit status.

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()
	return srv.Run(ctx)
*/
package cli
