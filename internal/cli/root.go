/*
PURPOSE:
  Defines the root Cobra command for the vlm-bench CLI.
  Handles global flags and command initialization.

REQUIREMENTS:
  User-specified:
  - Provide a CLI interface.
  - Support global flags like --config.

  Implementation-discovered:
  - Needs to expose an Execute() function for main.go.
  - Logging must be configured before any subcommand runs.

ARCHITECTURE INTEGRATION:
  - Called by: cmd/vlm-bench/main.go
  - Calls: Child commands (run, demo, probe, list-models, history, report)
  - Modifies: output.Logger (PersistentPreRunE).

ERROR HANDLING:
  - Returns error to main.go for exit code handling.

IMPLEMENTATION RULES:
  - Use `PersistentFlags()` for flags available to all subcommands.
  - Keep Run logic in subcommands, Root is usually empty or helps.

USAGE:
  Called by main.go.

SELF-HEALING INSTRUCTIONS:
  - If adding new global flags, add them to init().

RELATED FILES:
  - cmd/vlm-bench/main.go
*/

package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/daryltucker/vlm-bench/internal/config"
	"github.com/daryltucker/vlm-bench/internal/output"
)

var (
	// cfgFile stores the path to the config file (if specified via flag)
	cfgFile   string
	logLevel  string
	logFormat string

	rootCmd = &cobra.Command{
		Use:   "vlm-bench",
		Short: "Benchmark vision-language model backends",
		Long: `Runs one image and prompt through every (backend, model variant, device)
combination, times model loading, image preprocessing and text generation,
and compares the backends side by side. Use 'run --help' for benchmark options.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return output.SetupLogger(logLevel, logFormat)
		},
	}
)

// Execute executes the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// loadConfig loads the file named by --config (or the default search).
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./vlm-bench.yaml, .yml or .toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto", "log format (auto, text, json)")
}
