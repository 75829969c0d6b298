/*
PURPOSE:
  Defines the 'run' subcommand.
  Executes the full benchmark matrix.

REQUIREMENTS:
  User-specified:
  - Run the benchmarks.
  - specific flags for overrides.

  Implementation-discovered:
  - Need to load config first.
  - Apply flag overrides to config.

ARCHITECTURE INTEGRATION:
  - Calls: internal/engine.Run()
  - Uses: internal/config

ERROR HANDLING:
  - Returns error if config load fails or engine run fails.

IMPLEMENTATION RULES:
  - Setup flags in init().
  - Logic: Load Config -> Override -> Engine.Run.

USAGE:
  vlm-bench run --backends ollama,llava-cli --image cat.png

SELF-HEALING INSTRUCTIONS:
  - Check flag names match Config struct fields generally.

RELATED FILES:
  - internal/cli/root.go
*/

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/daryltucker/vlm-bench/internal/config"
	"github.com/daryltucker/vlm-bench/internal/engine"
)

var (
	backendsOverride    []string
	variantsOverride    []string
	devicesOverride     []string
	modelDirOverride    string
	imageOverride       string
	promptOverride      string
	promptFile          string
	outputOverride      string
	acceleratorOverride string
	planOnly            bool
	noHistory           bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the benchmark matrix",
	Long: `Runs the same image and prompt through every (backend, variant, device)
combination. The matrix is expanded backend first, then variant, then device.
Accelerator devices are skipped when no accelerator is available.

Each configuration is loaded, fed the image and asked the prompt. Load,
preprocess and generate times are recorded; a failure in any phase is
reported and the run moves on to the next configuration.

Results are printed as a table followed by a side-by-side comparison of
backends that ran the same variant on the same device, and are saved to CSV,
JSON Lines and (unless --no-history) the SQLite history.`,
	Example: `  # Run with defaults (uses vlm-bench.yaml)
  vlm-bench run --image ./cat.jpg

  # Compare two backends on CPU only
  vlm-bench run --backends ollama,llava-cli --devices cpu --image ./cat.jpg

  # Show which configurations would run
  vlm-bench run --variants small,large --plan

  # Use a specific prompt file
  vlm-bench run -p ./prompts/describe.md --image ./cat.jpg`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. Load Config
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		// 2. Overrides
		if err := applyRunOverrides(cmd, cfg); err != nil {
			return err
		}

		// 3. Execution
		_, err = engine.Run(cmd.Context(), cfg, cmd.OutOrStdout(), engine.RunOptions{
			PlanOnly:  planOnly,
			NoHistory: noHistory,
		})
		return err
	},
}

func applyRunOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("backends") {
		cfg.Backends = backendsOverride
	}
	if flags.Changed("variants") {
		cfg.Variants = variantsOverride
	}
	if flags.Changed("devices") {
		cfg.Devices = devicesOverride
	}
	if modelDirOverride != "" {
		cfg.ModelDir = modelDirOverride
	}
	if imageOverride != "" {
		cfg.ImagePath = imageOverride
	}
	if promptOverride != "" {
		cfg.Prompt = promptOverride
	}
	if promptFile != "" {
		data, err := os.ReadFile(promptFile)
		if err != nil {
			return fmt.Errorf("failed to read prompt file: %w", err)
		}
		cfg.Prompt = string(data)
	}
	if outputOverride != "" {
		cfg.OutputDir = outputOverride
	}
	if acceleratorOverride != "" {
		cfg.Accelerator = acceleratorOverride
	}
	return nil
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringSliceVar(&backendsOverride, "backends", nil, "Comma-separated list of backends (ollama, llava-cli, stub)")
	runCmd.Flags().StringSliceVar(&variantsOverride, "variants", nil, "Comma-separated list of model variants (e.g. small,medium,large)")
	runCmd.Flags().StringSliceVar(&devicesOverride, "devices", nil, "Comma-separated list of devices (cpu, gpu)")
	runCmd.Flags().StringVar(&modelDirOverride, "model-dir", "", "Directory holding the model files")
	runCmd.Flags().StringVar(&imageOverride, "image", "", "Test image")
	runCmd.Flags().StringVar(&promptOverride, "prompt", "", "Prompt text")
	runCmd.Flags().StringVarP(&promptFile, "prompt-file", "p", "", "Path to a markdown/text file containing the prompt (overrides --prompt)")
	runCmd.Flags().StringVarP(&outputOverride, "output-dir", "o", "", "Output directory for results (CSV/JSONL)")
	runCmd.Flags().StringVar(&acceleratorOverride, "accelerator", "", "Accelerator availability: auto, on or off")
	runCmd.Flags().BoolVar(&planOnly, "plan", false, "Print the configurations that would run and exit")
	runCmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record this run in the history database")
}
