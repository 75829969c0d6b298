/*
PURPOSE:
  Defines the 'list-models' subcommand.
  Helps debug connectivity and variant-to-tag mapping for the ollama backend.

REQUIREMENTS:
  User-specified:
  - List available models.

  Implementation-discovered:
  - Useful validation step before full run: shows which configured
    variants have a pulled model behind them.

ARCHITECTURE INTEGRATION:
  - Calls: internal/backend/ollama.Client.GetModels()

ERROR HANDLING:
  - Returns error if URL incorrect.

IMPLEMENTATION RULES:
  - Simple output to stdout.

USAGE:
  vlm-bench list-models --url http://gpu-box:11434
*/

package cli

import (
	"fmt"
	"slices"
	"sort"

	"github.com/spf13/cobra"

	"github.com/daryltucker/vlm-bench/internal/engine"
)

var listURL string

var listModelsCmd = &cobra.Command{
	Use:   "list-models",
	Short: "List models available on the Ollama server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if listURL != "" {
			cfg.Ollama.URL = listURL
		}

		client := engine.NewOllamaClient(cfg)
		w := cmd.OutOrStdout()

		fmt.Fprintf(w, "Querying %s...\n", cfg.Ollama.URL)
		models, err := client.GetModels(cmd.Context())
		if err != nil {
			return err
		}
		for _, m := range models {
			fmt.Fprintf(w, "- %s\n", m)
		}

		variants := make([]string, 0, len(cfg.Ollama.Models))
		for v := range cfg.Ollama.Models {
			variants = append(variants, v)
		}
		sort.Strings(variants)
		if len(variants) > 0 {
			fmt.Fprintln(w, "\nVariants:")
		}
		for _, v := range variants {
			tag := client.Tag(v)
			status := "missing"
			if slices.Contains(models, tag) {
				status = "ok"
			}
			fmt.Fprintf(w, "  %s -> %s (%s)\n", v, tag, status)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listModelsCmd)
	listModelsCmd.Flags().StringVar(&listURL, "url", "", "Ollama server URL (overrides config)")
}
