package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daryltucker/vlm-bench/internal/engine"
	"github.com/daryltucker/vlm-bench/internal/output"
	"github.com/daryltucker/vlm-bench/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report <results.jsonl>",
	Short: "Print the report of a saved run",
	Long: `Reads a JSON Lines file written by 'run' and prints its results table,
comparison and summary. A truncated last line (interrupted run) is skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := output.ReadJSONFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		outcomes, err := toOutcomes(records)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		engine.Print(w, outcomes)
		fmt.Fprintf(w, "\n%s\n", report.Summarize(outcomes))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}
