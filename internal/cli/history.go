package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/daryltucker/vlm-bench/internal/engine"
	"github.com/daryltucker/vlm-bench/internal/model"
	"github.com/daryltucker/vlm-bench/internal/output"
	"github.com/daryltucker/vlm-bench/internal/report"
)

var (
	historyLimit int
	historyDB    string
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show past benchmark runs",
	Long: `Without arguments, lists the most recent runs recorded in the history
database. With a run id, prints that run's results table and comparison again.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if historyDB != "" {
			cfg.HistoryDB = historyDB
		}
		if cfg.HistoryDB == "" {
			return errors.New("history is disabled (history_db is empty)")
		}

		store, err := output.OpenHistory(cfg.HistoryDB)
		if err != nil {
			return fmt.Errorf("failed to open history %s: %w", cfg.HistoryDB, err)
		}
		defer store.Close()

		w := cmd.OutOrStdout()
		if len(args) == 1 {
			records, err := store.Records(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return fmt.Errorf("no run %q in %s", args[0], cfg.HistoryDB)
			}
			outcomes, err := toOutcomes(records)
			if err != nil {
				return err
			}
			engine.Print(w, outcomes)
			fmt.Fprintf(w, "\n%s\n", report.Summarize(outcomes))
			return nil
		}

		runs, err := store.Runs(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}

		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"RUN ID", "STARTED", "CONFIGS", "OK", "FASTEST", "TIME"})
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetAutoFormatHeaders(false)
		table.SetBorder(false)
		table.SetHeaderLine(false)
		table.SetNoWhiteSpace(true)
		table.SetTablePadding("    ")
		for _, r := range runs {
			fastest, took := "-", "-"
			if r.FastestConfig != "" {
				fastest, took = r.FastestConfig, report.FormatDuration(r.Fastest)
			}
			table.Append([]string{
				r.RunID,
				r.Started.Local().Format("2006-01-02 15:04:05"),
				strconv.Itoa(r.Attempted),
				strconv.Itoa(r.Succeeded),
				fastest,
				took,
			})
		}
		table.Render()
		return nil
	},
}

// toOutcomes rebuilds outcomes from stored records in order.
func toOutcomes(records []model.Record) ([]model.Outcome, error) {
	outcomes := make([]model.Outcome, 0, len(records))
	for i, rec := range records {
		o, err := rec.Outcome()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of runs to list")
	historyCmd.Flags().StringVar(&historyDB, "db", "", "History database (overrides config)")
}
