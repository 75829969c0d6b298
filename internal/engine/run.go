/*
PURPOSE:
  High-level runner that orchestrates a benchmark run.
  Builds the backends, probes the accelerator, runs the matrix and
  writes every outcome to the configured sinks and the terminal report.

REQUIREMENTS:
  User-specified:
  - Run the full (backend x variant x device) matrix.
  - Log results to CSV/JSONL.
  - Print the per-configuration table and the backend comparison.

  Implementation-discovered:
  - Records are written as each configuration finishes, so a crash
    mid-run keeps the finished rows.
  - History (SQLite) is optional; a broken history DB must not stop a run.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli (run)
  - Uses: internal/engine (driver), internal/output, internal/report

ERROR HANDLING:
  - Invalid config and unwritable output files abort the run.
  - Per-configuration failures are outcomes, not errors (resilience).
  - Sink write errors are logged and the run continues.

USAGE:
  rep, err := engine.Run(ctx, cfg, os.Stdout, engine.RunOptions{})

RELATED FILES:
  - internal/engine/driver.go
  - internal/engine/registry.go
*/

package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/daryltucker/vlm-bench/internal/accel"
	"github.com/daryltucker/vlm-bench/internal/backend"
	"github.com/daryltucker/vlm-bench/internal/config"
	"github.com/daryltucker/vlm-bench/internal/model"
	"github.com/daryltucker/vlm-bench/internal/output"
	"github.com/daryltucker/vlm-bench/internal/report"
)

// RunOptions adjusts a Run. The zero value runs the configured matrix.
type RunOptions struct {
	// PlanOnly prints the configurations that would run and stops.
	PlanOnly bool
	// NoHistory skips the SQLite history store.
	NoHistory bool
	// Backends and Probe override the defaults built from the config.
	Backends backend.Lookup
	Probe    accel.Probe
}

// RunReport is what a finished run produced.
type RunReport struct {
	RunID    string
	Outcomes []model.Outcome
	Summary  report.Summary
	CSVPath  string
	JSONPath string
}

// JSONPath returns the JSON Lines path that sits next to the CSV file.
func JSONPath(cfg *config.Config) string {
	stem := strings.TrimSuffix(cfg.OutputFile, filepath.Ext(cfg.OutputFile))
	return filepath.Join(cfg.OutputDir, stem+".jsonl")
}

// Run executes the full benchmark matrix and prints the report to w.
func Run(ctx context.Context, cfg *config.Config, w io.Writer, opts RunOptions) (*RunReport, error) {
	validate := cfg.ValidateRun
	if opts.PlanOnly {
		validate = cfg.Validate
	}
	if err := validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	backends := opts.Backends
	if backends == nil {
		backends = NewRegistry(cfg)
	}
	probe := opts.Probe
	if probe == nil {
		mode, _ := accel.ParseMode(cfg.Accelerator)
		probe = accel.ForMode(mode, output.Logger)
	}

	m := Matrix{
		Backends:  cfg.Backends,
		Variants:  cfg.Variants,
		Devices:   cfg.DeviceList(),
		ModelDir:  cfg.ModelDir,
		ImagePath: cfg.ImagePath,
		Prompt:    cfg.Prompt,
	}

	if opts.PlanOnly {
		configs := NewDriver(backends, probe).Plan(ctx, m)
		for i, c := range configs {
			fmt.Fprintf(w, "%3d. %s\n", i+1, c)
		}
		fmt.Fprintf(w, "%d configurations\n", len(configs))
		return &RunReport{}, nil
	}

	// Ensure output directory exists
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", cfg.OutputDir, err)
	}

	// Setup Outputs
	csvPath := filepath.Join(cfg.OutputDir, cfg.OutputFile)
	csvWriter, err := output.NewCSVWriter(csvPath)
	if err != nil {
		return nil, fmt.Errorf("failed to init CSV writer at %s: %w", csvPath, err)
	}
	defer csvWriter.Close()

	jsonPath := JSONPath(cfg)
	jsonWriter, err := output.NewJSONWriter(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("failed to init JSON writer at %s: %w", jsonPath, err)
	}
	defer jsonWriter.Close()

	var history *output.HistoryStore
	if !opts.NoHistory && cfg.HistoryDB != "" {
		history, err = output.OpenHistory(cfg.HistoryDB)
		if err != nil {
			output.Logger.Warn("History disabled", "path", cfg.HistoryDB, "error", err)
			history = nil
		} else {
			defer history.Close()
		}
	}

	runID := uuid.NewString()
	output.Logger.Info("Starting benchmark run", "run_id", runID, "image", cfg.ImagePath, "model_dir", cfg.ModelDir)

	write := func(o model.Outcome) {
		rec := model.NewRecord(runID, time.Now().UTC(), o)
		rec.ModelDir = cfg.ModelDir
		rec.Image = cfg.ImagePath
		rec.Prompt = cfg.Prompt

		if err := csvWriter.Write(rec); err != nil {
			output.Logger.Error("Failed to write result to CSV", "error", err)
		}
		if err := jsonWriter.Write(rec); err != nil {
			output.Logger.Error("Failed to write result to JSON", "error", err)
		}
		if history != nil {
			if err := history.Write(rec); err != nil {
				output.Logger.Error("Failed to write result to history", "error", err)
			}
		}
	}

	driver := NewDriver(backends, probe, WithOutcomeHook(write))
	outcomes := driver.RunMatrix(ctx, m)

	rep := &RunReport{
		RunID:    runID,
		Outcomes: outcomes,
		Summary:  report.Summarize(outcomes),
		CSVPath:  csvPath,
		JSONPath: jsonPath,
	}
	Print(w, outcomes)
	fmt.Fprintf(w, "\n%s\nResults: %s, %s (run %s)\n", rep.Summary, csvPath, jsonPath, runID)

	if err := ctx.Err(); err != nil {
		return rep, err
	}
	return rep, nil
}

// Print writes the results table followed by the backend comparison.
func Print(w io.Writer, outcomes []model.Outcome) {
	fmt.Fprintln(w, "\nBenchmark Results:")
	fmt.Fprint(w, report.RenderTable(outcomes))
	if cmp := report.RenderComparison(outcomes); cmp != "" {
		fmt.Fprintln(w, "\nBackend Comparison:")
		fmt.Fprint(w, cmp)
	}
}
