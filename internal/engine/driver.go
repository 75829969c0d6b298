/*
PURPOSE:
  The benchmark driver. Expands the (backend x variant x device) matrix and
  runs every configuration through Load -> Preprocess -> Generate, timing
  each phase.

REQUIREMENTS:
  User-specified:
  - Cross-product order: backend outer, variant middle, device inner.
  - Accelerator entries are dropped when no accelerator is available;
    availability is probed once per matrix run.
  - A failed phase stops that configuration only; the matrix continues.
  - No retries. No concurrency between configurations.

  Implementation-discovered:
  - The loaded instance must be released before the outcome is returned,
    whatever happened, or long matrices exhaust accelerator memory.
  - Sinks want outcomes as they happen, not at the end (crash resilience).

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/run.go, internal/cli (demo)
  - Uses: internal/backend, internal/accel, internal/model, internal/output

ERROR HANDLING:
  - Phase errors become model.Failure outcomes; nothing is returned as error.
  - Probe panics read as "unavailable" (accel.Safe).
  - Release errors are logged and do not change the outcome.

IMPLEMENTATION RULES:
  - time.Now/time.Since carry the monotonic clock reading; durations are
    always computed from two readings of the same clock.

USAGE:
  d := engine.NewDriver(registry, accel.Static(false))
  outcomes := d.RunMatrix(ctx, engine.Matrix{...})

RELATED FILES:
  - internal/engine/run.go
  - internal/report/report.go
*/

package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/daryltucker/vlm-bench/internal/accel"
	"github.com/daryltucker/vlm-bench/internal/backend"
	"github.com/daryltucker/vlm-bench/internal/model"
	"github.com/daryltucker/vlm-bench/internal/output"
)

// Matrix is the input of one benchmark run.
type Matrix struct {
	Backends  []string
	Variants  []string
	Devices   []model.Device
	ModelDir  string
	ImagePath string
	Prompt    string
}

// Driver runs benchmark matrices.
// Note: Driver holds no per-run state, but backends may not tolerate
// concurrent loads; run one matrix at a time.
type Driver struct {
	backends  backend.Lookup
	probe     accel.Probe
	logger    *slog.Logger
	now       func() time.Time
	onOutcome func(model.Outcome)
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger (default output.Logger).
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// WithClock replaces time.Now. Tests use it to produce exact durations.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

// WithOutcomeHook calls fn with every outcome as soon as it is produced.
func WithOutcomeHook(fn func(model.Outcome)) Option {
	return func(d *Driver) { d.onOutcome = fn }
}

// NewDriver creates a Driver.
func NewDriver(backends backend.Lookup, probe accel.Probe, opts ...Option) *Driver {
	d := &Driver{
		backends: backends,
		probe:    probe,
		logger:   output.Logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.probe = accel.Safe(d.probe, d.logger)
	return d
}

// Expand returns the ordered configuration matrix. Accelerator devices are
// omitted when accelerator is false.
func Expand(backends, variants []string, devices []model.Device, accelerator bool) []model.Configuration {
	var configs []model.Configuration
	for _, b := range backends {
		for _, v := range variants {
			for _, dev := range devices {
				if dev == model.DeviceAccelerator && !accelerator {
					continue
				}
				configs = append(configs, model.Configuration{Backend: b, Variant: v, Device: dev})
			}
		}
	}
	return configs
}

// Plan probes the accelerator once and expands the matrix.
func (d *Driver) Plan(ctx context.Context, m Matrix) []model.Configuration {
	accelerator := false
	if wantsAccelerator(m.Devices) {
		accelerator = d.probe(ctx)
		d.logger.Info("Accelerator probe", "available", accelerator)
	}
	return Expand(m.Backends, m.Variants, m.Devices, accelerator)
}

// RunMatrix runs every configuration of m sequentially and returns one
// outcome per attempted configuration, in matrix order. Cancelling ctx stops
// the run before the next configuration starts.
func (d *Driver) RunMatrix(ctx context.Context, m Matrix) []model.Outcome {
	configs := d.Plan(ctx, m)
	d.logger.Info("Running benchmark matrix", "configurations", len(configs))

	outcomes := make([]model.Outcome, 0, len(configs))
	for i, cfg := range configs {
		if err := ctx.Err(); err != nil {
			d.logger.Warn("Benchmark interrupted", "completed", len(outcomes), "of", len(configs), "error", err)
			break
		}
		d.logger.Info("Running configuration", "n", i+1, "of", len(configs),
			"backend", cfg.Backend, "variant", cfg.Variant, "device", cfg.Device)

		o := d.Execute(ctx, cfg, m.ModelDir, m.ImagePath, m.Prompt)
		if o.OK() {
			d.logger.Info("Benchmark succeeded", "config", cfg.String(),
				"load", o.Result.LoadDuration, "preprocess", o.Result.PreprocessDuration,
				"generate", o.Result.GenerateDuration, "total", o.Result.Total())
		} else {
			d.logger.Error("Benchmark failed", "config", cfg.String(),
				"phase", o.Err.Phase, "error", o.Err.Cause)
		}

		outcomes = append(outcomes, o)
		if d.onOutcome != nil {
			d.onOutcome(o)
		}
	}
	return outcomes
}

// Execute runs one configuration through the three measured phases.
func (d *Driver) Execute(ctx context.Context, cfg model.Configuration, modelDir, imagePath, prompt string) model.Outcome {
	fail := func(phase model.Phase, err error) model.Outcome {
		return model.Failure(model.NewPhaseError(cfg, phase, err))
	}

	b, err := d.backends.Lookup(cfg.Backend)
	if err != nil {
		return fail(model.PhaseLoading, err)
	}

	start := d.now()
	inst, err := b.Load(ctx, cfg.Variant, cfg.Device, modelDir)
	loadTime := d.now().Sub(start)
	if err != nil {
		return fail(model.PhaseLoading, err)
	}
	defer d.release(cfg, inst)

	start = d.now()
	input, err := inst.Preprocess(ctx, imagePath)
	processTime := d.now().Sub(start)
	if err != nil {
		return fail(model.PhasePreprocessing, err)
	}

	start = d.now()
	text, err := inst.Generate(ctx, input, prompt)
	generateTime := d.now().Sub(start)
	if err != nil {
		return fail(model.PhaseGenerating, err)
	}

	return model.Success(model.Result{
		Config:             cfg,
		LoadDuration:       loadTime,
		PreprocessDuration: processTime,
		GenerateDuration:   generateTime,
		Output:             text,
	})
}

func (d *Driver) release(cfg model.Configuration, inst backend.Instance) {
	if inst == nil {
		return
	}
	if err := inst.Close(); err != nil {
		d.logger.Warn("Failed to release backend", "config", cfg.String(), "error", err)
	}
}

func wantsAccelerator(devices []model.Device) bool {
	for _, d := range devices {
		if d == model.DeviceAccelerator {
			return true
		}
	}
	return false
}
