/*
PURPOSE:
  Answers one question for the benchmark driver: is an accelerator present
  on this host? The driver asks once per matrix run and drops accelerator
  configurations when the answer is no.

REQUIREMENTS:
  User-specified:
  - Best effort. A probe never returns an error and never crashes the run.
  - Must be injectable so tests do not depend on host hardware.

  Implementation-discovered:
  - Vendor tools (nvidia-smi, rocm-smi) can be slow to start; query them
    concurrently and answer true as soon as one succeeds.
  - Apple Silicon has no CUDA/ROCm path for the supported backends; report false.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (Driver.RunMatrix), internal/cli (probe command)

ERROR HANDLING:
  - Command failures, missing binaries and timeouts all mean "unavailable".
  - Reasons are logged at debug level only; the answer stays a plain bool.

RELATED FILES:
  - internal/engine/driver.go
*/

package accel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Probe reports whether an accelerator is available.
type Probe func(ctx context.Context) bool

// Static returns a probe with a fixed answer.
func Static(available bool) Probe {
	return func(context.Context) bool { return available }
}

// Mode selects how availability is determined.
type Mode string

const (
	ModeAuto Mode = "auto"
	ModeOn   Mode = "on"
	ModeOff  Mode = "off"
)

// ParseMode validates a mode string. Empty means auto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeOn, ModeOff:
		return m, nil
	default:
		return ModeAuto, fmt.Errorf("unknown accelerator mode %q (want auto, on or off)", s)
	}
}

// ForMode returns the probe for m. Auto uses the system probe.
func ForMode(m Mode, logger *slog.Logger) Probe {
	switch m {
	case ModeOn:
		return Static(true)
	case ModeOff:
		return Static(false)
	default:
		return NewSystemProbe(logger).Available
	}
}

// Safe wraps p so a panicking probe reads as unavailable.
func Safe(p Probe, logger *slog.Logger) Probe {
	return func(ctx context.Context) (available bool) {
		defer func() {
			if r := recover(); r != nil {
				if logger != nil {
					logger.Debug("Accelerator probe panicked, assuming unavailable", "panic", r)
				}
				available = false
			}
		}()
		if p == nil {
			return false
		}
		return p(ctx)
	}
}

// errNoDevice is returned by a vendor check that ran but found nothing.
var errNoDevice = errors.New("no device reported")

// SystemProbe queries vendor tools on the host.
type SystemProbe struct {
	Timeout time.Duration
	Logger  *slog.Logger

	// Checks default to nvidia-smi and rocm-smi.
	Checks map[string]func(ctx context.Context) error

	goos, goarch string
}

// NewSystemProbe creates a probe with the default vendor checks.
func NewSystemProbe(logger *slog.Logger) *SystemProbe {
	return &SystemProbe{
		Timeout: 10 * time.Second,
		Logger:  logger,
		Checks: map[string]func(ctx context.Context) error{
			"nvidia": checkNvidia,
			"amd":    checkROCm,
		},
		goos:   runtime.GOOS,
		goarch: runtime.GOARCH,
	}
}

// Available runs every vendor check concurrently and reports whether any succeeded.
func (p *SystemProbe) Available(ctx context.Context) bool {
	if p.goos == "darwin" && p.goarch == "arm64" {
		p.debug("Accelerator probe skipped on Apple Silicon")
		return false
	}
	if len(p.Checks) == 0 {
		return false
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	// found cancels the group: errgroup stops on the first non-nil error.
	found := errors.New("accelerator found")

	g, gctx := errgroup.WithContext(ctx)
	for vendor, check := range p.Checks {
		vendor, check := vendor, check
		g.Go(func() (err error) {
			// A panicking check counts as a failed check.
			defer func() {
				if r := recover(); r != nil {
					p.debug("Accelerator check panicked", "vendor", vendor, "panic", r)
					err = nil
				}
			}()
			if err := check(gctx); err != nil {
				p.debug("Accelerator check failed", "vendor", vendor, "error", err)
				return nil
			}
			p.debug("Accelerator detected", "vendor", vendor)
			return found
		})
	}
	return errors.Is(g.Wait(), found)
}

func (p *SystemProbe) debug(msg string, args ...any) {
	if p.Logger != nil {
		p.Logger.Debug(msg, args...)
	}
}

func checkNvidia(ctx context.Context) error {
	out, err := exec.CommandContext(ctx, "nvidia-smi", "--query-gpu=name", "--format=csv,noheader").Output()
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(out)) == "" {
		return errNoDevice
	}
	return nil
}

func checkROCm(ctx context.Context) error {
	out, err := exec.CommandContext(ctx, "rocm-smi", "--showproductname").Output()
	if err != nil {
		return err
	}
	if !strings.Contains(strings.ToLower(string(out)), "gpu") {
		return errNoDevice
	}
	return nil
}
