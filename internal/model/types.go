/*
PURPOSE:
  Defines the core data structures used throughout vlm-bench.
  These models describe one benchmark configuration, its measured result,
  and the success/failure outcome the driver records for it.

REQUIREMENTS:
  User-specified:
  - Record load, preprocess and generate durations plus the generated text.
  - Track backend, variant and device for every attempt.

  Implementation-discovered:
  - Total time must never be stored; it is derived from the three phases.
  - Failed attempts must still identify the configuration they belong to.

ARCHITECTURE INTEGRATION:
  - Used by: internal/engine, internal/report, internal/output, internal/backend
  - Shared across boundaries.

ERROR HANDLING:
  - None here (see errors.go for the failure taxonomy).

IMPLEMENTATION RULES:
  - Keep structs simple and public.
  - Use time.Duration for high precision.
  - Values are immutable after creation; pass by value.

RELATED FILES:
  - internal/model/errors.go
  - internal/model/record.go
*/

package model

import (
	"fmt"
	"strings"
	"time"
)

// Device is the execution target requested for a backend instance.
type Device int

const (
	DeviceCPU Device = iota
	DeviceAccelerator
)

// String returns the report label for the device.
func (d Device) String() string {
	switch d {
	case DeviceCPU:
		return "CPU"
	case DeviceAccelerator:
		return "GPU"
	default:
		return fmt.Sprintf("Device(%d)", int(d))
	}
}

// ParseDevice converts a user supplied device name.
func ParseDevice(s string) (Device, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cpu":
		return DeviceCPU, nil
	case "gpu", "accelerator", "cuda", "accel":
		return DeviceAccelerator, nil
	default:
		return DeviceCPU, fmt.Errorf("unknown device %q (want cpu or gpu)", s)
	}
}

// ParseDevices converts a list of device names, preserving order.
func ParseDevices(names []string) ([]Device, error) {
	devices := make([]Device, 0, len(names))
	for _, name := range names {
		d, err := ParseDevice(name)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// Configuration identifies one benchmark run.
type Configuration struct {
	Backend string
	Variant string
	Device  Device
}

func (c Configuration) String() string {
	return fmt.Sprintf("%s/%s/%s", c.Backend, c.Variant, c.Device)
}

// Result is the measurement of one successful configuration.
type Result struct {
	Config             Configuration
	LoadDuration       time.Duration
	PreprocessDuration time.Duration
	GenerateDuration   time.Duration
	Output             string
}

// Total is load + preprocess + generate.
func (r Result) Total() time.Duration {
	return r.LoadDuration + r.PreprocessDuration + r.GenerateDuration
}

// Outcome is either a Result or a *PhaseError for one attempted configuration.
// Exactly one of Result and Err is set.
type Outcome struct {
	Config Configuration
	Result *Result
	Err    *PhaseError
}

// Success wraps a result.
func Success(r Result) Outcome {
	return Outcome{Config: r.Config, Result: &r}
}

// Failure wraps a phase error.
func Failure(err *PhaseError) Outcome {
	return Outcome{Config: err.Config, Err: err}
}

// OK reports whether the outcome carries a result.
func (o Outcome) OK() bool {
	return o.Result != nil && o.Err == nil
}

// Phase returns where the attempt ended.
func (o Outcome) Phase() Phase {
	if o.OK() {
		return PhaseDone
	}
	return PhaseFailed
}

// Phase is a step of the single-configuration pipeline.
type Phase int

const (
	PhaseLoading Phase = iota
	PhasePreprocessing
	PhaseGenerating
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhasePreprocessing:
		return "preprocessing"
	case PhaseGenerating:
		return "generating"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// ParsePhase is the inverse of Phase.String for the three pipeline phases.
func ParsePhase(s string) (Phase, error) {
	for _, p := range []Phase{PhaseLoading, PhasePreprocessing, PhaseGenerating} {
		if p.String() == s {
			return p, nil
		}
	}
	return PhaseFailed, fmt.Errorf("unknown phase %q", s)
}
