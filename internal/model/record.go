package model

import (
	"errors"
	"time"
)

// Record is the flat, serializable form of an Outcome written by the output sinks.
type Record struct {
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Backend   string    `json:"backend"`
	Variant   string    `json:"variant"`
	Device    string    `json:"device"`
	Status    string    `json:"status"` // "done" or "failed"
	FailedIn  string    `json:"failed_in,omitempty"`
	ModelDir  string    `json:"model_dir"`
	Image     string    `json:"image"`
	Prompt    string    `json:"prompt"`

	LoadDuration       time.Duration `json:"load_duration"`
	PreprocessDuration time.Duration `json:"preprocess_duration"`
	GenerateDuration   time.Duration `json:"generate_duration"`
	TotalDuration      time.Duration `json:"total_duration"`
	ImagesPerSecond    float64       `json:"images_per_second"`

	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// NewRecord flattens o. Failed outcomes get zero durations.
func NewRecord(runID string, ts time.Time, o Outcome) Record {
	rec := Record{
		RunID:     runID,
		Timestamp: ts,
		Backend:   o.Config.Backend,
		Variant:   o.Config.Variant,
		Device:    o.Config.Device.String(),
		Status:    o.Phase().String(),
	}
	if o.OK() {
		r := o.Result
		rec.LoadDuration = r.LoadDuration
		rec.PreprocessDuration = r.PreprocessDuration
		rec.GenerateDuration = r.GenerateDuration
		rec.TotalDuration = r.Total()
		if s := r.PreprocessDuration.Seconds(); s > 0 {
			rec.ImagesPerSecond = 1 / s
		}
		rec.Output = r.Output
		return rec
	}
	if o.Err != nil {
		rec.FailedIn = o.Err.Phase.String()
		rec.Error = o.Err.Cause.Error()
	}
	return rec
}

// Outcome rebuilds the outcome a record was made from. Error causes come
// back as plain string errors.
func (rec Record) Outcome() (Outcome, error) {
	dev, err := ParseDevice(rec.Device)
	if err != nil {
		return Outcome{}, err
	}
	cfg := Configuration{Backend: rec.Backend, Variant: rec.Variant, Device: dev}

	if rec.Status == PhaseDone.String() {
		return Success(Result{
			Config:             cfg,
			LoadDuration:       rec.LoadDuration,
			PreprocessDuration: rec.PreprocessDuration,
			GenerateDuration:   rec.GenerateDuration,
			Output:             rec.Output,
		}), nil
	}

	phase, err := ParsePhase(rec.FailedIn)
	if err != nil {
		return Outcome{}, err
	}
	return Failure(NewPhaseError(cfg, phase, errors.New(rec.Error))), nil
}
