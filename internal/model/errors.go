package model

import (
	"errors"
	"fmt"
)

// Failure taxonomy. A *PhaseError matches exactly one of these with errors.Is.
var (
	ErrBackendLoad = errors.New("backend load failed")
	ErrPreprocess  = errors.New("image preprocessing failed")
	ErrGeneration  = errors.New("text generation failed")
)

// PhaseError is the failure payload of an Outcome.
type PhaseError struct {
	Config Configuration
	Phase  Phase
	Cause  error
}

// NewPhaseError ties cause to the configuration and phase it happened in.
func NewPhaseError(cfg Configuration, phase Phase, cause error) *PhaseError {
	return &PhaseError{Config: cfg, Phase: phase, Cause: cause}
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Config, e.Kind(), e.Cause)
}

// Kind returns the taxonomy sentinel for the failed phase.
func (e *PhaseError) Kind() error {
	switch e.Phase {
	case PhaseLoading:
		return ErrBackendLoad
	case PhasePreprocessing:
		return ErrPreprocess
	default:
		return ErrGeneration
	}
}

// Is matches the taxonomy sentinel.
func (e *PhaseError) Is(target error) bool {
	return target == e.Kind()
}

func (e *PhaseError) Unwrap() error {
	return e.Cause
}
