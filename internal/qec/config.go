package qec

import (
	"errors"
	"log/slog"

	"arcqec/internal/noise"
)

// ErrInvalidConfiguration is returned before any trial runs when a simulation
// request cannot be honoured.
var ErrInvalidConfiguration = errors.New("invalid QEC configuration")

const (
	// DefaultPhaseScale is the per-sample integration step of the dephasing phase.
	DefaultPhaseScale = 0.01
	// DefaultGateEpsilon sets the extra gate infidelity 1-exp(-epsilon/T1).
	DefaultGateEpsilon = 0.37
)

// ErrorModel holds the physical error-model parameters.
type ErrorModel struct {
	// T1Steps is the relaxation time in samples. +Inf disables relaxation.
	T1Steps   float64
	GateError float64
	MeasError float64
}

// DefaultErrorModel returns the reference hardware error model.
func DefaultErrorModel() ErrorModel {
	return ErrorModel{
		T1Steps:   1e5,
		GateError: 1e-3,
		MeasError: 1e-3,
	}
}

// Config is the immutable configuration passed into every simulation call.
type Config struct {
	Errors      ErrorModel
	Suppression noise.Suppression
	// PhaseScale and GateEpsilon fall back to their defaults when zero.
	PhaseScale  float64
	GateEpsilon float64
	// Workers bounds trial parallelism; <= 0 uses GOMAXPROCS.
	Workers int
	// Seed derives the per-trial random streams (Seed + trial index).
	Seed int64
	// Logger receives one line per run; nil uses slog.Default.
	Logger *slog.Logger
}

// DefaultConfig returns a config with the default error model and constants.
func DefaultConfig() Config {
	return Config{
		Errors:      DefaultErrorModel(),
		PhaseScale:  DefaultPhaseScale,
		GateEpsilon: DefaultGateEpsilon,
	}
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
