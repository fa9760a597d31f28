package qec

import (
	"fmt"
	"math"
	"math/rand"

	"arcqec/internal/noise"
)

// run is the validated, immutable description of one simulation call shared
// read-only by all trials.
type run struct {
	cfg      Config
	src      noise.Source
	channels int
	noiseAmp float64
	steps    int
	interval int
	cycles   int
	trials   int
	mask     []bool

	pT1   float64
	pGate float64
}

func newRun(cfg Config, src noise.Source, channels int, pulses PulseSequence, noiseAmp float64, totalTime, interval, trials int) (*run, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: noise source is required", ErrInvalidConfiguration)
	}
	if trials <= 0 {
		return nil, fmt.Errorf("%w: trials must be > 0, got %d", ErrInvalidConfiguration, trials)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("%w: measure interval must be > 0, got %d", ErrInvalidConfiguration, interval)
	}
	if totalTime < 0 {
		return nil, fmt.Errorf("%w: total time must be >= 0, got %d", ErrInvalidConfiguration, totalTime)
	}
	if cfg.Errors.T1Steps <= 0 {
		return nil, fmt.Errorf("%w: T1 must be > 0, got %g", ErrInvalidConfiguration, cfg.Errors.T1Steps)
	}
	if !validProbability(cfg.Errors.GateError) || !validProbability(cfg.Errors.MeasError) {
		return nil, fmt.Errorf("%w: gate and measurement errors must be in [0, 1]", ErrInvalidConfiguration)
	}
	if cfg.PhaseScale == 0 {
		cfg.PhaseScale = DefaultPhaseScale
	}
	if cfg.GateEpsilon == 0 {
		cfg.GateEpsilon = DefaultGateEpsilon
	}

	dtCycle := float64(interval)
	pT1 := 1 - math.Exp(-dtCycle/cfg.Errors.T1Steps)
	fidelity := (1 - cfg.Errors.GateError) * math.Exp(-cfg.GateEpsilon/cfg.Errors.T1Steps)

	return &run{
		cfg:      cfg,
		src:      src,
		channels: channels,
		noiseAmp: noiseAmp,
		steps:    totalTime,
		interval: interval,
		cycles:   totalTime / interval,
		trials:   trials,
		mask:     pulses.CycleMask(interval),
		pT1:      pT1,
		pGate:    1 - fidelity,
	}, nil
}

func validProbability(p float64) bool {
	return p >= 0 && p <= 1
}

// trialRand returns the private random stream of one trial.
func (r *run) trialRand(trial int) *rand.Rand {
	return rand.New(rand.NewSource(r.cfg.Seed + int64(trial)))
}

// cyclePhase integrates the dephasing phase of one channel over one cycle.
func (r *run) cyclePhase(trace []float64, cycle int) float64 {
	start := cycle * r.interval
	phase := 0.0
	sign := 1.0
	anc := r.cfg.Suppression.ANCEnabled
	for rel := 0; rel < r.interval; rel++ {
		t := start + rel
		if t >= len(trace) {
			break
		}
		if r.mask[rel] {
			sign = -sign
		}
		val := trace[t]
		if anc {
			val = r.cfg.Suppression.CancelFromSample(val, t)
		}
		phase += sign * val * r.noiseAmp * r.cfg.PhaseScale
	}
	return phase
}

// flipProbability combines dephasing, relaxation and gate infidelity as
// independent channels.
func (r *run) flipProbability(phase float64) float64 {
	pPhase := 0.5 * (1 - math.Cos(phase))
	p := 1 - (1-pPhase)*(1-r.pT1)*(1-r.pGate)
	return clampProbability(p)
}

func clampProbability(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// tally is the per-trial outcome; summing tallies is associative and commutative.
type tally struct {
	logicalFailures int
	physicalFlips   int
}

func addTally(acc, v tally) tally {
	return tally{
		logicalFailures: acc.logicalFailures + v.logicalFailures,
		physicalFlips:   acc.physicalFlips + v.physicalFlips,
	}
}

func (r *run) result(code string, distance int, t tally) Result {
	slots := r.trials * r.channels * max(r.cycles, 1)
	physical := 0.0
	if slots > 0 {
		physical = float64(t.physicalFlips) / float64(slots)
	}
	logical := float64(t.logicalFailures) / float64(r.trials)
	return newResult(code, distance, physical, logical)
}
