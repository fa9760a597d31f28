package qec

import (
	"fmt"
	"time"

	"arcqec/internal/metrics"
	"arcqec/internal/noise"
	"arcqec/internal/workpool"
)

// SimulateRepetitionCode runs trials independent Monte-Carlo trials of a
// distance-d repetition code. Every channel's cycle history is decoded with
// DecodeFinalState and the trial fails when a majority of channels decode as
// flipped. distance must be odd.
func SimulateRepetitionCode(cfg Config, src noise.Source, distance int, pulses PulseSequence, noiseAmp float64, totalTime, measureInterval, trials int) (Result, error) {
	if distance <= 0 || distance%2 == 0 {
		return Result{}, fmt.Errorf("%w: distance must be odd and positive, got %d", ErrInvalidConfiguration, distance)
	}
	r, err := newRun(cfg, src, distance, pulses, noiseAmp, totalTime, measureInterval, trials)
	if err != nil {
		return Result{}, err
	}

	started := time.Now()
	total := workpool.Run(cfg.Workers, trials, r.repetitionTrial, tally{}, addTally)
	elapsed := time.Since(started)

	res := r.result(CodeRepetition, distance, total)
	metrics.ObserveQEC(CodeRepetition, trials, total.logicalFailures, total.physicalFlips, elapsed)
	cfg.logger().Debug("qec run complete",
		"code", CodeRepetition,
		"distance", distance,
		"trials", trials,
		"cycles", r.cycles,
		"physical_error_rate", res.PhysicalErrorRate,
		"logical_error_rate", res.LogicalErrorRate,
		"elapsed", elapsed,
	)
	return res, nil
}

func (r *run) repetitionTrial(trial int) tally {
	rng := r.trialRand(trial)
	traces := r.src.Traces(rng, r.steps, r.channels)

	flipped := make([]bool, r.channels)
	observed := make([][]bool, r.channels)
	flipProb := make([][]float64, r.channels)
	for q := range observed {
		observed[q] = make([]bool, r.cycles)
		flipProb[q] = make([]float64, r.cycles)
	}

	var out tally
	for cycle := 0; cycle < r.cycles; cycle++ {
		for q := 0; q < r.channels; q++ {
			p := r.flipProbability(r.cyclePhase(traces[q], cycle))
			flipProb[q][cycle] = p
			if rng.Float64() < p {
				flipped[q] = !flipped[q]
				out.physicalFlips++
			}
		}
		for q := 0; q < r.channels; q++ {
			meas := flipped[q]
			if rng.Float64() < r.cfg.Errors.MeasError {
				meas = !meas
			}
			observed[q][cycle] = meas
		}
	}

	if r.cycles == 0 {
		return out
	}
	decodedFlips := 0
	for q := 0; q < r.channels; q++ {
		if DecodeFinalState(observed[q], flipProb[q], r.cfg.Errors.MeasError) {
			decodedFlips++
		}
	}
	if decodedFlips > r.channels/2 {
		out.logicalFailures = 1
	}
	return out
}
