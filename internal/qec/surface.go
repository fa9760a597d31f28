package qec

import (
	"time"

	"arcqec/internal/metrics"
	"arcqec/internal/noise"
	"arcqec/internal/workpool"
)

const surfaceDataChannels = 9

// surfaceStabilizers are the weight-4 checks of the distance-3 patch.
var surfaceStabilizers = [4][4]int{
	{0, 1, 3, 4},
	{1, 2, 4, 5},
	{3, 4, 6, 7},
	{4, 5, 7, 8},
}

var surfaceLogical = [3]int{1, 4, 7}

// Syndrome is one measurement of the four stabilizers.
type Syndrome [4]bool

func (s Syndrome) weight() int {
	n := 0
	for _, b := range s {
		if b {
			n++
		}
	}
	return n
}

func (s Syndrome) distance(o Syndrome) int {
	d := 0
	for i := range s {
		if s[i] != o[i] {
			d++
		}
	}
	return d
}

func (s Syndrome) xor(o Syndrome) Syndrome {
	var out Syndrome
	for i := range s {
		out[i] = s[i] != o[i]
	}
	return out
}

// singleSignatures[q] is the syndrome produced by a lone flip on channel q.
var singleSignatures = func() [surfaceDataChannels]Syndrome {
	var sig [surfaceDataChannels]Syndrome
	for s, support := range surfaceStabilizers {
		for _, q := range support {
			sig[q][s] = true
		}
	}
	return sig
}()

// SurfaceSyndrome returns the noiseless stabilizer parities of flipped.
func SurfaceSyndrome(flipped [surfaceDataChannels]bool) Syndrome {
	var out Syndrome
	for s, support := range surfaceStabilizers {
		for _, q := range support {
			if flipped[q] {
				out[s] = !out[s]
			}
		}
	}
	return out
}

// DecodeSurface returns the channels to flip for an observed syndrome. It
// picks the closest single-channel signature and, when that is not an exact
// match, the first channel pair whose combined signature matches exactly.
// Patterns heavier than two flips get the best single-channel guess.
func DecodeSurface(observed Syndrome) []int {
	if observed.weight() == 0 {
		return nil
	}
	best, bestDist := 0, len(observed)+1
	for q, sig := range singleSignatures {
		if d := sig.distance(observed); d < bestDist {
			best, bestDist = q, d
		}
	}
	if bestDist == 0 {
		return []int{best}
	}
	for q1 := 0; q1 < surfaceDataChannels; q1++ {
		for q2 := q1 + 1; q2 < surfaceDataChannels; q2++ {
			if singleSignatures[q1].xor(singleSignatures[q2]) == observed {
				return []int{q1, q2}
			}
		}
	}
	return []int{best}
}

// SurfaceLogicalFlipped reports the parity of the logical operator.
func SurfaceLogicalFlipped(flipped [surfaceDataChannels]bool) bool {
	parity := false
	for _, q := range surfaceLogical {
		if flipped[q] {
			parity = !parity
		}
	}
	return parity
}

// SimulateSurfaceCodeD3 runs trials independent Monte-Carlo trials of the
// distance-3 surface code. Only the final cycle's syndrome is decoded.
func SimulateSurfaceCodeD3(cfg Config, src noise.Source, pulses PulseSequence, noiseAmp float64, totalTime, measureInterval, trials int) (Result, error) {
	r, err := newRun(cfg, src, surfaceDataChannels, pulses, noiseAmp, totalTime, measureInterval, trials)
	if err != nil {
		return Result{}, err
	}

	started := time.Now()
	total := workpool.Run(cfg.Workers, trials, r.surfaceTrial, tally{}, addTally)
	elapsed := time.Since(started)

	res := r.result(CodeSurfaceD3, 3, total)
	metrics.ObserveQEC(CodeSurfaceD3, trials, total.logicalFailures, total.physicalFlips, elapsed)
	cfg.logger().Debug("qec run complete",
		"code", CodeSurfaceD3,
		"trials", trials,
		"cycles", r.cycles,
		"physical_error_rate", res.PhysicalErrorRate,
		"logical_error_rate", res.LogicalErrorRate,
		"elapsed", elapsed,
	)
	return res, nil
}

func (r *run) surfaceTrial(trial int) tally {
	rng := r.trialRand(trial)
	traces := r.src.Traces(rng, r.steps, r.channels)

	var flipped [surfaceDataChannels]bool
	var final Syndrome
	var out tally
	for cycle := 0; cycle < r.cycles; cycle++ {
		for q := 0; q < surfaceDataChannels; q++ {
			p := r.flipProbability(r.cyclePhase(traces[q], cycle))
			if rng.Float64() < p {
				flipped[q] = !flipped[q]
				out.physicalFlips++
			}
		}
		final = SurfaceSyndrome(flipped)
		for s := range final {
			if rng.Float64() < r.cfg.Errors.MeasError {
				final[s] = !final[s]
			}
		}
	}

	for _, q := range DecodeSurface(final) {
		flipped[q] = !flipped[q]
	}
	if SurfaceLogicalFlipped(flipped) {
		out.logicalFailures = 1
	}
	return out
}
