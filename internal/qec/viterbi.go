package qec

import "math"

const probabilityEpsilon = 1e-12

// DecodeFinalState runs a two-state Viterbi decoder over one channel's
// syndrome history and reports whether the most likely terminal state is
// flipped. flipProb[i] is the transition probability into cycle i and
// measError the emission flip probability. An empty history decodes as
// unflipped.
func DecodeFinalState(observed []bool, flipProb []float64, measError float64) bool {
	n := len(observed)
	if n == 0 {
		return false
	}

	m := clampOpen(measError)
	lnM, ln1M := math.Log(m), math.Log(1-m)
	emit := func(obs, flipped bool) float64 {
		if obs == flipped {
			return ln1M
		}
		return lnM
	}

	p := clampOpen(flipProb[0])
	prev0 := math.Log(1-p) + emit(observed[0], false)
	prev1 := math.Log(p) + emit(observed[0], true)

	for i := 1; i < n; i++ {
		p = clampOpen(flipProb[i])
		lnP, ln1P := math.Log(p), math.Log(1-p)

		cur0 := emit(observed[i], false) + math.Max(prev0+ln1P, prev1+lnP)
		cur1 := emit(observed[i], true) + math.Max(prev0+lnP, prev1+ln1P)
		prev0, prev1 = cur0, cur1
	}
	return prev1 > prev0
}

func clampOpen(p float64) float64 {
	if p < probabilityEpsilon {
		return probabilityEpsilon
	}
	if p > 1-probabilityEpsilon {
		return 1 - probabilityEpsilon
	}
	return p
}
