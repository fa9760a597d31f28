package qec

import (
	"math"
	"sort"
)

// PulseSequence is an ascending, duplicate-free list of sample indices at which
// the decoupling sign flips.
type PulseSequence []int

// NormalizePulses sorts idx, drops duplicates and indices outside [0, steps).
func NormalizePulses(idx []int, steps int) PulseSequence {
	out := make(PulseSequence, 0, len(idx))
	for _, v := range idx {
		if v >= 0 && v < steps {
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return dedupSorted(out)
}

// Valid reports whether p is ascending, unique and inside [0, steps).
func (p PulseSequence) Valid(steps int) bool {
	for i, v := range p {
		if v < 0 || v >= steps {
			return false
		}
		if i > 0 && v <= p[i-1] {
			return false
		}
	}
	return true
}

// CycleMask maps every pulse into one measurement cycle of length cycleLen and
// returns mask[t] == true where the sign flips before sample t of the cycle.
func (p PulseSequence) CycleMask(cycleLen int) []bool {
	mask := make([]bool, cycleLen)
	if cycleLen <= 0 {
		return mask
	}
	for _, idx := range p {
		off := idx % cycleLen
		if off < 0 {
			off += cycleLen
		}
		mask[off] = true
	}
	return mask
}

// CPMG returns n equally spaced pulses at fractions (j-1/2)/n of steps.
func CPMG(n, steps int) PulseSequence {
	fracs := make([]float64, 0, n)
	for j := 1; j <= n; j++ {
		fracs = append(fracs, (float64(j)-0.5)/float64(n))
	}
	return fromFractions(fracs, steps)
}

// UDD returns n Uhrig pulses at fractions sin^2(j*pi/(2n+2)) of steps.
func UDD(n, steps int) PulseSequence {
	fracs := make([]float64, 0, n)
	for j := 1; j <= n; j++ {
		s := math.Sin(float64(j) * math.Pi / (2*float64(n) + 2))
		fracs = append(fracs, s*s)
	}
	return fromFractions(fracs, steps)
}

// EvenlySpaced returns n pulses at i*steps/n.
func EvenlySpaced(n, steps int) PulseSequence {
	idx := make([]int, 0, n)
	for i := 0; i < n; i++ {
		idx = append(idx, i*steps/n)
	}
	return NormalizePulses(idx, steps)
}

func fromFractions(fracs []float64, steps int) PulseSequence {
	idx := make([]int, 0, len(fracs))
	for _, f := range fracs {
		idx = append(idx, int(f*float64(steps)))
	}
	return NormalizePulses(idx, steps)
}

func dedupSorted(p PulseSequence) PulseSequence {
	if len(p) == 0 {
		return p
	}
	out := p[:1]
	for _, v := range p[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
