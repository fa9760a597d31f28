// Package noise produces the per-channel dephasing traces consumed by the QEC
// harness.
package noise

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/dsp/fourier"
)

// maxMomentOrder bounds the filter-function moment order carried by Config.
const maxMomentOrder = 3

// Source produces channels traces of length steps drawn from rng.
//
// Implementations must draw all randomness from rng so a caller owning one rng per
// trial gets independent, reproducible trials.
type Source interface {
	Traces(rng *rand.Rand, steps, channels int) [][]float64
}

// Config shapes the 1/f^Alpha spectrum of the generated noise.
type Config struct {
	Alpha float64
	Scale float64
	// Rho is the fraction of variance shared by all channels, in [0, 1].
	Rho         float64
	MomentOrder int
	// TLSOmega and TLSWeight describe a two-level-system spectral line. They are
	// carried for the external spectrum synthesizer and ignored by Pink.
	TLSOmega  float64
	TLSWeight float64
}

// DefaultConfig returns the spectrum used when only a noise amplitude is known.
func DefaultConfig(noiseAmp float64) Config {
	return Config{
		Alpha:       0.8,
		Scale:       1.5 * math.Abs(noiseAmp),
		MomentOrder: maxMomentOrder,
	}
}

// Suppression describes up to two deterministic tones added to every trace and
// optionally cancelled sample by sample downstream.
type Suppression struct {
	Omega      float64
	Amp        float64
	Omega2     float64
	Amp2       float64
	ANCEnabled bool
}

// HasAny reports whether at least one (omega, amp) pair is active.
func (s Suppression) HasAny() bool {
	return (s.Omega != 0 && s.Amp != 0) || (s.Omega2 != 0 && s.Amp2 != 0)
}

// ApplyToTrace adds the active tones to trace in place.
func (s Suppression) ApplyToTrace(trace []float64) {
	for t := range trace {
		trace[t] += s.tone(t)
	}
}

// CancelFromSample removes the active tones from the sample taken at absolute
// index t.
func (s Suppression) CancelFromSample(val float64, t int) float64 {
	return val - s.tone(t)
}

func (s Suppression) tone(t int) float64 {
	v := 0.0
	if s.Omega != 0 && s.Amp != 0 {
		v += s.Amp * math.Cos(s.Omega*float64(t))
	}
	if s.Omega2 != 0 && s.Amp2 != 0 {
		v += s.Amp2 * math.Cos(s.Omega2*float64(t))
	}
	return v
}

// Pink synthesizes 1/f^Alpha noise by shaping Gaussian spectral coefficients and
// inverting them, optionally mixing a common-mode trace into every channel.
type Pink struct {
	cfg Config
	sup Suppression
}

// NewPink returns a Pink source that also applies the suppression tones.
func NewPink(cfg Config, sup Suppression) *Pink {
	if cfg.MomentOrder > maxMomentOrder {
		cfg.MomentOrder = maxMomentOrder
	}
	return &Pink{cfg: cfg, sup: sup}
}

func (p *Pink) Traces(rng *rand.Rand, steps, channels int) [][]float64 {
	if steps <= 0 || channels <= 0 {
		return make([][]float64, max(channels, 0))
	}
	fft := fourier.NewCmplxFFT(steps)
	spectrum := make([]complex128, steps)
	seq := make([]complex128, steps)

	traces := make([][]float64, channels)
	for ch := range traces {
		traces[ch] = p.trace(rng, fft, spectrum, seq)
	}

	if channels > 1 && p.cfg.Rho > 0 {
		rho := math.Min(p.cfg.Rho, 1)
		common := p.trace(rng, fft, spectrum, seq)
		wc, wi := math.Sqrt(rho), math.Sqrt(1-rho)
		for _, tr := range traces {
			for t := range tr {
				tr[t] = wc*common[t] + wi*tr[t]
			}
		}
	}

	if p.sup.HasAny() {
		for _, tr := range traces {
			p.sup.ApplyToTrace(tr)
		}
	}
	return traces
}

func (p *Pink) trace(rng *rand.Rand, fft *fourier.CmplxFFT, spectrum, seq []complex128) []float64 {
	n := len(spectrum)
	spectrum[0] = complex(rng.NormFloat64()*math.Sqrt(float64(n))*p.cfg.Scale, 0)
	for i := 1; i < n; i++ {
		f := float64(i)
		if i > n/2 {
			f = float64(n - i)
		}
		amp := p.cfg.Scale / math.Pow(f, p.cfg.Alpha/2)
		spectrum[i] = complex(rng.NormFloat64()*amp, rng.NormFloat64()*amp)
	}
	fft.Sequence(seq, spectrum)

	out := make([]float64, n)
	for i, v := range seq {
		out[i] = real(v)
	}
	return out
}

// Static replays fixed traces, cycling channels when more are requested than
// stored. It is used for recorded traces and tests.
type Static [][]float64

func (s Static) Traces(_ *rand.Rand, steps, channels int) [][]float64 {
	out := make([][]float64, channels)
	for ch := range out {
		tr := make([]float64, steps)
		if len(s) > 0 {
			copy(tr, s[ch%len(s)])
		}
		out[ch] = tr
	}
	return out
}
