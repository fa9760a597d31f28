package estimator

import (
	"fmt"
	"math"
)

// OscillatorMode is the belief over one damped harmonic oscillator.
type OscillatorMode struct {
	Omega float64
	Gamma float64

	// R and V are the estimated position and velocity.
	R float64
	V float64

	// Prr, Prv and Pvv are the entries of the symmetric 2x2 covariance.
	Prr float64
	Prv float64
	Pvv float64

	// Qvv is the process-noise intensity injected through the velocity channel.
	Qvv float64
}

// ModeSpec describes one oscillator tracked by a ModeBank.
type ModeSpec struct {
	Omega        float64
	Gamma        float64
	ProcessNoise float64
	InitialVar   float64
}

// ModeBank tracks independent damped oscillators whose positions sum into one
// scalar observation.
type ModeBank struct {
	modes []OscillatorMode
	rMeas float64
}

// NewModeBank builds a bank from mode specs. rMeas is the variance of the direct
// position measurement.
func NewModeBank(specs []ModeSpec, rMeas float64) (*ModeBank, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("mode bank requires at least one mode")
	}
	if rMeas < 0 {
		return nil, fmt.Errorf("measurement variance must be >= 0, got %g", rMeas)
	}
	modes := make([]OscillatorMode, 0, len(specs))
	for i, spec := range specs {
		if spec.Omega < 0 || spec.Gamma < 0 {
			return nil, fmt.Errorf("mode %d: omega and gamma must be >= 0", i)
		}
		initial := spec.InitialVar
		if initial <= 0 {
			initial = 1
		}
		modes = append(modes, OscillatorMode{
			Omega: spec.Omega,
			Gamma: spec.Gamma,
			Prr:   initial,
			Pvv:   initial,
			Qvv:   spec.ProcessNoise,
		})
	}
	return &ModeBank{modes: modes, rMeas: rMeas}, nil
}

// Modes returns a copy of the current per-mode beliefs.
func (b *ModeBank) Modes() []OscillatorMode {
	return append([]OscillatorMode(nil), b.modes...)
}

func (b *ModeBank) Predict(dt float64) {
	for i := range b.modes {
		b.modes[i].predict(dt)
	}
}

func (m *OscillatorMode) predict(dt float64) {
	w2 := m.Omega * m.Omega
	damp := 1 - m.Gamma*dt

	v := damp*m.V - w2*dt*m.R
	m.R += v * dt
	m.V = v

	// A is the Jacobian of the step above.
	a00 := 1 - w2*dt*dt
	a01 := damp * dt
	a10 := -w2 * dt
	a11 := damp

	prr, prv, pvv := m.Prr, m.Prv, m.Pvv
	m.Prr = a00*a00*prr + 2*a00*a01*prv + a01*a01*pvv + m.Qvv*dt*dt
	m.Prv = a00*a10*prr + (a00*a11+a01*a10)*prv + a01*a11*pvv + m.Qvv*dt
	m.Pvv = a10*a10*prr + 2*a10*a11*prv + a11*a11*pvv + m.Qvv
}

// Observe applies one shared innovation z - sum(R) to every mode.
func (b *ModeBank) Observe(z float64) {
	b.jointUpdate(z, 1, 0, b.rMeas)
}

// ObserveFeedback treats the residual as sum(alpha*R + beta*V) plus noise.
func (b *ModeBank) ObserveFeedback(residual, alpha, beta, rMeas float64) {
	b.jointUpdate(residual, alpha, beta, rMeas)
}

// jointUpdate assumes the modes are a priori uncorrelated; cross-mode covariance
// is never tracked.
func (b *ModeBank) jointUpdate(z, hr, hv, rMeas float64) {
	predicted := 0.0
	s := rMeas
	for _, m := range b.modes {
		predicted += hr*m.R + hv*m.V
		s += hr*hr*m.Prr + 2*hr*hv*m.Prv + hv*hv*m.Pvv
	}
	if math.Abs(s) < degenerateInnovation {
		return
	}
	innovation := z - predicted

	for i := range b.modes {
		m := &b.modes[i]
		// P H^T
		phr := m.Prr*hr + m.Prv*hv
		phv := m.Prv*hr + m.Pvv*hv
		kr := phr / s
		kv := phv / s

		m.R += kr * innovation
		m.V += kv * innovation

		// (I - K H) P, with H P = (phr, phv) by symmetry.
		prr := m.Prr - kr*phr
		prv := m.Prv - kr*phv
		pvr := m.Prv - kv*phr
		pvv := m.Pvv - kv*phv

		m.Prr = floorVariance(prr)
		m.Prv = 0.5 * (prv + pvr)
		m.Pvv = floorVariance(pvv)
	}
}

// Forecast sums the closed-form damped-oscillator solution of every mode.
func (b *ModeBank) Forecast(t float64) Forecast {
	var f Forecast
	for _, m := range b.modes {
		r, v := m.forecast(t)
		f.Position += r
		f.Velocity += v
	}
	return f
}

func (m OscillatorMode) forecast(t float64) (float64, float64) {
	if t == 0 {
		return m.R, m.V
	}
	halfGamma := m.Gamma / 2
	decay := math.Exp(-halfGamma * t)
	disc := m.Omega*m.Omega - halfGamma*halfGamma
	if disc <= 0 {
		return m.R * decay, m.V * decay
	}

	wd := math.Sqrt(disc)
	c1 := m.R
	c2 := (m.V + halfGamma*m.R) / wd
	cos, sin := math.Cos(wd*t), math.Sin(wd*t)

	r := decay * (c1*cos + c2*sin)
	v := decay * (-halfGamma*(c1*cos+c2*sin) + wd*(c2*cos-c1*sin))
	return r, v
}

func (b *ModeBank) ModeEnergies() []float64 {
	out := make([]float64, len(b.modes))
	for i, m := range b.modes {
		out[i] = m.R * m.R
	}
	return out
}

func (b *ModeBank) PositionUncertainty() float64 {
	total := 0.0
	for _, m := range b.modes {
		total += m.Prr
	}
	return total
}
