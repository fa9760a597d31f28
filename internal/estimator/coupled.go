package estimator

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	stateR = iota
	stateK
	statePhi
	statePi
	stateDim
)

// forecastStep is the largest sub-step used when forecasting the nonlinear field.
const forecastStep = 1e-3

// strongCoupling is the self-consistent strong coupling that sets Xi = alpha_s^(1/3).
const strongCoupling = 0.11789

// FieldParams are the fixed coefficients of the coupled field:
//
//	dR/dt   = -2*AlphaLapse*K
//	dK/dt   = AlphaLapse*R/2 - BetaDamp*K + Xi*Phi^2
//	dPhi/dt = Pi
//	dPi/dt  = -(MPhi^2 + Xi*R)*Phi - GammaPhi*Pi
type FieldParams struct {
	AlphaLapse float64
	BetaDamp   float64
	Xi         float64
	MPhi       float64
	GammaPhi   float64
}

// DefaultFieldParams returns the coefficients the controller is tuned for.
func DefaultFieldParams() FieldParams {
	survival := math.Exp(-1)
	return FieldParams{
		AlphaLapse: math.E,
		BetaDamp:   survival,
		Xi:         math.Cbrt(strongCoupling),
		MPhi:       1,
		GammaPhi:   survival,
	}
}

// Step advances x by one symplectic-Euler step of size dt.
func (p FieldParams) Step(x [4]float64, dt float64) [4]float64 {
	return p.StepForced(x, dt, 0, 0)
}

// StepForced is Step with extra forcing added to dK/dt and dPi/dt before the
// positions are advanced.
func (p FieldParams) StepForced(x [4]float64, dt, forceK, forcePi float64) [4]float64 {
	r, k, phi, pi := x[stateR], x[stateK], x[statePhi], x[statePi]

	dk := p.AlphaLapse*r/2 - p.BetaDamp*k + p.Xi*phi*phi + forceK
	dpi := -(p.MPhi*p.MPhi+p.Xi*r)*phi - p.GammaPhi*pi + forcePi

	kNew := k + dk*dt
	piNew := pi + dpi*dt
	return [4]float64{
		r - 2*p.AlphaLapse*kNew*dt,
		kNew,
		phi + piNew*dt,
		piNew,
	}
}

// Jacobian returns d Step(x, dt) / dx evaluated at x.
func (p FieldParams) Jacobian(x [4]float64, dt float64) *mat.Dense {
	r, phi := x[stateR], x[statePhi]

	dkDr := p.AlphaLapse / 2 * dt
	dkDk := 1 - p.BetaDamp*dt
	dkDphi := 2 * p.Xi * phi * dt

	dpiDr := -p.Xi * phi * dt
	dpiDphi := -(p.MPhi*p.MPhi + p.Xi*r) * dt
	dpiDpi := 1 - p.GammaPhi*dt

	drDr := 1 - 2*p.AlphaLapse*dkDr*dt
	drDk := -2 * p.AlphaLapse * dkDk * dt
	drDphi := -2 * p.AlphaLapse * dkDphi * dt

	dphiDr := dpiDr * dt
	dphiDphi := 1 + dpiDphi*dt
	dphiDpi := dpiDpi * dt

	return mat.NewDense(stateDim, stateDim, []float64{
		drDr, drDk, drDphi, 0,
		dkDr, dkDk, dkDphi, 0,
		dphiDr, 0, dphiDphi, dphiDpi,
		dpiDr, 0, dpiDphi, dpiDpi,
	})
}

// NoiseShaping holds the process- and measurement-noise scaling constants.
// Earlier controller revisions disagreed on these, so they stay explicit.
type NoiseShaping struct {
	// ProcessNoiseInflation multiplies the nominal per-step process variance.
	ProcessNoiseInflation float64
	// PiNoiseFactor scales the field-momentum process variance relative to K.
	PiNoiseFactor float64
	// CurvatureNoiseGain sets the attenuation exp(-gain*Xi*|R|) applied to process
	// noise and direct-measurement noise.
	CurvatureNoiseGain float64
	// VelocityNoiseInflation multiplies r_meas/dt^2 for derived velocity observations.
	VelocityNoiseInflation float64
}

// DefaultNoiseShaping returns the shaping used by the reference controller.
func DefaultNoiseShaping() NoiseShaping {
	return NoiseShaping{
		ProcessNoiseInflation:  2,
		PiNoiseFactor:          0.25,
		CurvatureNoiseGain:     2,
		VelocityNoiseInflation: 2,
	}
}

// CoupledFieldConfig configures a CoupledField estimator.
type CoupledFieldConfig struct {
	Params FieldParams
	Shape  NoiseShaping
	// ProcessNoise is the amplitude of the uniform forcing on K per sqrt(step).
	ProcessNoise float64
	// NominalDT is the step size the process-noise variance is derived for.
	NominalDT float64
	// RMeas is the direct measurement variance before curvature attenuation.
	RMeas float64
	// InitialVar seeds every covariance diagonal entry.
	InitialVar float64
	Initial    [4]float64
}

// CoupledField is an extended Kalman filter over [R, K, Phi, Pi].
type CoupledField struct {
	params FieldParams
	shape  NoiseShaping
	rMeas  float64

	x [4]float64
	p *mat.SymDense
	q [4]float64
}

// NewCoupledField builds the filter. Zero-valued Params or Shape fall back to the
// defaults.
func NewCoupledField(cfg CoupledFieldConfig) (*CoupledField, error) {
	if cfg.NominalDT <= 0 {
		return nil, fmt.Errorf("nominal dt must be > 0, got %g", cfg.NominalDT)
	}
	if cfg.RMeas < 0 {
		return nil, fmt.Errorf("measurement variance must be >= 0, got %g", cfg.RMeas)
	}
	if cfg.Params == (FieldParams{}) {
		cfg.Params = DefaultFieldParams()
	}
	if cfg.Shape == (NoiseShaping{}) {
		cfg.Shape = DefaultNoiseShaping()
	}
	if cfg.InitialVar <= 0 {
		cfg.InitialVar = 2
	}

	p := mat.NewSymDense(stateDim, nil)
	for i := 0; i < stateDim; i++ {
		p.SetSym(i, i, cfg.InitialVar)
	}

	// Uniform forcing pn*U[-1,1]*sqrt(dt)*dt has variance pn^2*dt^3/3.
	dt := cfg.NominalDT
	qK := cfg.ProcessNoise * cfg.ProcessNoise * dt * dt * dt / 3
	qPi := qK * cfg.Shape.PiNoiseFactor

	return &CoupledField{
		params: cfg.Params,
		shape:  cfg.Shape,
		rMeas:  cfg.RMeas,
		x:      cfg.Initial,
		p:      p,
		q: [4]float64{
			stateK:   qK * cfg.Shape.ProcessNoiseInflation,
			statePi:  qPi * cfg.Shape.ProcessNoiseInflation,
			stateR:   0,
			statePhi: 0,
		},
	}, nil
}

// State returns the current state estimate.
func (f *CoupledField) State() [4]float64 {
	return f.x
}

// Covariance returns a copy of the current covariance.
func (f *CoupledField) Covariance() *mat.SymDense {
	out := mat.NewSymDense(stateDim, nil)
	out.CopySym(f.p)
	return out
}

// Params returns the field coefficients.
func (f *CoupledField) Params() FieldParams {
	return f.params
}

func (f *CoupledField) curvatureAttenuation() float64 {
	return math.Exp(-f.shape.CurvatureNoiseGain * f.params.Xi * math.Abs(f.x[stateR]))
}

// Predict propagates state and covariance. The Jacobian is taken at the pre-step
// state; process noise is attenuated by the post-step curvature.
func (f *CoupledField) Predict(dt float64) {
	a := f.params.Jacobian(f.x, dt)
	f.x = f.params.Step(f.x, dt)

	var ap, apa mat.Dense
	ap.Mul(a, f.p)
	apa.Mul(&ap, a.T())

	scale := f.curvatureAttenuation()
	next := mat.NewSymDense(stateDim, nil)
	for i := 0; i < stateDim; i++ {
		for j := i; j < stateDim; j++ {
			v := 0.5 * (apa.At(i, j) + apa.At(j, i))
			if i == j {
				v += f.q[i] * scale
			}
			next.SetSym(i, j, v)
		}
	}
	f.p = next
}

// Observe uses H = [1 0 0 0] with curvature-attenuated measurement noise.
func (f *CoupledField) Observe(z float64) {
	f.update(z, [4]float64{1, 0, 0, 0}, f.rMeas*f.curvatureAttenuation())
}

// ObserveVelocity uses dR/dt = -2*AlphaLapse*K.
func (f *CoupledField) ObserveVelocity(rate, dt float64) {
	h := [4]float64{0, -2 * f.params.AlphaLapse, 0, 0}
	f.update(rate, h, f.shape.VelocityNoiseInflation*f.rMeas/(dt*dt))
}

func (f *CoupledField) ObserveFeedback(residual, alpha, beta, rMeas float64) {
	f.update(residual, [4]float64{alpha, beta, 0, 0}, rMeas)
}

// update is the general scalar Kalman correction for z = H x + noise(rMeas).
func (f *CoupledField) update(z float64, h [4]float64, rMeas float64) {
	hv := mat.NewVecDense(stateDim, h[:])

	var ph mat.VecDense
	ph.MulVec(f.p, hv)
	s := mat.Dot(hv, &ph) + rMeas
	if math.Abs(s) < degenerateInnovation {
		return
	}

	predicted := 0.0
	for i := 0; i < stateDim; i++ {
		predicted += h[i] * f.x[i]
	}
	innovation := z - predicted

	var gain mat.VecDense
	gain.ScaleVec(1/s, &ph)
	for i := 0; i < stateDim; i++ {
		f.x[i] += gain.AtVec(i) * innovation
	}

	// P - K (H P); H P equals (P H)^T because P is symmetric.
	next := mat.NewSymDense(stateDim, nil)
	for i := 0; i < stateDim; i++ {
		for j := i; j < stateDim; j++ {
			a := f.p.At(i, j) - gain.AtVec(i)*ph.AtVec(j)
			b := f.p.At(j, i) - gain.AtVec(j)*ph.AtVec(i)
			v := 0.5 * (a + b)
			if i == j {
				v = floorVariance(v)
			}
			next.SetSym(i, j, v)
		}
	}
	f.p = next
}

// Forecast integrates the nonlinear field forward with sub-steps of at most 1e-3
// and reports (R, K).
func (f *CoupledField) Forecast(t float64) Forecast {
	x := f.project(t)
	return Forecast{Position: x[stateR], Velocity: x[stateK]}
}

func (f *CoupledField) project(t float64) [4]float64 {
	steps := int(math.Ceil(t / forecastStep))
	if steps <= 0 {
		return f.x
	}
	sub := t / float64(steps)
	x := f.x
	for i := 0; i < steps; i++ {
		x = f.params.Step(x, sub)
	}
	return x
}

// ModeEnergies reports the squared curvature and field amplitudes.
func (f *CoupledField) ModeEnergies() []float64 {
	return []float64{
		f.x[stateR] * f.x[stateR],
		f.x[statePhi] * f.x[statePhi],
	}
}

func (f *CoupledField) PositionUncertainty() float64 {
	return f.p.At(stateR, stateR)
}
