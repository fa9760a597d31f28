// Package estimator tracks a hidden, partially observed oscillating process from
// noisy scalar measurements.
//
// Two process models implement the same contract: ModeBank, a bank of independent
// damped oscillators updated by a linear Kalman filter, and CoupledField, a
// four-state nonlinear field tracked by an extended Kalman filter. Both integrate
// with symplectic Euler (velocities first, then positions from the new velocities)
// and linearize that exact discrete map, so covariance propagation matches the
// dynamics of the source they track.
//
// Estimators are single-goroutine objects; callers sharing one across goroutines
// must synchronize externally.
package estimator

// CovarianceFloor is the minimum value of every covariance diagonal entry after an
// observation update.
const CovarianceFloor = 1e-15

// degenerateInnovation is the innovation-variance magnitude below which an update
// carries no information and is skipped.
const degenerateInnovation = 1e-20

// Forecast is the predicted observable position and velocity of the process.
type Forecast struct {
	Position float64
	Velocity float64
}

// Estimator is the capability set shared by every process model.
type Estimator interface {
	// Predict advances the belief by one integrator step of size dt.
	Predict(dt float64)
	// Observe corrects the belief with a direct measurement of the position.
	Observe(z float64)
	// Forecast returns the predicted observable state t time units ahead
	// without mutating the belief.
	Forecast(t float64) Forecast
	// ObserveFeedback corrects the belief with a closed-loop residual modelled as
	// alpha*position + beta*velocity observed with variance rMeas.
	ObserveFeedback(residual, alpha, beta, rMeas float64)
	// ModeEnergies returns the squared amplitude of each tracked component.
	ModeEnergies() []float64
	// PositionUncertainty returns the total positional variance of the belief.
	PositionUncertainty() float64
}

// VelocityObserver is implemented by estimators that accept a velocity estimate
// derived from consecutive raw measurements.
type VelocityObserver interface {
	ObserveVelocity(rate, dt float64)
}

func floorVariance(v float64) float64 {
	if v < CovarianceFloor {
		return CovarianceFloor
	}
	return v
}
