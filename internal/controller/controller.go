// Package controller turns a state estimator into a latency-compensated
// cancellation controller.
package controller

import (
	"errors"
	"fmt"

	"arcqec/internal/estimator"
)

// ErrInvalidConfiguration is returned for controller settings that cannot run.
var ErrInvalidConfiguration = errors.New("invalid controller configuration")

// DefaultDT is the step size the convenience constructors derive process noise for.
const DefaultDT = 0.01

// Config holds the controller gains and timing.
type Config struct {
	Alpha float64
	Beta  float64
	// Latency is the actuation delay in steps.
	Latency int
	// DT is the nominal step size.
	DT float64
	// RMeas is the direct measurement variance.
	RMeas float64
}

// Controller predicts, corrects and forecasts its estimator once per measurement
// and returns the command that cancels the process at actuation time.
//
// A Controller is owned by one control loop and is not safe for concurrent use.
type Controller struct {
	cfg Config
	est estimator.Estimator

	prevZ    float64
	hasPrevZ bool
}

// New wraps est with cfg.
func New(cfg Config, est estimator.Estimator) (*Controller, error) {
	if est == nil {
		return nil, fmt.Errorf("%w: estimator is required", ErrInvalidConfiguration)
	}
	if cfg.Latency < 0 {
		return nil, fmt.Errorf("%w: latency must be >= 0, got %d", ErrInvalidConfiguration, cfg.Latency)
	}
	if cfg.DT <= 0 {
		return nil, fmt.Errorf("%w: dt must be > 0, got %g", ErrInvalidConfiguration, cfg.DT)
	}
	if cfg.RMeas < 0 {
		return nil, fmt.Errorf("%w: measurement variance must be >= 0, got %g", ErrInvalidConfiguration, cfg.RMeas)
	}
	return &Controller{cfg: cfg, est: est}, nil
}

// MeasurementVariance converts a uniform measurement-noise amplitude into its
// variance.
func MeasurementVariance(measureNoise float64) float64 {
	return measureNoise * measureNoise / 3
}

// NewCoupledField builds a controller over the coupled-field estimator with the
// default field coefficients.
func NewCoupledField(alpha, beta float64, latency int, processNoise, measureNoise float64) (*Controller, error) {
	rMeas := MeasurementVariance(measureNoise)
	est, err := estimator.NewCoupledField(estimator.CoupledFieldConfig{
		ProcessNoise: processNoise,
		NominalDT:    DefaultDT,
		RMeas:        rMeas,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	return New(Config{Alpha: alpha, Beta: beta, Latency: latency, DT: DefaultDT, RMeas: rMeas}, est)
}

// NewModeBank builds a controller over a bank of damped oscillator modes.
func NewModeBank(alpha, beta float64, latency int, modes []estimator.ModeSpec, measureNoise float64) (*Controller, error) {
	rMeas := MeasurementVariance(measureNoise)
	est, err := estimator.NewModeBank(modes, rMeas)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	return New(Config{Alpha: alpha, Beta: beta, Latency: latency, DT: DefaultDT, RMeas: rMeas}, est)
}

// Config returns the controller configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// Estimator exposes the wrapped estimator for inspection.
func (c *Controller) Estimator() estimator.Estimator {
	return c.est
}

// Step consumes one measurement and returns the cancellation command to apply
// Latency steps from now.
func (c *Controller) Step(measured, dt float64) float64 {
	c.est.Predict(dt)
	c.est.Observe(measured)

	if vo, ok := c.est.(estimator.VelocityObserver); ok && c.hasPrevZ {
		vo.ObserveVelocity((measured-c.prevZ)/dt, dt)
	}
	c.prevZ = measured
	c.hasPrevZ = true

	f := c.est.Forecast(float64(c.cfg.Latency) * dt)
	return -(c.cfg.Alpha*f.Position + c.cfg.Beta*f.Velocity)
}

// UpdateError feeds back the realized residual, modelled as
// Alpha*position + Beta*velocity, with variance rMeasErr.
func (c *Controller) UpdateError(residual, rMeasErr float64) {
	c.est.ObserveFeedback(residual, c.cfg.Alpha, c.cfg.Beta, rMeasErr)
}

func (c *Controller) ModeEnergies() []float64 {
	return c.est.ModeEnergies()
}

func (c *Controller) TotalEstimationUncertainty() float64 {
	return c.est.PositionUncertainty()
}
