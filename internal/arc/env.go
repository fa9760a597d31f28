// Package arc runs a predictive controller in closed loop against a simulated
// coupled-field process and measures how much of the process it cancels.
package arc

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"arcqec/internal/controller"
	"arcqec/internal/estimator"
)

// ErrInvalidConfiguration is returned for environment settings that cannot run.
var ErrInvalidConfiguration = errors.New("invalid arc configuration")

// FeedbackVariance is the variance assigned to the error-feedback observation.
// The residual is computed from the true state, so only staleness remains.
const FeedbackVariance = 1e-10

// piForcingShare scales the process noise injected on Pi relative to K.
const piForcingShare = 0.5

// Config describes one closed-loop environment.
type Config struct {
	ProcessNoise float64
	MeasureNoise float64
	Latency      int
	Alpha        float64
	Beta         float64
	DT           float64
	Params       estimator.FieldParams
	// Initial is the starting true state [R, K, Phi, Pi].
	Initial [4]float64
	Seed    int64
}

// DefaultConfig returns the reference environment.
func DefaultConfig() Config {
	return Config{
		ProcessNoise: 0.08,
		MeasureNoise: 0.005,
		Latency:      2,
		Alpha:        1.0,
		Beta:         0.1,
		DT:           controller.DefaultDT,
		Params:       estimator.DefaultFieldParams(),
		Initial:      [4]float64{1.0, 0.3, 0.5, 0},
	}
}

func (c Config) validate() error {
	if c.DT <= 0 {
		return fmt.Errorf("%w: dt must be > 0, got %g", ErrInvalidConfiguration, c.DT)
	}
	if c.Latency < 0 {
		return fmt.Errorf("%w: latency must be >= 0, got %d", ErrInvalidConfiguration, c.Latency)
	}
	if c.ProcessNoise < 0 || c.MeasureNoise < 0 {
		return fmt.Errorf("%w: noise amplitudes must be >= 0", ErrInvalidConfiguration)
	}
	return nil
}

// Sample is the outcome of one environment step.
type Sample struct {
	// Noise is the uncancelled influence Alpha*R + Beta*K of the true state.
	Noise float64
	// Residual is Noise plus the pulse actuated this step.
	Residual float64
}

// Env owns a hidden true process, a controller tracking it and the queue of
// pulses waiting out the actuation latency. It is not safe for concurrent use.
type Env struct {
	cfg  Config
	rng  *rand.Rand
	ctrl *controller.Controller

	truth  [4]float64
	queue  []float64
	prevRe float64
	prevPu float64
}

// NewEnv builds an environment whose randomness is drawn from a stream seeded
// with cfg.Seed.
func NewEnv(cfg Config) (*Env, error) {
	if cfg.Params == (estimator.FieldParams{}) {
		cfg.Params = estimator.DefaultFieldParams()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	rMeas := controller.MeasurementVariance(cfg.MeasureNoise)
	est, err := estimator.NewCoupledField(estimator.CoupledFieldConfig{
		Params:       cfg.Params,
		ProcessNoise: cfg.ProcessNoise,
		NominalDT:    cfg.DT,
		RMeas:        rMeas,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	ctrl, err := controller.New(controller.Config{
		Alpha:   cfg.Alpha,
		Beta:    cfg.Beta,
		Latency: cfg.Latency,
		DT:      cfg.DT,
		RMeas:   rMeas,
	}, est)
	if err != nil {
		return nil, err
	}

	return &Env{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		ctrl:  ctrl,
		truth: cfg.Initial,
		queue: make([]float64, cfg.Latency),
	}, nil
}

// Controller returns the controller driven by the environment.
func (e *Env) Controller() *controller.Controller {
	return e.ctrl
}

// Truth returns the hidden process state.
func (e *Env) Truth() [4]float64 {
	return e.truth
}

func (e *Env) uniform() float64 {
	return 2*e.rng.Float64() - 1
}

// Step advances the true process by one step, feeds the previous residual back
// to the controller, asks it for a new pulse and actuates the pulse computed
// Latency steps ago.
func (e *Env) Step() Sample {
	dt := e.cfg.DT
	p := e.cfg.Params

	// Forcing weakens as curvature grows.
	atten := math.Exp(-p.Xi * math.Abs(e.truth[0]))
	forceK := e.cfg.ProcessNoise * e.uniform() * math.Sqrt(dt) * atten
	forcePi := e.cfg.ProcessNoise * piForcingShare * e.uniform() * math.Sqrt(dt) * atten
	e.truth = p.StepForced(e.truth, dt, forceK, forcePi)

	r, k := e.truth[0], e.truth[1]
	influence := e.cfg.Alpha*r + e.cfg.Beta*k
	measured := r + e.cfg.MeasureNoise*e.uniform()*math.Exp(-p.Xi*math.Abs(r))

	e.ctrl.UpdateError(e.prevRe-e.prevPu, FeedbackVariance)
	pulse := e.ctrl.Step(measured, dt)

	e.queue = append(e.queue, pulse)
	delayed := e.queue[0]
	e.queue = e.queue[1:]

	residual := influence + delayed
	e.prevRe, e.prevPu = residual, delayed
	return Sample{Noise: influence, Residual: residual}
}
