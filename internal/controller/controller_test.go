package controller

import (
	"errors"
	"math"
	"testing"

	"arcqec/internal/estimator"
)

type scriptedEstimator struct {
	calls      []string
	forecastT  float64
	velocities []float64
	feedback   [4]float64
}

func (s *scriptedEstimator) Predict(float64) { s.calls = append(s.calls, "predict") }
func (s *scriptedEstimator) Observe(float64) { s.calls = append(s.calls, "observe") }
func (s *scriptedEstimator) Forecast(t float64) estimator.Forecast {
	s.calls = append(s.calls, "forecast")
	s.forecastT = t
	return estimator.Forecast{Position: 1.5, Velocity: -2}
}
func (s *scriptedEstimator) ObserveFeedback(residual, alpha, beta, rMeas float64) {
	s.feedback = [4]float64{residual, alpha, beta, rMeas}
}
func (s *scriptedEstimator) ModeEnergies() []float64      { return []float64{1} }
func (s *scriptedEstimator) PositionUncertainty() float64 { return 0.5 }

type scriptedVelocityEstimator struct {
	scriptedEstimator
}

func (s *scriptedVelocityEstimator) ObserveVelocity(rate, _ float64) {
	s.calls = append(s.calls, "velocity")
	s.velocities = append(s.velocities, rate)
}

func TestNewRejectsInvalidConfiguration(t *testing.T) {
	est := &scriptedEstimator{}
	cases := []struct {
		name string
		cfg  Config
		est  estimator.Estimator
	}{
		{name: "nil estimator", cfg: Config{DT: 0.01}},
		{name: "negative latency", cfg: Config{DT: 0.01, Latency: -1}, est: est},
		{name: "zero dt", cfg: Config{}, est: est},
		{name: "negative noise", cfg: Config{DT: 0.01, RMeas: -1}, est: est},
	}
	for _, tc := range cases {
		if _, err := New(tc.cfg, tc.est); !errors.Is(err, ErrInvalidConfiguration) {
			t.Fatalf("%s: expected ErrInvalidConfiguration, got %v", tc.name, err)
		}
	}
}

func TestStepOrderingAndLatencyForecast(t *testing.T) {
	est := &scriptedEstimator{}
	c, err := New(Config{Alpha: 1, Beta: 0.1, Latency: 3, DT: 0.01}, est)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}

	cmd := c.Step(0.2, 0.02)
	want := -(1*1.5 + 0.1*-2)
	if math.Abs(cmd-want) > 1e-15 {
		t.Fatalf("command = %v, want %v", cmd, want)
	}
	if math.Abs(est.forecastT-0.06) > 1e-15 {
		t.Fatalf("forecast horizon = %v, want 0.06", est.forecastT)
	}
	if len(est.calls) != 3 || est.calls[0] != "predict" || est.calls[1] != "observe" || est.calls[2] != "forecast" {
		t.Fatalf("unexpected call order: %v", est.calls)
	}
}

func TestStepDerivesVelocityFromSecondMeasurement(t *testing.T) {
	est := &scriptedVelocityEstimator{}
	c, err := New(Config{Alpha: 1, Latency: 1, DT: 0.01}, est)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	c.Step(1.0, 0.01)
	if len(est.velocities) != 0 {
		t.Fatalf("no velocity observation expected on first step, got %v", est.velocities)
	}
	c.Step(1.5, 0.01)
	if len(est.velocities) != 1 || math.Abs(est.velocities[0]-50) > 1e-9 {
		t.Fatalf("expected derived velocity 50, got %v", est.velocities)
	}
}

func TestUpdateErrorAndDiagnosticsDelegate(t *testing.T) {
	est := &scriptedEstimator{}
	c, err := New(Config{Alpha: 0.7, Beta: 0.2, DT: 0.01}, est)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	c.UpdateError(0.3, 1e-10)
	if est.feedback != [4]float64{0.3, 0.7, 0.2, 1e-10} {
		t.Fatalf("unexpected feedback forwarding: %v", est.feedback)
	}
	if c.TotalEstimationUncertainty() != 0.5 || len(c.ModeEnergies()) != 1 {
		t.Fatal("diagnostics not forwarded")
	}
	if len(est.calls) != 0 {
		t.Fatalf("diagnostics must not step the estimator: %v", est.calls)
	}
}

func TestCoupledFieldControllerTracksConstantSignal(t *testing.T) {
	c, err := NewCoupledField(1.0, 0.1, 0, 0, 0.005)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	var cmd float64
	for i := 0; i < 50; i++ {
		cmd = c.Step(0.4, DefaultDT)
	}
	if math.IsNaN(cmd) || math.IsInf(cmd, 0) {
		t.Fatalf("non-finite command: %v", cmd)
	}
	if c.TotalEstimationUncertainty() >= 2 {
		t.Fatalf("expected positional uncertainty to shrink from prior, got %v", c.TotalEstimationUncertainty())
	}
	if len(c.ModeEnergies()) != 2 {
		t.Fatalf("coupled field reports two mode energies, got %v", c.ModeEnergies())
	}
}

func TestModeBankControllerCancelsSingleTone(t *testing.T) {
	const omega = 2.0
	c, err := NewModeBank(1, 0, 2, []estimator.ModeSpec{{Omega: omega, Gamma: 0, ProcessNoise: 1e-6, InitialVar: 1}}, 0.01)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	dt := DefaultDT
	var lastErr float64
	for step := 0; step < 2000; step++ {
		z := math.Sin(omega * float64(step) * dt)
		cmd := c.Step(z, dt)
		target := math.Sin(omega * float64(step+2) * dt)
		lastErr = target + cmd
	}
	if math.Abs(lastErr) > 0.05 {
		t.Fatalf("expected converged cancellation, residual %v", lastErr)
	}
}

func TestConvenienceConstructorsWrapErrors(t *testing.T) {
	if _, err := NewModeBank(1, 0, 1, nil, 0.1); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
	if _, err := NewCoupledField(1, 0, -1, 0, 0.1); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
}
