package estimator

import (
	"math"
	"testing"
)

func newTestField(t *testing.T) *CoupledField {
	t.Helper()
	field, err := NewCoupledField(CoupledFieldConfig{
		ProcessNoise: 0.08,
		NominalDT:    0.01,
		RMeas:        0.005 * 0.005 / 3,
	})
	if err != nil {
		t.Fatalf("new coupled field: %v", err)
	}
	return field
}

func TestNewCoupledFieldValidates(t *testing.T) {
	if _, err := NewCoupledField(CoupledFieldConfig{NominalDT: 0}); err == nil {
		t.Fatal("expected error for zero nominal dt")
	}
	if _, err := NewCoupledField(CoupledFieldConfig{NominalDT: 0.01, RMeas: -1}); err == nil {
		t.Fatal("expected error for negative measurement variance")
	}
}

func TestCoupledFieldJacobianMatchesFiniteDifference(t *testing.T) {
	params := DefaultFieldParams()
	x := [4]float64{0.9, 0.25, 0.4, -0.1}
	dt := 0.01
	a := params.Jacobian(x, dt)

	eps := 1e-7
	for j := 0; j < stateDim; j++ {
		plus, minus := x, x
		plus[j] += eps
		minus[j] -= eps
		fp := params.Step(plus, dt)
		fm := params.Step(minus, dt)
		for i := 0; i < stateDim; i++ {
			numeric := (fp[i] - fm[i]) / (2 * eps)
			if math.Abs(numeric-a.At(i, j)) > 1e-6 {
				t.Fatalf("d%d/d%d: analytic=%v numeric=%v", i, j, a.At(i, j), numeric)
			}
		}
	}
}

func TestCoupledFieldUpdateKeepsFloorAndSymmetry(t *testing.T) {
	field := newTestField(t)
	prev := 0.0
	for step := 0; step < 300; step++ {
		z := math.Cos(float64(step) * 0.03)
		field.Predict(0.01)
		field.Observe(z)
		if step > 0 {
			field.ObserveVelocity((z-prev)/0.01, 0.01)
		}
		field.ObserveFeedback(0.001, 1, 0.1, 1e-10)
		prev = z

		p := field.Covariance()
		for i := 0; i < stateDim; i++ {
			if p.At(i, i) < CovarianceFloor {
				t.Fatalf("step %d: P[%d][%d]=%v below floor", step, i, i, p.At(i, i))
			}
			for j := 0; j < stateDim; j++ {
				if p.At(i, j) != p.At(j, i) {
					t.Fatalf("step %d: asymmetric covariance at (%d,%d)", step, i, j)
				}
			}
		}
	}
}

func TestCoupledFieldDegenerateInnovationIsNoop(t *testing.T) {
	field := newTestField(t)
	before := field.State()
	cov := field.Covariance()

	// H = 0 with zero noise gives S = 0.
	field.ObserveFeedback(3, 0, 0, 0)

	if field.State() != before {
		t.Fatalf("state changed: %v -> %v", before, field.State())
	}
	after := field.Covariance()
	for i := 0; i < stateDim; i++ {
		for j := 0; j < stateDim; j++ {
			if after.At(i, j) != cov.At(i, j) {
				t.Fatalf("covariance changed at (%d,%d)", i, j)
			}
		}
	}
}

func TestCoupledFieldForecastZeroAndSubstepping(t *testing.T) {
	field, err := NewCoupledField(CoupledFieldConfig{
		NominalDT: 0.01,
		RMeas:     1e-4,
		Initial:   [4]float64{1.0, 0.3, 0.5, 0},
	})
	if err != nil {
		t.Fatalf("new coupled field: %v", err)
	}
	f := field.Forecast(0)
	if f.Position != 1.0 || f.Velocity != 0.3 {
		t.Fatalf("forecast(0) = %+v, want current (R, K)", f)
	}

	ahead := field.Forecast(0.02)
	steps := int(math.Ceil(0.02 / forecastStep))
	if steps < 20 {
		t.Fatalf("expected at least 20 sub-steps, got %d", steps)
	}
	x := field.State()
	for i := 0; i < steps; i++ {
		x = field.Params().Step(x, 0.02/float64(steps))
	}
	if ahead.Position != x[stateR] || ahead.Velocity != x[stateK] {
		t.Fatalf("forecast %+v does not match %d sub-steps %v", ahead, steps, x)
	}
	if field.State() != [4]float64{1.0, 0.3, 0.5, 0} {
		t.Fatal("forecast mutated the state")
	}
}

func TestCoupledFieldDiagnostics(t *testing.T) {
	field, err := NewCoupledField(CoupledFieldConfig{
		NominalDT:  0.01,
		InitialVar: 3,
		Initial:    [4]float64{2, 0, -0.5, 0},
	})
	if err != nil {
		t.Fatalf("new coupled field: %v", err)
	}
	energies := field.ModeEnergies()
	if len(energies) != 2 || energies[0] != 4 || energies[1] != 0.25 {
		t.Fatalf("unexpected energies: %v", energies)
	}
	if field.PositionUncertainty() != 3 {
		t.Fatalf("position uncertainty = %v, want 3", field.PositionUncertainty())
	}
}

// With Xi = 0 and AlphaLapse = 0.5 the (R, K) block is a damped oscillator with
// omega = 0.5, gamma = BetaDamp and velocity v = -K, so both filters must agree.
func TestModeBankMatchesUncoupledField(t *testing.T) {
	const (
		dt    = 0.01
		rMeas = 0.02
	)
	params := FieldParams{AlphaLapse: 0.5, BetaDamp: 0.3, Xi: 0, MPhi: 1, GammaPhi: 0.2}
	field, err := NewCoupledField(CoupledFieldConfig{
		Params:     params,
		NominalDT:  dt,
		RMeas:      rMeas,
		InitialVar: 1,
	})
	if err != nil {
		t.Fatalf("new coupled field: %v", err)
	}
	bank, err := NewModeBank([]ModeSpec{{Omega: 0.5, Gamma: 0.3, InitialVar: 1}}, rMeas)
	if err != nil {
		t.Fatalf("new mode bank: %v", err)
	}

	for step := 0; step < 200; step++ {
		z := 0.7*math.Sin(0.05*float64(step)) + 0.1*math.Cos(0.31*float64(step))
		field.Predict(dt)
		field.Observe(z)
		bank.Predict(dt)
		bank.Observe(z)

		x := field.State()
		p := field.Covariance()
		m := bank.Modes()[0]
		if math.Abs(x[stateR]-m.R) > 1e-9 || math.Abs(-x[stateK]-m.V) > 1e-9 {
			t.Fatalf("step %d: state mismatch field=(%v,%v) bank=(%v,%v)", step, x[stateR], -x[stateK], m.R, m.V)
		}
		if math.Abs(p.At(stateR, stateR)-m.Prr) > 1e-9 || math.Abs(-p.At(stateR, stateK)-m.Prv) > 1e-9 {
			t.Fatalf("step %d: covariance mismatch field=(%v,%v) bank=(%v,%v)", step, p.At(stateR, stateR), -p.At(stateR, stateK), m.Prr, m.Prv)
		}
	}
}
