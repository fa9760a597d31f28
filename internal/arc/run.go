package arc

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"arcqec/internal/metrics"
	"arcqec/internal/workpool"
)

// maxWarmup caps the number of leading steps excluded from the summary.
const maxWarmup = 1000

// rmsFloor is the RMS below which a signal counts as silent.
const rmsFloor = 1e-12

// Summary describes one closed-loop run after warm-up.
type Summary struct {
	Steps            int     `json:"steps"`
	Warmup           int     `json:"warmup"`
	RMSNoise         float64 `json:"rms_noise"`
	RMSResidual      float64 `json:"rms_residual"`
	ResidualMean     float64 `json:"residual_mean"`
	ResidualStdDev   float64 `json:"residual_std_dev"`
	ReductionPercent float64 `json:"reduction_percent"`
	FinalUncertainty float64 `json:"final_uncertainty"`
}

// Finite returns s with every NaN or infinite field replaced by 0, so a
// diverged run can still be written as JSON.
func (s Summary) Finite() Summary {
	s.RMSNoise = finiteOrZero(s.RMSNoise)
	s.RMSResidual = finiteOrZero(s.RMSResidual)
	s.ResidualMean = finiteOrZero(s.ResidualMean)
	s.ResidualStdDev = finiteOrZero(s.ResidualStdDev)
	s.ReductionPercent = finiteOrZero(s.ReductionPercent)
	s.FinalUncertainty = finiteOrZero(s.FinalUncertainty)
	return s
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Warmup returns the number of leading steps excluded from a run of steps.
func Warmup(steps int) int {
	return min(maxWarmup, steps/5)
}

// Reduction returns the RMS reduction in percent. A silent process counts as
// fully cancelled when the residual is silent too.
func Reduction(rmsNoise, rmsResidual float64) float64 {
	switch {
	case rmsNoise > rmsFloor:
		return (1 - rmsResidual/rmsNoise) * 100
	case rmsResidual < rmsFloor:
		return 100
	default:
		return 0
	}
}

func rms(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return floats.Norm(x, 2) / math.Sqrt(float64(len(x)))
}

// Run drives a fresh environment for steps steps and summarises it. When
// trace is non-nil it receives every sample, including warm-up.
func Run(cfg Config, steps int, logger *slog.Logger, trace func(step int, s Sample)) (Summary, error) {
	if steps <= 0 {
		return Summary{}, fmt.Errorf("%w: steps must be > 0, got %d", ErrInvalidConfiguration, steps)
	}
	env, err := NewEnv(cfg)
	if err != nil {
		return Summary{}, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	warmup := Warmup(steps)
	noise := make([]float64, 0, steps-warmup)
	resid := make([]float64, 0, steps-warmup)
	for t := 0; t < steps; t++ {
		s := env.Step()
		if trace != nil {
			trace(t, s)
		}
		if t >= warmup {
			noise = append(noise, s.Noise)
			resid = append(resid, s.Residual)
		}
	}

	sum := Summary{
		Steps:            steps,
		Warmup:           warmup,
		RMSNoise:         rms(noise),
		RMSResidual:      rms(resid),
		FinalUncertainty: env.Controller().TotalEstimationUncertainty(),
	}
	if len(resid) > 1 {
		sum.ResidualMean, sum.ResidualStdDev = stat.MeanStdDev(resid, nil)
	}
	sum.ReductionPercent = Reduction(sum.RMSNoise, sum.RMSResidual)

	metrics.ObserveArc(steps, sum.ReductionPercent)
	logger.Info("arc run complete",
		"steps", steps,
		"latency", cfg.Latency,
		"process_noise", cfg.ProcessNoise,
		"measure_noise", cfg.MeasureNoise,
		"rms_noise", sum.RMSNoise,
		"rms_residual", sum.RMSResidual,
		"reduction_percent", sum.ReductionPercent,
	)
	return sum, nil
}

// Scenario is one row of the residual diagnosis.
type Scenario struct {
	Label        string  `json:"label"`
	ProcessNoise float64 `json:"process_noise"`
	MeasureNoise float64 `json:"measure_noise"`
	Latency      int     `json:"latency"`
}

// DiagnosticScenarios isolates the residual contributed by latency, process
// noise and measurement noise around the reference environment.
func DiagnosticScenarios() []Scenario {
	return []Scenario{
		{Label: "reference", ProcessNoise: 0.08, MeasureNoise: 0.005, Latency: 2},
		{Label: "latency=0", ProcessNoise: 0.08, MeasureNoise: 0.005, Latency: 0},
		{Label: "latency=1", ProcessNoise: 0.08, MeasureNoise: 0.005, Latency: 1},
		{Label: "process=0", ProcessNoise: 0, MeasureNoise: 0.005, Latency: 2},
		{Label: "meas=0", ProcessNoise: 0.08, MeasureNoise: 0, Latency: 2},
		{Label: "ideal", ProcessNoise: 0, MeasureNoise: 0, Latency: 0},
	}
}

// ScenarioSummary pairs a scenario with its run summary.
type ScenarioSummary struct {
	Scenario
	Summary Summary `json:"summary"`
}

// Diagnose runs every scenario on base, in parallel, and returns the summaries
// in scenario order. Every scenario uses base.Seed.
func Diagnose(base Config, scenarios []Scenario, steps, workers int, logger *slog.Logger) ([]ScenarioSummary, error) {
	type outcome struct {
		rows []ScenarioSummary
		err  error
	}
	quiet := slog.New(slog.DiscardHandler)

	out := workpool.Run(workers, len(scenarios), func(i int) outcome {
		sc := scenarios[i]
		cfg := base
		cfg.ProcessNoise, cfg.MeasureNoise, cfg.Latency = sc.ProcessNoise, sc.MeasureNoise, sc.Latency
		sum, err := Run(cfg, steps, quiet, nil)
		if err != nil {
			return outcome{err: fmt.Errorf("scenario %s: %w", sc.Label, err)}
		}
		return outcome{rows: []ScenarioSummary{{Scenario: sc, Summary: sum}}}
	}, outcome{}, func(acc, v outcome) outcome {
		if acc.err != nil {
			return acc
		}
		if v.err != nil {
			return outcome{err: v.err}
		}
		acc.rows = append(acc.rows, v.rows...)
		return acc
	})
	if out.err != nil {
		return nil, out.err
	}

	if logger == nil {
		logger = slog.Default()
	}
	for _, row := range out.rows {
		logger.Info("arc diagnosis",
			"scenario", row.Label,
			"rms_noise", row.Summary.RMSNoise,
			"rms_residual", row.Summary.RMSResidual,
			"reduction_percent", row.Summary.ReductionPercent,
		)
	}
	return out.rows, nil
}
