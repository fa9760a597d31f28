// Package metrics exposes prometheus collectors for QEC runs and closed-loop
// cancellation runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	qecTrials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arcqec_qec_trials_total",
		Help: "Monte-Carlo trials completed by code",
	}, []string{"code"})

	qecLogicalFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arcqec_qec_logical_failures_total",
		Help: "Trials whose decoded logical state was flipped",
	}, []string{"code"})

	qecPhysicalFlips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arcqec_qec_physical_flips_total",
		Help: "Sampled per-channel per-cycle flips",
	}, []string{"code"})

	qecRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arcqec_qec_run_duration_seconds",
		Help:    "Wall time of one QEC simulation call",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~33s
	}, []string{"code"})

	arcSteps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arcqec_arc_steps_total",
		Help: "Closed-loop controller steps executed",
	})

	arcReduction = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arcqec_arc_last_rms_reduction_percent",
		Help: "RMS reduction of the most recent closed-loop run",
	})
)

// ObserveQEC records one completed QEC simulation.
func ObserveQEC(code string, trials, logicalFailures, physicalFlips int, elapsed time.Duration) {
	qecTrials.WithLabelValues(code).Add(float64(trials))
	qecLogicalFailures.WithLabelValues(code).Add(float64(logicalFailures))
	qecPhysicalFlips.WithLabelValues(code).Add(float64(physicalFlips))
	qecRunDuration.WithLabelValues(code).Observe(elapsed.Seconds())
}

// ObserveArc records one completed closed-loop run.
func ObserveArc(steps int, reductionPercent float64) {
	arcSteps.Add(float64(steps))
	arcReduction.Set(reductionPercent)
}
