package model

import (
	"encoding/json"
	"math"
	"time"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// ErrorModel mirrors the physical error model a QEC run was simulated with.
// T1Steps may be +Inf for runs without relaxation.
type ErrorModel struct {
	T1Steps   float64 `json:"t1_steps"`
	GateError float64 `json:"gate_error"`
	MeasError float64 `json:"meas_error"`
}

// unboundedT1 is how an infinite relaxation time is written, since JSON has no
// infinity. A zero T1 is never a valid simulation input.
const unboundedT1 = 0

type errorModelJSON ErrorModel

func (e ErrorModel) MarshalJSON() ([]byte, error) {
	out := errorModelJSON(e)
	if math.IsInf(out.T1Steps, 1) {
		out.T1Steps = unboundedT1
	}
	return json.Marshal(out)
}

func (e *ErrorModel) UnmarshalJSON(data []byte) error {
	var in errorModelJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.T1Steps == unboundedT1 {
		in.T1Steps = math.Inf(1)
	}
	*e = ErrorModel(in)
	return nil
}

// QECRun is one persisted Monte-Carlo run of a repetition or surface code.
type QECRun struct {
	VersionedRecord
	ID              string     `json:"id"`
	CreatedAtUTC    time.Time  `json:"created_at_utc"`
	Code            string     `json:"code"`
	Distance        int        `json:"distance"`
	NoiseAmp        float64    `json:"noise_amp"`
	TotalTime       int        `json:"total_time"`
	MeasureInterval int        `json:"measure_interval"`
	Trials          int        `json:"trials"`
	Seed            int64      `json:"seed"`
	Pulses          []int      `json:"pulses"`
	Errors          ErrorModel `json:"errors"`

	PhysicalErrorRate float64 `json:"physical_error_rate"`
	LogicalErrorRate  float64 `json:"logical_error_rate"`
	Gain              float64 `json:"gain"`
}

// ArcRun is one persisted closed-loop cancellation run.
type ArcRun struct {
	VersionedRecord
	ID           string    `json:"id"`
	CreatedAtUTC time.Time `json:"created_at_utc"`
	ProcessNoise float64   `json:"process_noise"`
	MeasureNoise float64   `json:"measure_noise"`
	Latency      int       `json:"latency"`
	Alpha        float64   `json:"alpha"`
	Beta         float64   `json:"beta"`
	DT           float64   `json:"dt"`
	Steps        int       `json:"steps"`
	Seed         int64     `json:"seed"`

	Warmup           int     `json:"warmup"`
	RMSNoise         float64 `json:"rms_noise"`
	RMSResidual      float64 `json:"rms_residual"`
	ResidualMean     float64 `json:"residual_mean"`
	ResidualStdDev   float64 `json:"residual_std_dev"`
	ReductionPercent float64 `json:"reduction_percent"`
	FinalUncertainty float64 `json:"final_uncertainty"`
}

// DiagnosisRow is one scenario of a residual diagnosis, stored per run.
type DiagnosisRow struct {
	VersionedRecord
	Label            string  `json:"label"`
	ProcessNoise     float64 `json:"process_noise"`
	MeasureNoise     float64 `json:"measure_noise"`
	Latency          int     `json:"latency"`
	RMSNoise         float64 `json:"rms_noise"`
	RMSResidual      float64 `json:"rms_residual"`
	ReductionPercent float64 `json:"reduction_percent"`
}
