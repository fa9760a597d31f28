package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"arcqec/internal/arc"
	"arcqec/internal/qec"
	"arcqec/pkg/arcqec"
)

const logLevelEnv = "ARCQEC_LOG_LEVEL"

// loadDotEnv loads .env into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// envConfig is everything the CE_* variables configure, read once at startup.
type envConfig struct {
	QEC   qec.Config
	Noise arcqec.NoiseOptions
}

func configFromEnv(getenv func(string) string) (envConfig, error) {
	r := envReader{getenv: getenv}

	cfg := qec.DefaultConfig()
	cfg.Errors.T1Steps = r.floatVar("CE_T1_STEPS", cfg.Errors.T1Steps)
	cfg.Errors.GateError = r.floatVar("CE_GATE_ERROR", cfg.Errors.GateError)
	cfg.Errors.MeasError = r.floatVar("CE_MEAS_ERROR", cfg.Errors.MeasError)

	cfg.Suppression.Omega = r.floatVar("CE_SUPPRESSION_OMEGA", 0, "CE_SUPPRESSON_OMEGA")
	cfg.Suppression.Amp = r.floatVar("CE_SUPPRESSION_AMP", 0, "CE_SUPPRESSON_AMP")
	cfg.Suppression.Omega2 = r.floatVar("CE_SUPPRESSION_OMEGA2", 0, "CE_SUPPRESSON_OMEGA2")
	cfg.Suppression.Amp2 = r.floatVar("CE_SUPPRESSION_AMP2", 0, "CE_SUPPRESSON_AMP2")
	cfg.Suppression.ANCEnabled = r.intVar("CE_SUPPRESSION_ANC", 0, "CE_SUPPRESSON_ANC") != 0

	noise := arcqec.DefaultNoiseOptions()
	noise.Alpha = r.floatVar("CE_NOISE_ALPHA", noise.Alpha)
	noise.Scale = r.floatVar("CE_NOISE_SCALE", 0)
	noise.Rho = r.floatVar("CE_NOISE_RHO", 0)
	noise.MomentOrder = min(r.intVar("CE_MOMENT_ORDER", noise.MomentOrder), noise.MomentOrder)
	noise.TLSOmega = r.floatVar("CE_TLS_OMEGA", 0)
	noise.TLSWeight = r.floatVar("CE_TLS_WEIGHT", 0)

	if r.err != nil {
		return envConfig{}, r.err
	}
	if cfg.Errors.T1Steps <= 0 {
		return envConfig{}, fmt.Errorf("CE_T1_STEPS must be > 0, got %g", cfg.Errors.T1Steps)
	}
	if noise.Rho < 0 || noise.Rho > 1 {
		return envConfig{}, fmt.Errorf("CE_NOISE_RHO must be in [0, 1], got %g", noise.Rho)
	}
	return envConfig{QEC: cfg, Noise: noise}, nil
}

// envReader keeps the first parse error so callers can read many variables and
// check once.
type envReader struct {
	getenv func(string) string
	err    error
}

func (r *envReader) lookup(key string, aliases []string) (string, string) {
	for _, k := range append([]string{key}, aliases...) {
		if v := strings.TrimSpace(r.getenv(k)); v != "" {
			return k, v
		}
	}
	return key, ""
}

func (r *envReader) floatVar(key string, def float64, aliases ...string) float64 {
	name, raw := r.lookup(key, aliases)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) {
		r.fail(fmt.Errorf("parse %s=%q: invalid number", name, raw))
		return def
	}
	return v
}

func (r *envReader) intVar(key string, def int, aliases ...string) int {
	name, raw := r.lookup(key, aliases)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		r.fail(fmt.Errorf("parse %s=%q: invalid integer", name, raw))
		return def
	}
	return v
}

func (r *envReader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func logLevelFromEnv(getenv func(string) string) (slog.Level, error) {
	raw := strings.TrimSpace(getenv(logLevelEnv))
	if raw == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo, fmt.Errorf("parse %s: %w", logLevelEnv, err)
	}
	return level, nil
}

func loadQECRequestFromConfig(path string) (arcqec.QECRequest, error) {
	raw, err := readConfigMap(path)
	if err != nil {
		return arcqec.QECRequest{}, err
	}

	var req arcqec.QECRequest
	if v, ok := asString(raw["code"]); ok {
		req.Code = v
	}
	if v, ok := asInt(raw["distance"]); ok {
		req.Distance = v
	}
	if v, ok := asFloat64(raw["noise_amp"]); ok {
		req.NoiseAmp = v
	}
	if v, ok := asInt(raw["total_time"]); ok {
		req.TotalTime = v
	}
	if v, ok := asInt(raw["measure_interval"]); ok {
		req.MeasureInterval = v
	}
	if v, ok := asInt(raw["trials"]); ok {
		req.Trials = v
	}
	if v, ok := asString(raw["schedule"]); ok {
		req.Schedule = v
	}
	if v, ok := asInt(raw["pulse_count"]); ok {
		req.PulseCount = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asInt(raw["workers"]); ok {
		req.Workers = v
	}
	if v, ok := asBool(raw["persist"]); ok {
		req.Persist = v
	}
	if list, ok := raw["pulses"].([]any); ok {
		req.Pulses = make([]int, 0, len(list))
		for i, item := range list {
			v, ok := asInt(item)
			if !ok {
				return arcqec.QECRequest{}, fmt.Errorf("pulses[%d]: expected integer, got %v", i, item)
			}
			req.Pulses = append(req.Pulses, v)
		}
		if req.Schedule == "" {
			req.Schedule = arcqec.ScheduleExplicit
		}
	}
	return req, nil
}

func loadArcConfigFromFile(path string, cfg *arc.Config) (steps int, err error) {
	raw, err := readConfigMap(path)
	if err != nil {
		return 0, err
	}
	if v, ok := asFloat64(raw["process_noise"]); ok {
		cfg.ProcessNoise = v
	}
	if v, ok := asFloat64(raw["measure_noise"]); ok {
		cfg.MeasureNoise = v
	}
	if v, ok := asInt(raw["latency"]); ok {
		cfg.Latency = v
	}
	if v, ok := asFloat64(raw["alpha"]); ok {
		cfg.Alpha = v
	}
	if v, ok := asFloat64(raw["beta"]); ok {
		cfg.Beta = v
	}
	if v, ok := asFloat64(raw["dt"]); ok {
		cfg.DT = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		cfg.Seed = v
	}
	if v, ok := asInt(raw["steps"]); ok {
		steps = v
	}
	return steps, nil
}

func readConfigMap(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}
