package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"arcqec/internal/arc"
	"arcqec/internal/qec"
	"arcqec/internal/storage"
	"arcqec/pkg/arcqec"
)

const defaultDBPath = "arcqec.db"

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}
	if err := loadDotEnv(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	level, err := logLevelFromEnv(os.Getenv)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	env, err := configFromEnv(os.Getenv)
	if err != nil {
		return err
	}

	switch args[0] {
	case "init":
		return runInit(ctx, env, args[1:])
	case "qec":
		return runQEC(ctx, env, qec.CodeRepetition, args[1:])
	case "surface":
		return runQEC(ctx, env, qec.CodeSurfaceD3, args[1:])
	case "arc":
		return runArc(ctx, env, args[1:])
	case "runs":
		return runRuns(ctx, env, args[1:])
	case "diagnosis":
		return runDiagnosis(ctx, env, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

type storeFlags struct {
	kind   *string
	dbPath *string
}

func addStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		kind:   fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite"),
		dbPath: fs.String("db-path", defaultDBPath, "sqlite database path"),
	}
}

func openClient(ctx context.Context, env envConfig, sf storeFlags) (*arcqec.Client, error) {
	client, err := arcqec.New(arcqec.Options{
		StoreKind: *sf.kind,
		DBPath:    *sf.dbPath,
		QEC:       env.QEC,
		Noise:     env.Noise,
		Logger:    slog.Default(),
	})
	if err != nil {
		return nil, err
	}
	if err := client.Init(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func runInit(ctx context.Context, env envConfig, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := openClient(ctx, env, sf)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	fmt.Printf("initialized store=%s\n", *sf.kind)
	return nil
}

func runQEC(ctx context.Context, env envConfig, code string, args []string) error {
	fs := flag.NewFlagSet(code, flag.ContinueOnError)
	sf := addStoreFlags(fs)
	configPath := fs.String("config", "", "optional JSON run config")
	distance := fs.Int("distance", 3, "repetition code distance (odd)")
	noiseAmp := fs.Float64("noise-amp", 0.10, "noise amplitude")
	totalTime := fs.Int("total-time", 2000, "samples per trial")
	interval := fs.Int("measure-interval", 50, "samples per measurement cycle")
	trials := fs.Int("trials", 2000, "Monte-Carlo trials")
	schedule := fs.String("schedule", arcqec.ScheduleEven, "pulse schedule: explicit|even|cpmg|udd")
	pulseCount := fs.Int("pulse-count", 60, "pulses for generated schedules")
	pulses := fs.String("pulses", "", "comma-separated pulse indices (explicit schedule)")
	seed := fs.Int64("seed", 1, "base seed; trial i uses seed+i")
	workers := fs.Int("workers", 0, "worker goroutines (0 = GOMAXPROCS)")
	persist := fs.Bool("persist", true, "store the run summary")
	jsonOut := fs.Bool("json", false, "emit result as JSON")
	metricsFile := fs.String("metrics-file", "", "write prometheus metrics to this textfile after the run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := arcqec.QECRequest{}
	if *configPath != "" {
		loaded, err := loadQECRequestFromConfig(*configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		req = loaded
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	fromConfig := *configPath != ""
	apply := func(name string) bool { return set[name] || !fromConfig }

	req.Code = code
	if apply("distance") {
		req.Distance = *distance
	}
	if apply("noise-amp") {
		req.NoiseAmp = *noiseAmp
	}
	if apply("total-time") {
		req.TotalTime = *totalTime
	}
	if apply("measure-interval") {
		req.MeasureInterval = *interval
	}
	if apply("trials") {
		req.Trials = *trials
	}
	if apply("schedule") {
		req.Schedule = *schedule
	}
	if apply("pulse-count") {
		req.PulseCount = *pulseCount
	}
	if apply("seed") {
		req.Seed = *seed
	}
	if apply("workers") {
		req.Workers = *workers
	}
	if apply("persist") {
		req.Persist = *persist
	}
	if set["pulses"] {
		parsed, err := parsePulses(*pulses)
		if err != nil {
			return err
		}
		req.Pulses = parsed
		if !set["schedule"] {
			req.Schedule = arcqec.ScheduleExplicit
		}
	}

	client, err := openClient(ctx, env, sf)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.RunQEC(ctx, req)
	if err != nil {
		return err
	}
	if *metricsFile != "" {
		if err := prometheus.WriteToTextfile(*metricsFile, prometheus.DefaultGatherer); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	if *jsonOut {
		payload := struct {
			RunID  string     `json:"run_id,omitempty"`
			Pulses []int      `json:"pulses"`
			Result qec.Result `json:"result"`
		}{RunID: summary.RunID, Pulses: summary.Pulses, Result: summary.Result}
		return printJSON(payload)
	}

	res := summary.Result
	if summary.RunID != "" {
		fmt.Printf("run_id=%s\n", summary.RunID)
	}
	fmt.Printf("code=%s distance=%d pulses=%d physical_error_rate=%.6g logical_error_rate=%.6g gain=%s\n",
		res.Code, res.Distance, len(summary.Pulses), res.PhysicalErrorRate, res.LogicalErrorRate, formatGain(res.Gain))
	return nil
}

func formatGain(g float64) string {
	if g == qec.NoGain {
		return "n/a"
	}
	return strconv.FormatFloat(g, 'g', 6, 64)
}

func parsePulses(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid pulse index %q", p)
		}
		out = append(out, v)
	}
	return out, nil
}

func runArc(ctx context.Context, env envConfig, args []string) error {
	def := arc.DefaultConfig()

	fs := flag.NewFlagSet("arc", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	configPath := fs.String("config", "", "optional JSON run config")
	steps := fs.Int("steps", 5000, "simulation steps")
	processNoise := fs.Float64("process-noise", def.ProcessNoise, "process noise amplitude")
	measureNoise := fs.Float64("measure-noise", def.MeasureNoise, "measurement noise amplitude")
	latency := fs.Int("latency", def.Latency, "actuation latency in steps")
	alpha := fs.Float64("alpha", def.Alpha, "controller gain on R")
	beta := fs.Float64("beta", def.Beta, "controller gain on K")
	dt := fs.Float64("dt", def.DT, "step size")
	seed := fs.Int64("seed", 1, "random seed")
	diag := fs.Bool("diag", false, "also run the residual diagnosis sweep")
	workers := fs.Int("workers", 0, "worker goroutines for the diagnosis sweep")
	persist := fs.Bool("persist", true, "store the run summary")
	tracePath := fs.String("trace", "", "write per-step noise and residual to this CSV file")
	jsonOut := fs.Bool("json", false, "emit result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	cfg := def
	cfg.Seed = *seed
	runSteps := *steps
	if *configPath != "" {
		n, err := loadArcConfigFromFile(*configPath, &cfg)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if n > 0 && !set["steps"] {
			runSteps = n
		}
	}
	for name := range set {
		switch name {
		case "process-noise":
			cfg.ProcessNoise = *processNoise
		case "measure-noise":
			cfg.MeasureNoise = *measureNoise
		case "latency":
			cfg.Latency = *latency
		case "alpha":
			cfg.Alpha = *alpha
		case "beta":
			cfg.Beta = *beta
		case "dt":
			cfg.DT = *dt
		case "seed":
			cfg.Seed = *seed
		}
	}

	req := arcqec.ArcRequest{
		Config:   cfg,
		Steps:    runSteps,
		Diagnose: *diag,
		Workers:  *workers,
		Persist:  *persist,
	}

	var trace *csv.Writer
	if *tracePath != "" {
		f, err := os.Create(*tracePath)
		if err != nil {
			return err
		}
		defer f.Close()
		trace = csv.NewWriter(f)
		if err := trace.Write([]string{"step", "noise", "residual"}); err != nil {
			return err
		}
		req.Trace = func(step int, s arc.Sample) {
			_ = trace.Write([]string{
				strconv.Itoa(step),
				strconv.FormatFloat(s.Noise, 'g', 10, 64),
				strconv.FormatFloat(s.Residual, 'g', 10, 64),
			})
		}
	}

	client, err := openClient(ctx, env, sf)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	out, err := client.RunArc(ctx, req)
	if err != nil {
		return err
	}
	if trace != nil {
		trace.Flush()
		if err := trace.Error(); err != nil {
			return fmt.Errorf("write trace: %w", err)
		}
	}

	if *jsonOut {
		return printJSON(arcPayload(out))
	}

	if out.RunID != "" {
		fmt.Printf("run_id=%s\n", out.RunID)
	}
	s := out.Summary
	fmt.Printf("steps=%d warmup=%d rms_noise=%.6f rms_residual=%.6f reduction=%.2f%%\n",
		s.Steps, s.Warmup, s.RMSNoise, s.RMSResidual, s.ReductionPercent)
	for _, row := range out.Diagnosis {
		fmt.Printf("  %-12s pn=%-5g mn=%-6g latency=%d rms_noise=%.6f rms_residual=%.6f reduction=%6.2f%%\n",
			row.Label, row.ProcessNoise, row.MeasureNoise, row.Latency,
			row.Summary.RMSNoise, row.Summary.RMSResidual, row.Summary.ReductionPercent)
	}
	return nil
}

type arcJSON struct {
	RunID     string                `json:"run_id,omitempty"`
	Summary   arc.Summary           `json:"summary"`
	Diagnosis []arc.ScenarioSummary `json:"diagnosis,omitempty"`
}

// arcPayload zeroes non-finite fields, which encoding/json rejects.
func arcPayload(out arcqec.ArcSummary) arcJSON {
	payload := arcJSON{RunID: out.RunID, Summary: out.Summary.Finite()}
	for _, row := range out.Diagnosis {
		row.Summary = row.Summary.Finite()
		payload.Diagnosis = append(payload.Diagnosis, row)
	}
	return payload
}

func runRuns(ctx context.Context, env envConfig, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	kind := fs.String("kind", "", "filter by run kind: qec|arc")
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := openClient(ctx, env, sf)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Runs(ctx, arcqec.RunsRequest{Kind: *kind, Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		type runsItem struct {
			RunID        string  `json:"run_id"`
			Kind         string  `json:"kind"`
			CreatedAtUTC string  `json:"created_at_utc"`
			Label        string  `json:"label"`
			Seed         int64   `json:"seed"`
			Headline     float64 `json:"headline"`
		}
		out := make([]runsItem, 0, len(items))
		for _, it := range items {
			out = append(out, runsItem(it))
		}
		return printJSON(out)
	}
	if len(items) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	for _, it := range items {
		fmt.Printf("%s %s %s seed=%d %s headline=%.6g\n", it.CreatedAtUTC, it.Kind, it.RunID, it.Seed, it.Label, it.Headline)
	}
	return nil
}

func runDiagnosis(ctx context.Context, env envConfig, args []string) error {
	fs := flag.NewFlagSet("diagnosis", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	runID := fs.String("run-id", "", "arc run id")
	jsonOut := fs.Bool("json", false, "emit diagnosis as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := openClient(ctx, env, sf)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	rows, err := client.Diagnosis(ctx, *runID)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(rows)
	}
	for _, row := range rows {
		fmt.Printf("%-12s pn=%-5g mn=%-6g latency=%d reduction=%6.2f%%\n",
			row.Label, row.ProcessNoise, row.MeasureNoise, row.Latency, row.ReductionPercent)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: arcqecctl <init|qec|surface|arc|runs|diagnosis> [flags]", msg)
}
