package arcqec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"arcqec/internal/arc"
	"arcqec/internal/model"
	"arcqec/internal/noise"
	"arcqec/internal/qec"
	"arcqec/internal/storage"
)

const (
	defaultDBPath   = "arcqec.db"
	defaultRunLimit = 20
)

// Pulse schedules understood by QECRequest.Schedule.
const (
	ScheduleExplicit = "explicit"
	ScheduleEven     = "even"
	ScheduleCPMG     = "cpmg"
	ScheduleUDD      = "udd"
)

// Run kinds reported by Runs.
const (
	KindQEC = "qec"
	KindArc = "arc"
)

// NoiseOptions shapes the pink-noise source. Scale <= 0 derives the scale from
// the requested noise amplitude.
type NoiseOptions struct {
	Alpha       float64
	Scale       float64
	Rho         float64
	MomentOrder int
	TLSOmega    float64
	TLSWeight   float64
}

// DefaultNoiseOptions returns the spectrum used when nothing is configured.
func DefaultNoiseOptions() NoiseOptions {
	d := noise.DefaultConfig(0)
	return NoiseOptions{Alpha: d.Alpha, MomentOrder: d.MomentOrder}
}

// withDefaults fills zero Alpha and MomentOrder from DefaultNoiseOptions.
func (o NoiseOptions) withDefaults() NoiseOptions {
	d := DefaultNoiseOptions()
	if o.Alpha == 0 {
		o.Alpha = d.Alpha
	}
	if o.MomentOrder == 0 {
		o.MomentOrder = d.MomentOrder
	}
	return o
}

func (o NoiseOptions) config(noiseAmp float64) noise.Config {
	cfg := noise.DefaultConfig(noiseAmp)
	cfg.Alpha = o.Alpha
	if o.Scale > 0 {
		cfg.Scale = o.Scale
	}
	cfg.Rho = o.Rho
	cfg.MomentOrder = o.MomentOrder
	cfg.TLSOmega = o.TLSOmega
	cfg.TLSWeight = o.TLSWeight
	return cfg
}

type Options struct {
	StoreKind string
	DBPath    string
	// QEC is the immutable base configuration of every QEC run. Zero fields take
	// their defaults individually.
	QEC qec.Config
	// Noise fields left zero take their defaults individually.
	Noise  NoiseOptions
	Logger *slog.Logger
}

type Client struct {
	store  storage.Store
	qec    qec.Config
	noise  NoiseOptions
	logger *slog.Logger
	now    func() time.Time
}

type QECRequest struct {
	// Code is qec.CodeRepetition or qec.CodeSurfaceD3.
	Code            string
	Distance        int
	NoiseAmp        float64
	TotalTime       int
	MeasureInterval int
	Trials          int
	// Schedule selects how pulses are produced; explicit uses Pulses as given.
	Schedule   string
	PulseCount int
	Pulses     []int
	Seed       int64
	Workers    int
	Persist    bool
}

type QECSummary struct {
	RunID  string
	Pulses qec.PulseSequence
	Result qec.Result
}

type ArcRequest struct {
	Config   arc.Config
	Steps    int
	Diagnose bool
	Workers  int
	Persist  bool
	// Trace, when set, receives every sample of the main run.
	Trace func(step int, s arc.Sample)
}

type ArcSummary struct {
	RunID     string
	Summary   arc.Summary
	Diagnosis []arc.ScenarioSummary
}

type RunsRequest struct {
	Kind  string
	Limit int
}

type RunItem struct {
	RunID        string
	Kind         string
	CreatedAtUTC string
	Label        string
	Seed         int64
	// Headline is the logical error rate of a QEC run or the RMS reduction of an
	// arc run.
	Headline float64
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	qecCfg := withQECDefaults(opts.QEC)
	noiseOpts := opts.Noise.withDefaults()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	qecCfg.Logger = logger

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:  store,
		qec:    qecCfg,
		noise:  noiseOpts,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// withQECDefaults fills unset fields of cfg one by one. A zero error model takes
// the default model; otherwise only a zero T1 is replaced.
func withQECDefaults(cfg qec.Config) qec.Config {
	d := qec.DefaultConfig()
	if cfg.Errors == (qec.ErrorModel{}) {
		cfg.Errors = d.Errors
	} else if cfg.Errors.T1Steps == 0 {
		cfg.Errors.T1Steps = d.Errors.T1Steps
	}
	if cfg.PhaseScale == 0 {
		cfg.PhaseScale = d.PhaseScale
	}
	if cfg.GateEpsilon == 0 {
		cfg.GateEpsilon = d.GateEpsilon
	}
	return cfg
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

// QECConfig returns the base QEC configuration of the client.
func (c *Client) QECConfig() qec.Config {
	return c.qec
}

func (c *Client) RunQEC(ctx context.Context, req QECRequest) (QECSummary, error) {
	if err := ctx.Err(); err != nil {
		return QECSummary{}, err
	}
	pulses, err := resolvePulses(req)
	if err != nil {
		return QECSummary{}, err
	}

	cfg := c.qec
	cfg.Seed = req.Seed
	cfg.Workers = req.Workers
	src := noise.NewPink(c.noise.config(req.NoiseAmp), cfg.Suppression)

	var res qec.Result
	switch req.Code {
	case "", qec.CodeRepetition:
		res, err = qec.SimulateRepetitionCode(cfg, src, req.Distance, pulses, req.NoiseAmp, req.TotalTime, req.MeasureInterval, req.Trials)
	case qec.CodeSurfaceD3:
		res, err = qec.SimulateSurfaceCodeD3(cfg, src, pulses, req.NoiseAmp, req.TotalTime, req.MeasureInterval, req.Trials)
	default:
		return QECSummary{}, fmt.Errorf("%w: unsupported code %q", qec.ErrInvalidConfiguration, req.Code)
	}
	if err != nil {
		return QECSummary{}, err
	}

	summary := QECSummary{Pulses: pulses, Result: res}
	if !req.Persist {
		return summary, nil
	}

	runID := uuid.NewString()
	err = c.store.SaveQECRun(ctx, model.QECRun{
		VersionedRecord:   storage.CurrentVersion(),
		ID:                runID,
		CreatedAtUTC:      c.now(),
		Code:              res.Code,
		Distance:          res.Distance,
		NoiseAmp:          req.NoiseAmp,
		TotalTime:         req.TotalTime,
		MeasureInterval:   req.MeasureInterval,
		Trials:            req.Trials,
		Seed:              req.Seed,
		Pulses:            pulses,
		Errors:            model.ErrorModel(cfg.Errors),
		PhysicalErrorRate: res.PhysicalErrorRate,
		LogicalErrorRate:  res.LogicalErrorRate,
		Gain:              res.Gain,
	})
	if err != nil {
		return QECSummary{}, fmt.Errorf("save qec run: %w", err)
	}
	summary.RunID = runID
	return summary, nil
}

func resolvePulses(req QECRequest) (qec.PulseSequence, error) {
	switch req.Schedule {
	case "", ScheduleExplicit:
		return qec.NormalizePulses(req.Pulses, req.TotalTime), nil
	case ScheduleEven:
		return qec.EvenlySpaced(req.PulseCount, req.TotalTime), nil
	case ScheduleCPMG:
		return qec.CPMG(req.PulseCount, req.TotalTime), nil
	case ScheduleUDD:
		return qec.UDD(req.PulseCount, req.TotalTime), nil
	default:
		return nil, fmt.Errorf("%w: unsupported pulse schedule %q", qec.ErrInvalidConfiguration, req.Schedule)
	}
}

func (c *Client) RunArc(ctx context.Context, req ArcRequest) (ArcSummary, error) {
	if err := ctx.Err(); err != nil {
		return ArcSummary{}, err
	}

	sum, err := arc.Run(req.Config, req.Steps, c.logger, req.Trace)
	if err != nil {
		return ArcSummary{}, err
	}
	out := ArcSummary{Summary: sum}

	if req.Diagnose {
		rows, err := arc.Diagnose(req.Config, arc.DiagnosticScenarios(), req.Steps, req.Workers, c.logger)
		if err != nil {
			return ArcSummary{}, err
		}
		out.Diagnosis = rows
	}
	if !req.Persist {
		return out, nil
	}

	runID := uuid.NewString()
	cfg := req.Config
	stored := sum.Finite()
	err = c.store.SaveArcRun(ctx, model.ArcRun{
		VersionedRecord:  storage.CurrentVersion(),
		ID:               runID,
		CreatedAtUTC:     c.now(),
		ProcessNoise:     cfg.ProcessNoise,
		MeasureNoise:     cfg.MeasureNoise,
		Latency:          cfg.Latency,
		Alpha:            cfg.Alpha,
		Beta:             cfg.Beta,
		DT:               cfg.DT,
		Steps:            sum.Steps,
		Seed:             cfg.Seed,
		Warmup:           sum.Warmup,
		RMSNoise:         stored.RMSNoise,
		RMSResidual:      stored.RMSResidual,
		ResidualMean:     stored.ResidualMean,
		ResidualStdDev:   stored.ResidualStdDev,
		ReductionPercent: stored.ReductionPercent,
		FinalUncertainty: stored.FinalUncertainty,
	})
	if err != nil {
		return ArcSummary{}, fmt.Errorf("save arc run: %w", err)
	}
	if len(out.Diagnosis) > 0 {
		rows := make([]model.DiagnosisRow, 0, len(out.Diagnosis))
		for _, d := range out.Diagnosis {
			ds := d.Summary.Finite()
			rows = append(rows, model.DiagnosisRow{
				VersionedRecord:  storage.CurrentVersion(),
				Label:            d.Label,
				ProcessNoise:     d.ProcessNoise,
				MeasureNoise:     d.MeasureNoise,
				Latency:          d.Latency,
				RMSNoise:         ds.RMSNoise,
				RMSResidual:      ds.RMSResidual,
				ReductionPercent: ds.ReductionPercent,
			})
		}
		if err := c.store.SaveDiagnosis(ctx, runID, rows); err != nil {
			return ArcSummary{}, fmt.Errorf("save diagnosis: %w", err)
		}
	}
	out.RunID = runID
	return out, nil
}

// Runs lists persisted runs, newest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = defaultRunLimit
	}
	if req.Kind != "" && req.Kind != KindQEC && req.Kind != KindArc {
		return nil, fmt.Errorf("unsupported run kind: %s", req.Kind)
	}

	type stamped struct {
		at   time.Time
		item RunItem
	}
	var all []stamped

	if req.Kind == "" || req.Kind == KindQEC {
		runs, err := c.store.ListQECRuns(ctx)
		if err != nil {
			return nil, err
		}
		for _, r := range runs {
			all = append(all, stamped{at: r.CreatedAtUTC, item: RunItem{
				RunID:        r.ID,
				Kind:         KindQEC,
				CreatedAtUTC: r.CreatedAtUTC.Format(time.RFC3339),
				Label:        fmt.Sprintf("%s d=%d amp=%g", r.Code, r.Distance, r.NoiseAmp),
				Seed:         r.Seed,
				Headline:     r.LogicalErrorRate,
			}})
		}
	}
	if req.Kind == "" || req.Kind == KindArc {
		runs, err := c.store.ListArcRuns(ctx)
		if err != nil {
			return nil, err
		}
		for _, r := range runs {
			all = append(all, stamped{at: r.CreatedAtUTC, item: RunItem{
				RunID:        r.ID,
				Kind:         KindArc,
				CreatedAtUTC: r.CreatedAtUTC.Format(time.RFC3339),
				Label:        fmt.Sprintf("pn=%g mn=%g latency=%d", r.ProcessNoise, r.MeasureNoise, r.Latency),
				Seed:         r.Seed,
				Headline:     r.ReductionPercent,
			}})
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].at.After(all[j].at)
	})
	if len(all) > req.Limit {
		all = all[:req.Limit]
	}
	out := make([]RunItem, 0, len(all))
	for _, s := range all {
		out = append(out, s.item)
	}
	return out, nil
}

// Diagnosis returns the residual diagnosis stored with an arc run.
func (c *Client) Diagnosis(ctx context.Context, runID string) ([]model.DiagnosisRow, error) {
	if runID == "" {
		return nil, errors.New("diagnosis requires run id")
	}
	rows, ok, err := c.store.GetDiagnosis(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no diagnosis stored for run %s", runID)
	}
	return rows, nil
}
