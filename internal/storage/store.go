package storage

import (
	"context"

	"arcqec/internal/model"
)

// Store persists QEC and closed-loop run summaries.
type Store interface {
	Init(ctx context.Context) error
	SaveQECRun(ctx context.Context, run model.QECRun) error
	GetQECRun(ctx context.Context, id string) (model.QECRun, bool, error)
	ListQECRuns(ctx context.Context) ([]model.QECRun, error)
	SaveArcRun(ctx context.Context, run model.ArcRun) error
	GetArcRun(ctx context.Context, id string) (model.ArcRun, bool, error)
	ListArcRuns(ctx context.Context) ([]model.ArcRun, error)
	SaveDiagnosis(ctx context.Context, runID string, rows []model.DiagnosisRow) error
	GetDiagnosis(ctx context.Context, runID string) ([]model.DiagnosisRow, bool, error)
}
