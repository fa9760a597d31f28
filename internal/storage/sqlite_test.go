//go:build sqlite

package storage

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"arcqec/internal/model"
)

func TestSQLiteStoreRunsRoundTrip(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "arcqec.db")

	store := NewSQLiteStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	qecRun := model.QECRun{
		VersionedRecord: CurrentVersion(),
		ID:              "q1",
		CreatedAtUTC:    created,
		Code:            "repetition",
		Distance:        3,
		Pulses:          []int{0, 10, 20},
		Errors:          model.ErrorModel{T1Steps: 1e5, GateError: 1e-3, MeasError: 1e-3},
		Gain:            -1,
	}
	if err := store.SaveQECRun(ctx, qecRun); err != nil {
		t.Fatalf("save qec run: %v", err)
	}
	qecRun.Distance = 5
	if err := store.SaveQECRun(ctx, qecRun); err != nil {
		t.Fatalf("upsert qec run: %v", err)
	}

	loaded, ok, err := store.GetQECRun(ctx, "q1")
	if err != nil {
		t.Fatalf("get qec run: %v", err)
	}
	if !ok {
		t.Fatal("expected qec run q1")
	}
	if loaded.Distance != 5 || len(loaded.Pulses) != 3 || !loaded.CreatedAtUTC.Equal(created) {
		t.Fatalf("unexpected qec run loaded: %+v", loaded)
	}

	runs, err := store.ListQECRuns(ctx)
	if err != nil {
		t.Fatalf("list qec runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected one qec run after upsert, got %d", len(runs))
	}

	arcRun := model.ArcRun{VersionedRecord: CurrentVersion(), ID: "r1", CreatedAtUTC: created, Steps: 5000, ReductionPercent: 88}
	if err := store.SaveArcRun(ctx, arcRun); err != nil {
		t.Fatalf("save arc run: %v", err)
	}
	arcRuns, err := store.ListArcRuns(ctx)
	if err != nil {
		t.Fatalf("list arc runs: %v", err)
	}
	if len(arcRuns) != 1 || arcRuns[0].Steps != 5000 {
		t.Fatalf("unexpected arc runs: %+v", arcRuns)
	}

	rows := []model.DiagnosisRow{
		{VersionedRecord: CurrentVersion(), Label: "reference", Latency: 2},
		{VersionedRecord: CurrentVersion(), Label: "ideal"},
	}
	if err := store.SaveDiagnosis(ctx, "r1", rows); err != nil {
		t.Fatalf("save diagnosis: %v", err)
	}
	loadedRows, ok, err := store.GetDiagnosis(ctx, "r1")
	if err != nil || !ok {
		t.Fatalf("get diagnosis: ok=%v err=%v", ok, err)
	}
	if len(loadedRows) != 2 || loadedRows[1].Label != "ideal" {
		t.Fatalf("unexpected diagnosis: %+v", loadedRows)
	}
}

func TestSQLiteStoreKeepsUnboundedT1(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "arcqec.db"))
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	run := model.QECRun{
		VersionedRecord: CurrentVersion(),
		ID:              "inf",
		CreatedAtUTC:    time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Code:            "repetition",
		Distance:        3,
		Errors:          model.ErrorModel{T1Steps: math.Inf(1)},
		Gain:            -1,
	}
	if err := store.SaveQECRun(ctx, run); err != nil {
		t.Fatalf("save qec run: %v", err)
	}
	loaded, ok, err := store.GetQECRun(ctx, "inf")
	if err != nil || !ok {
		t.Fatalf("get qec run: ok=%v err=%v", ok, err)
	}
	if !math.IsInf(loaded.Errors.T1Steps, 1) {
		t.Fatalf("unexpected T1: %v", loaded.Errors.T1Steps)
	}
}

func TestSQLiteStoreMissingRecords(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "arcqec.db"))
	if _, _, err := store.GetArcRun(ctx, "nope"); err == nil {
		t.Fatal("expected error before init")
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	if _, ok, err := store.GetArcRun(ctx, "nope"); err != nil || ok {
		t.Fatalf("expected missing arc run, ok=%v err=%v", ok, err)
	}
	if _, ok, err := store.GetDiagnosis(ctx, "nope"); err != nil || ok {
		t.Fatalf("expected missing diagnosis, ok=%v err=%v", ok, err)
	}
}

func TestNewStoreSQLite(t *testing.T) {
	store, err := NewStore("sqlite", filepath.Join(t.TempDir(), "factory.db"))
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := CloseIfSupported(store); err != nil {
		t.Fatalf("close: %v", err)
	}
}
