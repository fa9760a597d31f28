package storage

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"arcqec/internal/model"
)

func TestDecodeQECRunFixture(t *testing.T) {
	data := readFixture(t, "qec_run_v1.json")

	run, err := DecodeQECRun(data)
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if run.ID != "qec-run-1" || run.Code != "repetition" || run.Distance != 3 {
		t.Fatalf("unexpected qec run: %+v", run)
	}
	if !reflect.DeepEqual(run.Pulses, []int{0, 33, 66}) {
		t.Fatalf("unexpected pulses: %+v", run.Pulses)
	}
	if run.Errors.T1Steps != 1e5 || run.Errors.MeasError != 0.001 {
		t.Fatalf("unexpected error model: %+v", run.Errors)
	}
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if !run.CreatedAtUTC.Equal(want) {
		t.Fatalf("unexpected created_at: %v", run.CreatedAtUTC)
	}
}

func TestDecodeArcRunFixture(t *testing.T) {
	data := readFixture(t, "arc_run_v1.json")

	run, err := DecodeArcRun(data)
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if run.ID != "arc-run-1" || run.Latency != 2 || run.Warmup != 1000 {
		t.Fatalf("unexpected arc run: %+v", run)
	}
	if run.ReductionPercent != 95.1 {
		t.Fatalf("unexpected reduction: %v", run.ReductionPercent)
	}
}

func TestDecodeRejectsFutureSchema(t *testing.T) {
	data := readFixture(t, "qec_run_v2.json")
	if _, err := DecodeQECRun(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
}

func TestEncodeDecodeDiagnosisChecksEveryRow(t *testing.T) {
	rows := []model.DiagnosisRow{
		{VersionedRecord: CurrentVersion(), Label: "reference", Latency: 2, ReductionPercent: 80},
		{VersionedRecord: CurrentVersion(), Label: "ideal", ReductionPercent: 99},
	}
	data, err := EncodeDiagnosis(rows)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeDiagnosis(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(decoded, rows) {
		t.Fatalf("diagnosis changed: %+v", decoded)
	}

	rows[1].CodecVersion = 0
	data, err = EncodeDiagnosis(rows)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeDiagnosis(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
}

func TestEncodeDecodeQECRunWithoutRelaxation(t *testing.T) {
	run := model.QECRun{
		VersionedRecord: CurrentVersion(),
		ID:              "no-t1",
		Code:            "surface-d3",
		Distance:        3,
		Errors:          model.ErrorModel{T1Steps: math.Inf(1)},
		Gain:            -1,
	}
	data, err := EncodeQECRun(run)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeQECRun(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !math.IsInf(decoded.Errors.T1Steps, 1) || decoded.Errors.GateError != 0 {
		t.Fatalf("unexpected error model: %+v", decoded.Errors)
	}

	run.Errors.T1Steps = 2.5e4
	data, err = EncodeQECRun(run)
	if err != nil {
		t.Fatalf("encode finite: %v", err)
	}
	decoded, err = DecodeQECRun(data)
	if err != nil {
		t.Fatalf("decode finite: %v", err)
	}
	if decoded.Errors.T1Steps != 2.5e4 {
		t.Fatalf("finite T1 changed: %+v", decoded.Errors)
	}
}

func TestDecodeRejectsMalformedPayload(t *testing.T) {
	if _, err := DecodeArcRun([]byte("{")); err == nil {
		t.Fatal("expected decode error")
	}
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()

	data, err := os.ReadFile(fixturePath(name))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return data
}

func fixturePath(name string) string {
	return filepath.Join("..", "..", "testdata", "fixtures", name)
}
