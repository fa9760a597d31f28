package storage

import (
	"encoding/json"
	"errors"
	"sort"

	"arcqec/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// CurrentVersion is the version stamp new records are written with.
func CurrentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeQECRun(r model.QECRun) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeQECRun(data []byte) (model.QECRun, error) {
	var run model.QECRun
	if err := json.Unmarshal(data, &run); err != nil {
		return model.QECRun{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.QECRun{}, err
	}
	return run, nil
}

func EncodeArcRun(r model.ArcRun) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeArcRun(data []byte) (model.ArcRun, error) {
	var run model.ArcRun
	if err := json.Unmarshal(data, &run); err != nil {
		return model.ArcRun{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.ArcRun{}, err
	}
	return run, nil
}

func EncodeDiagnosis(rows []model.DiagnosisRow) ([]byte, error) {
	return json.Marshal(rows)
}

func DecodeDiagnosis(data []byte) ([]model.DiagnosisRow, error) {
	var rows []model.DiagnosisRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := checkVersion(row.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}

// sortQECRuns orders runs oldest first, breaking ties by ID.
func sortQECRuns(runs []model.QECRun) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAtUTC.Equal(runs[j].CreatedAtUTC) {
			return runs[i].CreatedAtUTC.Before(runs[j].CreatedAtUTC)
		}
		return runs[i].ID < runs[j].ID
	})
}

func sortArcRuns(runs []model.ArcRun) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAtUTC.Equal(runs[j].CreatedAtUTC) {
			return runs[i].CreatedAtUTC.Before(runs[j].CreatedAtUTC)
		}
		return runs[i].ID < runs[j].ID
	})
}
