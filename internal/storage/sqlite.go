//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"arcqec/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveQECRun(ctx context.Context, run model.QECRun) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeQECRun(run)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO qec_runs (id, code, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, run.ID, run.Code, run.SchemaVersion, run.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetQECRun(ctx context.Context, id string) (model.QECRun, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.QECRun{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM qec_runs WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.QECRun{}, false, nil
		}
		return model.QECRun{}, false, err
	}

	run, err := DecodeQECRun(payload)
	if err != nil {
		return model.QECRun{}, false, fmt.Errorf("decode qec run %s: %w", id, err)
	}
	return run, true, nil
}

func (s *SQLiteStore) ListQECRuns(ctx context.Context) ([]model.QECRun, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	payloads, err := queryPayloads(ctx, db, `SELECT id, payload FROM qec_runs`)
	if err != nil {
		return nil, err
	}
	out := make([]model.QECRun, 0, len(payloads))
	for id, payload := range payloads {
		run, err := DecodeQECRun(payload)
		if err != nil {
			return nil, fmt.Errorf("decode qec run %s: %w", id, err)
		}
		out = append(out, run)
	}
	sortQECRuns(out)
	return out, nil
}

func (s *SQLiteStore) SaveArcRun(ctx context.Context, run model.ArcRun) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeArcRun(run)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO arc_runs (id, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, run.ID, run.SchemaVersion, run.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetArcRun(ctx context.Context, id string) (model.ArcRun, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.ArcRun{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM arc_runs WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ArcRun{}, false, nil
		}
		return model.ArcRun{}, false, err
	}

	run, err := DecodeArcRun(payload)
	if err != nil {
		return model.ArcRun{}, false, fmt.Errorf("decode arc run %s: %w", id, err)
	}
	return run, true, nil
}

func (s *SQLiteStore) ListArcRuns(ctx context.Context) ([]model.ArcRun, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	payloads, err := queryPayloads(ctx, db, `SELECT id, payload FROM arc_runs`)
	if err != nil {
		return nil, err
	}
	out := make([]model.ArcRun, 0, len(payloads))
	for id, payload := range payloads {
		run, err := DecodeArcRun(payload)
		if err != nil {
			return nil, fmt.Errorf("decode arc run %s: %w", id, err)
		}
		out = append(out, run)
	}
	sortArcRuns(out)
	return out, nil
}

func (s *SQLiteStore) SaveDiagnosis(ctx context.Context, runID string, rows []model.DiagnosisRow) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeDiagnosis(rows)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO diagnoses (run_id, payload)
		VALUES (?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			payload = excluded.payload
	`, runID, payload)
	return err
}

func (s *SQLiteStore) GetDiagnosis(ctx context.Context, runID string) ([]model.DiagnosisRow, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM diagnoses WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	rows, err := DecodeDiagnosis(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode diagnosis %s: %w", runID, err)
	}
	return rows, true, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}

func queryPayloads(ctx context.Context, db *sql.DB, query string) (map[string][]byte, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		out[id] = payload
	}
	return out, rows.Err()
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS qec_runs (
			id TEXT PRIMARY KEY,
			code TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS arc_runs (
			id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS diagnoses (
			run_id TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);
	`)
	return err
}
