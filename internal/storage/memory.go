package storage

import (
	"context"
	"errors"
	"sync"

	"arcqec/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	qecRuns     map[string]model.QECRun
	arcRuns     map[string]model.ArcRun
	diagnoses   map[string][]model.DiagnosisRow
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.qecRuns = make(map[string]model.QECRun)
	s.arcRuns = make(map[string]model.ArcRun)
	s.diagnoses = make(map[string][]model.DiagnosisRow)
	return nil
}

func (s *MemoryStore) SaveQECRun(_ context.Context, run model.QECRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	run.Pulses = append([]int(nil), run.Pulses...)
	s.qecRuns[run.ID] = run
	return nil
}

func (s *MemoryStore) GetQECRun(_ context.Context, id string) (model.QECRun, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.qecRuns[id]
	if ok {
		run.Pulses = append([]int(nil), run.Pulses...)
	}
	return run, ok, nil
}

func (s *MemoryStore) ListQECRuns(_ context.Context) ([]model.QECRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.QECRun, 0, len(s.qecRuns))
	for _, run := range s.qecRuns {
		run.Pulses = append([]int(nil), run.Pulses...)
		out = append(out, run)
	}
	sortQECRuns(out)
	return out, nil
}

func (s *MemoryStore) SaveArcRun(_ context.Context, run model.ArcRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.arcRuns[run.ID] = run
	return nil
}

func (s *MemoryStore) GetArcRun(_ context.Context, id string) (model.ArcRun, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.arcRuns[id]
	return run, ok, nil
}

func (s *MemoryStore) ListArcRuns(_ context.Context) ([]model.ArcRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ArcRun, 0, len(s.arcRuns))
	for _, run := range s.arcRuns {
		out = append(out, run)
	}
	sortArcRuns(out)
	return out, nil
}

func (s *MemoryStore) SaveDiagnosis(_ context.Context, runID string, rows []model.DiagnosisRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.diagnoses[runID] = append([]model.DiagnosisRow(nil), rows...)
	return nil
}

func (s *MemoryStore) GetDiagnosis(_ context.Context, runID string) ([]model.DiagnosisRow, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, ok := s.diagnoses[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]model.DiagnosisRow(nil), rows...), true, nil
}
