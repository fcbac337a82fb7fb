package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harvestiq/siteingest/internal/store"
)

// RunStore keeps the run audit trail in memory.
type RunStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]store.RunRecord
}

// NewRunStore returns an empty run history store.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[uuid.UUID]store.RunRecord)}
}

// UpsertRunStart implements store.RunHistoryRepository.
func (s *RunStore) UpsertRunStart(_ context.Context, runID uuid.UUID, kind string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[runID]
	if !ok {
		rec = store.RunRecord{ID: runID, Kind: kind, StartedAt: startedAt, Status: store.RunRunning}
	}
	s.runs[runID] = rec
	return nil
}

// UpdateRunCounters implements store.RunHistoryRepository.
func (s *RunStore) UpdateRunCounters(_ context.Context, runID uuid.UUID, counters store.RunCounters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	rec.Counters = counters
	s.runs[runID] = rec
	return nil
}

// CompleteRun implements store.RunHistoryRepository.
func (s *RunStore) CompleteRun(_ context.Context, runID uuid.UUID, finishedAt time.Time, status store.RunStatus, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	rec.FinishedAt = &finishedAt
	rec.Status = status
	rec.ErrorMessage = errMsg
	s.runs[runID] = rec
	return nil
}

// GetRun implements store.RunHistoryRepository.
func (s *RunStore) GetRun(_ context.Context, runID uuid.UUID) (store.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[runID]
	if !ok {
		return store.RunRecord{}, store.ErrNotFound
	}
	return rec, nil
}

// ListRuns implements store.RunHistoryRepository. Runs sort newest
// first by start time.
func (s *RunStore) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.RunRecord, 0, len(s.runs))
	for _, rec := range s.runs {
		if status != nil && rec.Status != *status {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
