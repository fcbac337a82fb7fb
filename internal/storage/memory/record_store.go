// Package memory provides in-memory repository implementations for
// tests and single-process local runs.
package memory

import (
	"context"
	"sync"

	"github.com/harvestiq/siteingest/internal/domain"
	"github.com/harvestiq/siteingest/internal/store"
)

// RecordStore keeps reconciled records in a map keyed by normalized URL.
// It applies the same merge policy as the SQL store so pipelines behave
// identically against either backend.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]domain.Record
}

// NewRecordStore returns an empty store.
func NewRecordStore() *RecordStore {
	return &RecordStore{records: make(map[string]domain.Record)}
}

// BulkUpsert implements store.RecordRepository.
func (s *RecordStore) BulkUpsert(ctx context.Context, records []domain.Record) (store.BulkResult, error) {
	var res store.BulkResult
	for _, rec := range records {
		outcome, err := s.UpsertOne(ctx, rec)
		if err != nil {
			return store.BulkResult{}, err
		}
		switch outcome {
		case store.OutcomeCreated:
			res.Created++
		case store.OutcomeUpdated:
			res.Updated++
		}
	}
	return res, nil
}

// UpsertOne implements store.RecordRepository.
func (s *RecordStore) UpsertOne(ctx context.Context, record domain.Record) (store.UpsertOutcome, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.records[record.URL]
	if !ok {
		s.records[record.URL] = record
		return store.OutcomeCreated, nil
	}
	existing.Merge(record)
	s.records[record.URL] = existing
	return store.OutcomeUpdated, nil
}

// GetRecord implements store.RecordRepository.
func (s *RecordStore) GetRecord(_ context.Context, url string) (domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[url]
	if !ok {
		return domain.Record{}, store.ErrNotFound
	}
	rec.Phones = append([]string(nil), rec.Phones...)
	return rec, nil
}

// Len reports the number of stored records.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
