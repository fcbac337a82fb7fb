// Package store declares the persistence interfaces for reconciled web
// records and the durable run audit trail.
package store

import (
	"context"
	"errors"

	"github.com/harvestiq/siteingest/internal/domain"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateKey classifies uniqueness-constraint failures so callers
// can switch to per-item fallback without sniffing driver error strings.
// Implementations wrap it; discriminate with errors.Is.
var ErrDuplicateKey = errors.New("duplicate key")

// UpsertOutcome reports whether an upsert inserted a new document or
// modified an existing one.
type UpsertOutcome string

// Upsert outcomes.
const (
	OutcomeCreated UpsertOutcome = "created"
	OutcomeUpdated UpsertOutcome = "updated"
)

// BulkResult aggregates the outcomes of one bulk upsert call.
type BulkResult struct {
	Created int64
	Updated int64
}

// RecordRepository persists reconciled records keyed by normalized URL.
// All write paths are upsert-idempotent: the stored scalar fields keep
// their first non-empty value, the blacklist flag is monotonic, the date
// keeps its maximum, and phones are unioned and capped.
type RecordRepository interface {
	// BulkUpsert writes the batch in one round trip. The batch must
	// already be deduplicated by URL; an intra-batch duplicate or a
	// uniqueness violation surfaces as an error wrapping
	// ErrDuplicateKey with no partial counts.
	BulkUpsert(ctx context.Context, records []domain.Record) (BulkResult, error)
	// UpsertOne writes a single record, used as the fallback path when
	// a bulk call splits.
	UpsertOne(ctx context.Context, record domain.Record) (UpsertOutcome, error)
	// GetRecord loads one record by normalized URL or ErrNotFound.
	GetRecord(ctx context.Context, url string) (domain.Record, error)
}
