package ingest

import (
	"go.uber.org/zap"

	"github.com/harvestiq/siteingest/internal/domain"
)

// Batch accumulates row fragments and reconciles them by URL before a
// flush. Insertion order is preserved so a flush writes records in the
// order their URLs first appeared in the stream.
type Batch struct {
	logger  *zap.Logger
	byURL   map[string]int
	records []domain.Record
}

// NewBatch returns an empty batch sized for the given flush threshold.
func NewBatch(logger *zap.Logger, sizeHint int) *Batch {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Batch{
		logger:  logger,
		byURL:   make(map[string]int, sizeHint),
		records: make([]domain.Record, 0, sizeHint),
	}
}

// Add folds one fragment into the batch. Fragments for a URL already in
// the batch merge under the reconciliation policy; new URLs append.
func (b *Batch) Add(rec domain.Record) {
	if i, ok := b.byURL[rec.URL]; ok {
		existing := &b.records[i]
		merged, dropped := domain.MergePhonesDropped(existing.Phones, rec.Phones)
		if dropped > 0 {
			b.logger.Info("phone list at capacity, dropping numbers",
				zap.String("site", rec.URL),
				zap.Int("dropped", dropped),
			)
		}
		existing.Merge(rec)
		existing.Phones = merged
		return
	}
	b.byURL[rec.URL] = len(b.records)
	b.records = append(b.records, rec)
}

// Len reports the number of distinct URLs in the batch.
func (b *Batch) Len() int {
	return len(b.records)
}

// Drain returns the reconciled records and resets the batch for reuse.
func (b *Batch) Drain() []domain.Record {
	out := b.records
	b.records = make([]domain.Record, 0, cap(out))
	clear(b.byURL)
	return out
}
