package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/harvestiq/siteingest/internal/domain"
	"github.com/harvestiq/siteingest/internal/store"
)

// FlushResult aggregates the outcome of writing one reconciled batch.
type FlushResult struct {
	Created int64
	Updated int64
	// Failed holds per-record failure messages from the fallback path.
	// A failed record is counted nowhere else.
	Failed []string
}

// Upserter writes reconciled batches through a RecordRepository. The
// fast path is a single bulk round trip; on a duplicate-key failure the
// batch splits into per-record upserts so one bad record cannot sink
// its batchmates.
type Upserter struct {
	repo   store.RecordRepository
	logger *zap.Logger
}

// NewUpserter wires an Upserter over repo.
func NewUpserter(repo store.RecordRepository, logger *zap.Logger) *Upserter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Upserter{repo: repo, logger: logger}
}

// Flush persists records. Bulk failures that wrap store.ErrDuplicateKey
// retry record by record; any other bulk error is returned as-is and
// aborts the run.
func (u *Upserter) Flush(ctx context.Context, records []domain.Record) (FlushResult, error) {
	if len(records) == 0 {
		return FlushResult{}, nil
	}

	res, err := u.repo.BulkUpsert(ctx, records)
	if err == nil {
		return FlushResult{Created: res.Created, Updated: res.Updated}, nil
	}
	if !errors.Is(err, store.ErrDuplicateKey) {
		return FlushResult{}, newError(KindIO, fmt.Errorf("bulk upsert of %d records: %w", len(records), err))
	}

	u.logger.Warn("bulk upsert hit duplicate key, retrying per record",
		zap.Int("batch_size", len(records)),
		zap.Error(err),
	)
	return u.flushOneByOne(ctx, records)
}

func (u *Upserter) flushOneByOne(ctx context.Context, records []domain.Record) (FlushResult, error) {
	var out FlushResult
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return out, newError(KindTimeout, err)
		}
		outcome, err := u.repo.UpsertOne(ctx, rec)
		if err != nil {
			u.logger.Error("record upsert failed",
				zap.String("site", rec.URL),
				zap.Error(err),
			)
			out.Failed = append(out.Failed, fmt.Sprintf("%s: %v", rec.URL, err))
			continue
		}
		switch outcome {
		case store.OutcomeCreated:
			out.Created++
		case store.OutcomeUpdated:
			out.Updated++
		}
	}
	return out, nil
}
