package sinks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harvestiq/siteingest/internal/progress"
	"github.com/harvestiq/siteingest/internal/store"
)

// StoreSink persists run milestones via a store.RunHistoryRepository.
// Counter updates are collapsed to the latest snapshot per run within a
// batch to reduce write amplification.
type StoreSink struct {
	repo   store.RunHistoryRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunHistoryRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume forwards run lifecycle events to the repository and applies
// the newest counter snapshot per run once per batch. It respects ctx
// deadlines and returns repository errors verbatim.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	latest := make(map[uuid.UUID]progress.Totals)

	for _, evt := range batch {
		runID := evt.RunUUID()
		switch evt.Stage {
		case progress.StageRunStart:
			if err := s.repo.UpsertRunStart(ctx, runID, string(evt.Kind), evt.TS); err != nil {
				return fmt.Errorf("upsert run start: %w", err)
			}
		case progress.StageBatchFlush, progress.StageFileDone:
			latest[runID] = evt.Totals
		case progress.StageRunDone, progress.StageRunError, progress.StageRunStopped:
			latest[runID] = evt.Totals
			if err := s.completeRun(ctx, runID, evt); err != nil {
				return err
			}
		}
	}

	for runID, totals := range latest {
		if err := s.repo.UpdateRunCounters(ctx, runID, toCounters(totals)); err != nil {
			return fmt.Errorf("update run counters: %w", err)
		}
	}
	return nil
}

func (s *StoreSink) completeRun(ctx context.Context, runID uuid.UUID, evt progress.Event) error {
	status := store.RunSuccess
	switch evt.Stage {
	case progress.StageRunError:
		status = store.RunError
	case progress.StageRunStopped:
		status = store.RunStopped
	}
	var note *string
	if evt.Note != "" {
		note = &evt.Note
	}
	if err := s.repo.CompleteRun(ctx, runID, evt.TS, status, note); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

func toCounters(t progress.Totals) store.RunCounters {
	return store.RunCounters{
		TotalFiles:       t.Files,
		CompletedFiles:   t.FilesDone,
		ProcessedRecords: t.Records,
		CreatedCount:     t.Created,
		UpdatedCount:     t.Updated,
		ErrorCount:       t.Errors,
	}
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
