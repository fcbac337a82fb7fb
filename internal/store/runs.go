package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RunStatus mirrors the ingest_runs status column.
type RunStatus string

// Run statuses persisted in ingest_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
	RunStopped RunStatus = "stopped"
)

// RunCounters carries the cumulative totals persisted for a run.
type RunCounters struct {
	TotalFiles       int64
	CompletedFiles   int64
	ProcessedRecords int64
	CreatedCount     int64
	UpdatedCount     int64
	ErrorCount       int64
}

// RunRecord models the ingest_runs table for API responses.
type RunRecord struct {
	// ID is the run identifier shared with the in-process registry.
	ID uuid.UUID
	// Kind is import, blacklist, or phone.
	Kind string
	// StartedAt captures when the run was first marked running.
	StartedAt time.Time
	// FinishedAt is nil until the run reaches a terminal status.
	FinishedAt *time.Time
	// Status is running/success/error/stopped.
	Status RunStatus
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string
	// Counters holds the last reported totals.
	Counters RunCounters
}

// RunHistoryRepository persists the durable audit trail of ingestion
// runs. It backs the store progress sink; the live snapshots observers
// poll come from the in-process registry, not from here.
type RunHistoryRepository interface {
	// UpsertRunStart inserts (or idempotently updates) the run row in
	// running status.
	UpsertRunStart(ctx context.Context, runID uuid.UUID, kind string, startedAt time.Time) error
	// UpdateRunCounters applies the latest cumulative totals.
	UpdateRunCounters(ctx context.Context, runID uuid.UUID, counters RunCounters) error
	// CompleteRun marks the run finished with the provided status and
	// optional error text.
	CompleteRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, errMsg *string) error
	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (RunRecord, error)
	// ListRuns returns runs filtered by optional status plus limit/offset.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]RunRecord, error)
}
