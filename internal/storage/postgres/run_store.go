package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harvestiq/siteingest/internal/store"
)

// RunStore implements store.RunHistoryRepository using Postgres.
type RunStore struct {
	pool dbPool
}

// NewRunStore creates a new RunStore from a DSN.
func NewRunStore(ctx context.Context, dsn string) (*RunStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	return &RunStore{pool: pool}, nil
}

// NewRunStoreWithPool wraps an existing pool, for tests and for sharing
// one pool between stores.
func NewRunStoreWithPool(pool dbPool) *RunStore {
	return &RunStore{pool: pool}
}

// Close closes the underlying connection pool.
func (s *RunStore) Close() {
	s.pool.Close()
}

// EnsureSchema creates the ingest_runs table when it does not exist.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS ingest_runs (
			id                UUID PRIMARY KEY,
			kind              TEXT NOT NULL,
			started_at        TIMESTAMPTZ NOT NULL,
			finished_at       TIMESTAMPTZ,
			status            TEXT NOT NULL,
			error_message     TEXT,
			total_files       BIGINT NOT NULL DEFAULT 0,
			completed_files   BIGINT NOT NULL DEFAULT 0,
			processed_records BIGINT NOT NULL DEFAULT 0,
			created_count     BIGINT NOT NULL DEFAULT 0,
			updated_count     BIGINT NOT NULL DEFAULT 0,
			error_count       BIGINT NOT NULL DEFAULT 0
		);
	`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure ingest_runs schema: %w", err)
	}
	return nil
}

// UpsertRunStart inserts the run row in running status; replays of the
// start event are idempotent.
func (s *RunStore) UpsertRunStart(ctx context.Context, runID uuid.UUID, kind string, startedAt time.Time) error {
	query := `
		INSERT INTO ingest_runs (id, kind, started_at, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING;
	`
	if _, err := s.pool.Exec(ctx, query, runID, kind, startedAt, store.RunRunning); err != nil {
		return fmt.Errorf("upsert run start: %w", err)
	}
	return nil
}

// UpdateRunCounters applies the latest cumulative totals.
func (s *RunStore) UpdateRunCounters(ctx context.Context, runID uuid.UUID, c store.RunCounters) error {
	query := `
		UPDATE ingest_runs
		SET total_files = $1, completed_files = $2, processed_records = $3,
			created_count = $4, updated_count = $5, error_count = $6
		WHERE id = $7;
	`
	if _, err := s.pool.Exec(ctx, query,
		c.TotalFiles, c.CompletedFiles, c.ProcessedRecords,
		c.CreatedCount, c.UpdatedCount, c.ErrorCount, runID); err != nil {
		return fmt.Errorf("update run counters: %w", err)
	}
	return nil
}

// CompleteRun marks a run finished with a status and optional error
// message.
func (s *RunStore) CompleteRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status store.RunStatus, errMsg *string) error {
	query := `
		UPDATE ingest_runs
		SET finished_at = $1, status = $2, error_message = $3
		WHERE id = $4;
	`
	if _, err := s.pool.Exec(ctx, query, finishedAt, status, errMsg, runID); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

const runSelectColumns = `id, kind, started_at, finished_at, status, error_message,
	total_files, completed_files, processed_records, created_count, updated_count, error_count`

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.RunRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM ingest_runs WHERE id = $1;`, runSelectColumns)
	var run store.RunRecord
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID, &run.Kind, &run.StartedAt, &run.FinishedAt,
		&run.Status, &run.ErrorMessage,
		&run.Counters.TotalFiles, &run.Counters.CompletedFiles,
		&run.Counters.ProcessedRecords, &run.Counters.CreatedCount,
		&run.Counters.UpdatedCount, &run.Counters.ErrorCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.RunRecord{}, store.ErrNotFound
		}
		return store.RunRecord{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first, with optional status filtering.
func (s *RunStore) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.RunRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM ingest_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;
	`, runSelectColumns)
	rows, err := s.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.RunRecord
	for rows.Next() {
		var run store.RunRecord
		err := rows.Scan(
			&run.ID, &run.Kind, &run.StartedAt, &run.FinishedAt,
			&run.Status, &run.ErrorMessage,
			&run.Counters.TotalFiles, &run.Counters.CompletedFiles,
			&run.Counters.ProcessedRecords, &run.Counters.CreatedCount,
			&run.Counters.UpdatedCount, &run.Counters.ErrorCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}
