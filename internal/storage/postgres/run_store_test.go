package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/harvestiq/siteingest/internal/store"
)

func TestUpsertRunStartInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewRunStoreWithPool(mock)
	runID := uuid.New()
	started := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("INSERT INTO ingest_runs").
		WithArgs(runID, "import", started, store.RunRunning).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertRunStart(context.Background(), runID, "import", started))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRunCounters(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewRunStoreWithPool(mock)
	runID := uuid.New()
	counters := store.RunCounters{
		TotalFiles:       3,
		CompletedFiles:   1,
		ProcessedRecords: 1500,
		CreatedCount:     900,
		UpdatedCount:     600,
		ErrorCount:       2,
	}

	mock.ExpectExec("UPDATE ingest_runs").
		WithArgs(int64(3), int64(1), int64(1500), int64(900), int64(600), int64(2), runID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.UpdateRunCounters(context.Background(), runID, counters))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteRunStoresStatusAndError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewRunStoreWithPool(mock)
	runID := uuid.New()
	finished := time.Unix(1700003600, 0).UTC()
	msg := "stopped by user"

	mock.ExpectExec("UPDATE ingest_runs").
		WithArgs(finished, store.RunStopped, &msg, runID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.CompleteRun(context.Background(), runID, finished, store.RunStopped, &msg))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewRunStoreWithPool(mock)

	mock.ExpectQuery("SELECT .* FROM ingest_runs").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err = s.GetRun(context.Background(), uuid.New())
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRunsScansRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewRunStoreWithPool(mock)
	runID := uuid.New()
	started := time.Unix(1700000000, 0).UTC()

	rows := pgxmock.NewRows([]string{
		"id", "kind", "started_at", "finished_at", "status", "error_message",
		"total_files", "completed_files", "processed_records",
		"created_count", "updated_count", "error_count",
	}).AddRow(runID, "import", started, (*time.Time)(nil), store.RunRunning, (*string)(nil),
		int64(2), int64(0), int64(0), int64(0), int64(0), int64(0))

	mock.ExpectQuery("SELECT .* FROM ingest_runs").
		WithArgs((*store.RunStatus)(nil), 50, 0).
		WillReturnRows(rows)

	got, err := s.ListRuns(context.Background(), nil, 50, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, runID, got[0].ID)
	require.Equal(t, int64(2), got[0].Counters.TotalFiles)
	require.NoError(t, mock.ExpectationsWereMet())
}
