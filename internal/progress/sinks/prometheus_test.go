package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/harvestiq/siteingest/internal/progress"
)

func TestPrometheusSinkCountsDeltas(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)
	runID := uuid.New()

	flush := event(runID, progress.StageBatchFlush, progress.Totals{Records: 5, Skipped: 2})
	flush.DeltaRecords = 5
	flush.DeltaCreated = 3
	flush.DeltaUpdated = 2
	flush.DeltaSkipped = 2

	batch := []progress.Event{
		event(runID, progress.StageRunStart, progress.Totals{Files: 1}),
		flush,
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, float64(1), testutil.ToFloat64(sink.runsStarted.WithLabelValues("import")))
	require.Equal(t, float64(1), testutil.ToFloat64(sink.runsRunning))
	require.Equal(t, float64(5), testutil.ToFloat64(sink.recordsProcessed.WithLabelValues("import")))
	require.Equal(t, float64(2), testutil.ToFloat64(sink.recordsSkipped.WithLabelValues("import")))
	require.Equal(t, float64(3), testutil.ToFloat64(sink.upserts.WithLabelValues("import", "created")))
	require.Equal(t, float64(2), testutil.ToFloat64(sink.upserts.WithLabelValues("import", "updated")))
	require.Equal(t, float64(1), testutil.ToFloat64(sink.batchesFlushed.WithLabelValues("import")))
}

func TestPrometheusSinkTracksRunCompletion(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)
	runID := uuid.New()

	done := event(runID, progress.StageRunDone, progress.Totals{Files: 1, FilesDone: 1})
	done.Dur = 3 * time.Second

	batch := []progress.Event{
		event(runID, progress.StageRunStart, progress.Totals{Files: 1}),
		done,
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, float64(1), testutil.ToFloat64(sink.runsCompleted.WithLabelValues("import", "success")))
	require.Zero(t, testutil.ToFloat64(sink.runsRunning))
}
