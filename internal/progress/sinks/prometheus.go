package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/harvestiq/siteingest/internal/progress"
)

// PrometheusSink exports ingestion progress metrics via Prometheus. It
// owns all collectors for runs started/completed/running plus record and
// batch counters.
type PrometheusSink struct {
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	recordsProcessed *prometheus.CounterVec
	recordsSkipped   *prometheus.CounterVec
	upserts          *prometheus.CounterVec
	batchesFlushed   *prometheus.CounterVec
	filesCompleted   *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided
// registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "siteingest_runs_started_total",
			Help: "Total ingestion runs that have started, by kind.",
		}, []string{"kind"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "siteingest_runs_completed_total",
			Help: "Total ingestion runs completed, by kind and result.",
		}, []string{"kind", "result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "siteingest_runs_running",
			Help: "Current number of running ingestion runs.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "siteingest_run_duration_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"kind", "result"}),
		recordsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "siteingest_records_processed_total",
			Help: "Rows accepted by the parser, by run kind.",
		}, []string{"kind"}),
		recordsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "siteingest_records_skipped_total",
			Help: "Rows skipped by validation or parse errors, by run kind.",
		}, []string{"kind"}),
		upserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "siteingest_record_upserts_total",
			Help: "Documents written to the store, by run kind and outcome.",
		}, []string{"kind", "outcome"}),
		batchesFlushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "siteingest_batches_flushed_total",
			Help: "Batches flushed through the upsert engine, by run kind.",
		}, []string{"kind"}),
		filesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "siteingest_files_completed_total",
			Help: "Source files fully processed and archived, by run kind.",
		}, []string{"kind"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runDuration,
		s.recordsProcessed,
		s.recordsSkipped,
		s.upserts,
		s.batchesFlushed,
		s.filesCompleted,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It
// is safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	kind := string(evt.Kind)
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.WithLabelValues(kind).Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StageBatchFlush:
		s.batchesFlushed.WithLabelValues(kind).Inc()
		s.observeDeltas(kind, evt)
	case progress.StageFileDone:
		s.filesCompleted.WithLabelValues(kind).Inc()
		s.observeDeltas(kind, evt)
	case progress.StageRunDone:
		s.completeRun(kind, "success", evt)
	case progress.StageRunError:
		s.completeRun(kind, "error", evt)
	case progress.StageRunStopped:
		s.completeRun(kind, "stopped", evt)
	}
}

func (s *PrometheusSink) observeDeltas(kind string, evt progress.Event) {
	if evt.DeltaRecords > 0 {
		s.recordsProcessed.WithLabelValues(kind).Add(float64(evt.DeltaRecords))
	}
	if evt.DeltaSkipped > 0 {
		s.recordsSkipped.WithLabelValues(kind).Add(float64(evt.DeltaSkipped))
	}
	if evt.DeltaCreated > 0 {
		s.upserts.WithLabelValues(kind, "created").Add(float64(evt.DeltaCreated))
	}
	if evt.DeltaUpdated > 0 {
		s.upserts.WithLabelValues(kind, "updated").Add(float64(evt.DeltaUpdated))
	}
}

func (s *PrometheusSink) completeRun(kind, result string, evt progress.Event) {
	s.runsCompleted.WithLabelValues(kind, result).Inc()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(kind, result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
