// Package sinks provides progress.Sink implementations: structured
// logging, Prometheus collectors, and the durable run-history store.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/harvestiq/siteingest/internal/progress"
)

// LogSink emits structured logs for debugging progress streams. It is
// useful during development or audits where a durable store is
// unavailable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.logger.Info("progress event",
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("kind", string(evt.Kind)),
			zap.String("stage", string(evt.Stage)),
			zap.String("file", evt.File),
			zap.Int64("records", evt.Totals.Records),
			zap.Int64("created", evt.Totals.Created),
			zap.Int64("updated", evt.Totals.Updated),
			zap.Int64("skipped", evt.Totals.Skipped),
			zap.Int64("errors", evt.Totals.Errors),
			zap.Duration("dur", evt.Dur),
			zap.String("note", evt.Note),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
