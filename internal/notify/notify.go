// Package notify publishes run completion messages to downstream
// consumers.
package notify

import (
	"context"
	"time"
)

// CompletionMessage is the payload published when a run finishes.
type CompletionMessage struct {
	RunID            string    `json:"run_id"`
	Kind             string    `json:"kind"`
	Status           string    `json:"status"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	TotalFiles       int64     `json:"total_files"`
	ProcessedRecords int64     `json:"processed_records"`
	CreatedCount     int64     `json:"created_count"`
	UpdatedCount     int64     `json:"updated_count"`
	SkippedRecords   int64     `json:"skipped_records"`
	ErrorCount       int64     `json:"error_count"`
}

// Notifier delivers completion messages. Implementations must tolerate
// being called once per run at most.
type Notifier interface {
	RunCompleted(ctx context.Context, msg CompletionMessage) error
}

// Noop discards all notifications.
type Noop struct{}

// RunCompleted implements Notifier.
func (Noop) RunCompleted(context.Context, CompletionMessage) error { return nil }
