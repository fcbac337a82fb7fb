// Package progress defines the event stream emitted by ingestion runs
// and the hub that fans it out to sinks.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind names the logical run type an event belongs to.
type Kind string

// Supported run kinds.
const (
	KindImport    Kind = "import"
	KindBlacklist Kind = "blacklist"
	KindPhone     Kind = "phone"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart   Stage = "RUN_START"
	StageBatchFlush Stage = "BATCH_FLUSH"
	StageFileDone   Stage = "FILE_DONE"
	StageRunDone    Stage = "RUN_DONE"
	StageRunError   Stage = "RUN_ERROR"
	StageRunStopped Stage = "RUN_STOPPED"
)

// Totals is the cumulative counter snapshot carried on every event after
// RUN_START. Values are monotonically non-decreasing within one run.
type Totals struct {
	Files     int64
	FilesDone int64
	Records   int64
	Created   int64
	Updated   int64
	Skipped   int64
	Errors    int64
}

// Event captures a single ingestion progress milestone.
type Event struct {
	// RunID uniquely identifies a run using the 16-byte UUID form.
	RunID [16]byte
	// Kind is the run type (import/blacklist/phone).
	Kind Kind
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// File optionally names the source file for flush/file events.
	File string
	// DeltaRecords/DeltaCreated/DeltaUpdated/DeltaSkipped carry the
	// increment represented by this event, for counter-style sinks.
	DeltaRecords int64
	DeltaCreated int64
	DeltaUpdated int64
	DeltaSkipped int64
	// Totals is the cumulative run snapshot at emit time.
	Totals Totals
	// Dur captures run wall time on terminal events.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindImport, KindBlacklist, KindPhone:
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError, StageRunStopped:
	case StageBatchFlush, StageFileDone:
		if e.File == "" {
			return fmt.Errorf("%s requires file", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Terminal reports whether the event closes out its run.
func (e Event) Terminal() bool {
	switch e.Stage {
	case StageRunDone, StageRunError, StageRunStopped:
		return true
	default:
		return false
	}
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
