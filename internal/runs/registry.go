// Package runs tracks the live state of ingestion runs: one process-wide
// import slot plus keyed blacklist/phone runs. The owning pipeline
// mutates a run through its Handle; everyone else sees copy-on-read
// snapshots or a subscription channel.
package runs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind names the logical run type.
type Kind string

// Supported run kinds.
const (
	KindImport    Kind = "import"
	KindBlacklist Kind = "blacklist"
	KindPhone     Kind = "phone"
)

// ErrAlreadyRunning is returned when a second import is started while
// one is still in flight. It surfaces to callers as a conflict, never a
// queue.
var ErrAlreadyRunning = errors.New("import run already in progress")

// ErrRunNotFound is returned for lookups of unknown or swept run IDs.
var ErrRunNotFound = errors.New("run not found")

const (
	// completedRetention is how long a normally-completed keyed run
	// stays visible before the sweeper reclaims it.
	completedRetention = time.Hour
	// maxRetention bounds memory growth even if a run never completes
	// cleanly.
	maxRetention = 24 * time.Hour

	subscriberBuffer = 8
)

// Snapshot is the immutable progress view handed to observers.
type Snapshot struct {
	RunID            string    `json:"run_id"`
	Kind             Kind      `json:"kind"`
	TotalFiles       int64     `json:"total_files"`
	CompletedFiles   int64     `json:"completed_files"`
	ProcessedRecords int64     `json:"processed_records"`
	CreatedCount     int64     `json:"created_count"`
	UpdatedCount     int64     `json:"updated_count"`
	SkippedRecords   int64     `json:"skipped_records"`
	Errors           []string  `json:"errors"`
	CurrentFile      string    `json:"current_file"`
	IsRunning        bool      `json:"is_running"`
	IsComplete       bool      `json:"is_complete"`
	StartedAt        time.Time `json:"started_at"`
	CompletedAt      time.Time `json:"completed_at,omitzero"`
}

type runState struct {
	snap        Snapshot
	stopped     bool
	subscribers map[int]chan Snapshot
	nextSubID   int
}

// Registry owns all run state for the process.
type Registry struct {
	mu     sync.RWMutex
	imp    *runState
	keyed  map[string]*runState
	logger *zap.Logger
	now    func() time.Time
}

// Option customizes a Registry.
type Option func(*Registry)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry constructs an empty Registry.
func NewRegistry(logger *zap.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		keyed:  make(map[string]*runState),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StartImport claims the singleton import slot. It fails with
// ErrAlreadyRunning while a previous import is running and not complete.
func (r *Registry) StartImport() (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.imp != nil && r.imp.snap.IsRunning && !r.imp.snap.IsComplete {
		return nil, ErrAlreadyRunning
	}
	state := r.newState(uuid.NewString(), KindImport)
	r.imp = state
	return &Handle{registry: r, state: state}, nil
}

// StartKeyed registers a new blacklist or phone run and returns its
// handle; the run ID is fresh so concurrent runs never collide.
func (r *Registry) StartKeyed(kind Kind) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.NewString()
	state := r.newState(id, kind)
	r.keyed[id] = state
	return &Handle{registry: r, state: state}
}

func (r *Registry) newState(id string, kind Kind) *runState {
	return &runState{
		snap: Snapshot{
			RunID:     id,
			Kind:      kind,
			IsRunning: true,
			StartedAt: r.now(),
			Errors:    []string{},
		},
		subscribers: make(map[int]chan Snapshot),
	}
}

// ImportSnapshot returns the current import progress, or ErrRunNotFound
// when no import has ever run.
func (r *Registry) ImportSnapshot() (Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.imp == nil {
		return Snapshot{}, ErrRunNotFound
	}
	return cloneSnapshot(r.imp.snap), nil
}

// Snapshot returns the progress of a keyed run by ID.
func (r *Registry) Snapshot(runID string) (Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state := r.lookupLocked(runID)
	if state == nil {
		return Snapshot{}, ErrRunNotFound
	}
	return cloneSnapshot(state.snap), nil
}

// Subscribe registers an observer for the run's snapshot stream. The
// returned cancel function must be called to release the channel; the
// channel is closed on cancel or when the run is swept. Sends never
// block the pipeline; a slow subscriber misses intermediate snapshots.
func (r *Registry) Subscribe(runID string) (<-chan Snapshot, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.lookupLocked(runID)
	if state == nil {
		return nil, nil, ErrRunNotFound
	}
	ch := make(chan Snapshot, subscriberBuffer)
	id := state.nextSubID
	state.nextSubID++
	state.subscribers[id] = ch

	// Seed with the current snapshot so subscribers never start blind.
	ch <- cloneSnapshot(state.snap)

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if sub, ok := state.subscribers[id]; ok {
			delete(state.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel, nil
}

// SubscribeImport subscribes to the singleton import run.
func (r *Registry) SubscribeImport() (<-chan Snapshot, func(), error) {
	r.mu.RLock()
	imp := r.imp
	r.mu.RUnlock()
	if imp == nil {
		return nil, nil, ErrRunNotFound
	}
	return r.Subscribe(imp.snap.RunID)
}

// RequestStop flags the run for cooperative shutdown. The pipeline
// observes the flag between batches; in-flight store calls finish.
func (r *Registry) RequestStop(runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.lookupLocked(runID)
	if state == nil {
		return ErrRunNotFound
	}
	state.stopped = true
	return nil
}

// RequestStopImport flags the current import run.
func (r *Registry) RequestStopImport() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.imp == nil || !r.imp.snap.IsRunning {
		return ErrRunNotFound
	}
	r.imp.stopped = true
	return nil
}

// Sweep drops completed keyed runs past their retention window and any
// run past the hard age limit. It returns the number of runs removed.
func (r *Registry) Sweep() int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, state := range r.keyed {
		expired := state.snap.IsComplete && now.Sub(state.snap.CompletedAt) > completedRetention
		ancient := now.Sub(state.snap.StartedAt) > maxRetention
		if !expired && !ancient {
			continue
		}
		for _, ch := range state.subscribers {
			close(ch)
		}
		// Emptied so a subscriber's later cancel cannot re-close.
		clear(state.subscribers)
		delete(r.keyed, id)
		removed++
	}
	if removed > 0 {
		r.logger.Debug("swept completed runs", zap.Int("removed", removed))
	}
	return removed
}

// RunSweeper periodically sweeps until ctx is done. Call in a goroutine.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *Registry) lookupLocked(runID string) *runState {
	if r.imp != nil && r.imp.snap.RunID == runID {
		return r.imp
	}
	return r.keyed[runID]
}

// publishLocked fans the current snapshot out to subscribers without
// blocking; callers hold r.mu.
func publishLocked(state *runState) {
	snap := cloneSnapshot(state.snap)
	for _, ch := range state.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
}

func cloneSnapshot(s Snapshot) Snapshot {
	cp := s
	cp.Errors = append([]string(nil), s.Errors...)
	return cp
}
