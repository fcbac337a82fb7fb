package runs

// Handle is the pipeline's mutation surface for one run. All mutators
// publish a fresh snapshot to subscribers before returning. A Handle is
// owned by the single goroutine driving the run.
type Handle struct {
	registry *Registry
	state    *runState
}

// ID returns the run identifier.
func (h *Handle) ID() string {
	return h.state.snap.RunID
}

// Kind returns the run kind.
func (h *Handle) Kind() Kind {
	return h.state.snap.Kind
}

// Stopped reports whether a cooperative stop was requested.
func (h *Handle) Stopped() bool {
	h.registry.mu.RLock()
	defer h.registry.mu.RUnlock()
	return h.state.stopped
}

// Snapshot returns the run's current progress copy.
func (h *Handle) Snapshot() Snapshot {
	h.registry.mu.RLock()
	defer h.registry.mu.RUnlock()
	return cloneSnapshot(h.state.snap)
}

// SetTotalFiles records the run's file count before streaming begins.
func (h *Handle) SetTotalFiles(n int64) {
	h.mutate(func(s *Snapshot) { s.TotalFiles = n })
}

// StartFile marks the file currently being streamed.
func (h *Handle) StartFile(name string) {
	h.mutate(func(s *Snapshot) { s.CurrentFile = name })
}

// FileDone increments the completed-file counter and clears the current
// file marker.
func (h *Handle) FileDone() {
	h.mutate(func(s *Snapshot) {
		s.CompletedFiles++
		s.CurrentFile = ""
	})
}

// AddBatch applies the counter deltas from one flushed batch.
func (h *Handle) AddBatch(processed, created, updated, skipped int64) {
	h.mutate(func(s *Snapshot) {
		s.ProcessedRecords += processed
		s.CreatedCount += created
		s.UpdatedCount += updated
		s.SkippedRecords += skipped
	})
}

// AppendError records a non-fatal error message on the run.
func (h *Handle) AppendError(msg string) {
	h.mutate(func(s *Snapshot) { s.Errors = append(s.Errors, msg) })
}

// Complete marks the run terminally finished. An optional errMsg is
// appended first, so stop and timeout reasons land in the errors list.
func (h *Handle) Complete(errMsg string) {
	h.mutate(func(s *Snapshot) {
		if errMsg != "" {
			s.Errors = append(s.Errors, errMsg)
		}
		s.IsRunning = false
		s.IsComplete = true
		s.CurrentFile = ""
		s.CompletedAt = h.registry.now()
	})
}

func (h *Handle) mutate(fn func(*Snapshot)) {
	h.registry.mu.Lock()
	defer h.registry.mu.Unlock()
	fn(&h.state.snap)
	publishLocked(h.state)
}
