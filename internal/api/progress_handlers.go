package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/harvestiq/siteingest/internal/runs"
)

func (s *Server) startImport(w http.ResponseWriter, r *http.Request) {
	id, err := s.pipeline.StartImport()
	if err != nil {
		if errors.Is(err, runs.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, "an import is already running")
			return
		}
		s.logger.Error("start import failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": id})
}

func (s *Server) stopImport(w http.ResponseWriter, _ *http.Request) {
	if err := s.registry.RequestStopImport(); err != nil {
		writeError(w, http.StatusNotFound, "no import is running")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

func (s *Server) startMaintenance(kind runs.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		id, err := s.pipeline.StartMaintenance(kind)
		if err != nil {
			s.logger.Error("start maintenance failed",
				zap.String("kind", string(kind)), zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"run_id": id})
	}
}

func (s *Server) stopRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	if err := s.registry.RequestStop(runID); err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

func (s *Server) importProgress(w http.ResponseWriter, _ *http.Request) {
	snap, err := s.registry.ImportSnapshot()
	if err != nil {
		writeError(w, http.StatusNotFound, "no import has run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"progress": snap})
}

func (s *Server) runProgress(w http.ResponseWriter, r *http.Request) {
	snap, err := s.registry.Snapshot(chi.URLParam(r, "run_id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"progress": snap})
}

func (s *Server) importProgressStream(w http.ResponseWriter, r *http.Request) {
	ch, cancel, err := s.registry.SubscribeImport()
	if err != nil {
		writeError(w, http.StatusNotFound, "no import has run")
		return
	}
	defer cancel()
	s.streamSnapshots(w, r, ch)
}

func (s *Server) runProgressStream(w http.ResponseWriter, r *http.Request) {
	ch, cancel, err := s.registry.Subscribe(chi.URLParam(r, "run_id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	defer cancel()
	s.streamSnapshots(w, r, ch)
}

// streamSnapshots pushes snapshots as server-sent events until the run
// terminates, the subscription closes, or the client goes away.
func (s *Server) streamSnapshots(w http.ResponseWriter, r *http.Request, ch <-chan runs.Snapshot) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, open := <-ch:
			if !open {
				return
			}
			payload, err := json.Marshal(snap)
			if err != nil {
				s.logger.Error("marshal snapshot failed", zap.Error(err))
				return
			}
			if _, err := fmt.Fprintf(w, "event: progress\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
			if snap.IsComplete {
				return
			}
		}
	}
}
