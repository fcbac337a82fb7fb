package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harvestiq/siteingest/internal/store"
)

// Run-history query limits and the per-request repository timeout.
const (
	defaultRunLimit = 50
	maxRunLimit     = 500
	historyTimeout  = 3 * time.Second
)

// listRuns handles GET /v1/runs?status=&limit=&offset=. It serves the
// durable audit trail; live progress comes from the registry endpoints.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "run history unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	statusParam := strings.TrimSpace(r.URL.Query().Get("status"))
	var status *store.RunStatus
	if statusParam != "" {
		statusVal, parseErr := parseStatus(statusParam)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		status = &statusVal
	}

	ctx, cancel := context.WithTimeout(r.Context(), historyTimeout)
	defer cancel()

	records, err := s.history.ListRuns(ctx, status, limit, offset)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": toRunDTOs(records)})
}

// getRun handles GET /v1/runs/{run_id}.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "run history unavailable")
		return
	}
	runID, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), historyTimeout)
	defer cancel()

	record, err := s.history.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": toRunDTO(record)})
}

func parseRunID(r *http.Request) (uuid.UUID, error) {
	idStr := chi.URLParam(r, "run_id")
	if idStr == "" {
		return uuid.UUID{}, errors.New("run_id is required")
	}
	runID, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid run_id")
	}
	return runID, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseStatus(input string) (store.RunStatus, error) {
	switch strings.ToLower(input) {
	case "running":
		return store.RunRunning, nil
	case "success":
		return store.RunSuccess, nil
	case "error", "failed", "failure":
		return store.RunError, nil
	case "stopped":
		return store.RunStopped, nil
	default:
		return "", errors.New("invalid status")
	}
}

type runDTO struct {
	ID               string     `json:"id"`
	Kind             string     `json:"kind"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	Status           string     `json:"status"`
	Error            *string    `json:"error,omitempty"`
	TotalFiles       int64      `json:"total_files"`
	CompletedFiles   int64      `json:"completed_files"`
	ProcessedRecords int64      `json:"processed_records"`
	CreatedCount     int64      `json:"created_count"`
	UpdatedCount     int64      `json:"updated_count"`
	ErrorCount       int64      `json:"error_count"`
}

func toRunDTOs(in []store.RunRecord) []runDTO {
	out := make([]runDTO, 0, len(in))
	for _, rec := range in {
		out = append(out, toRunDTO(rec))
	}
	return out
}

func toRunDTO(rec store.RunRecord) runDTO {
	return runDTO{
		ID:               rec.ID.String(),
		Kind:             rec.Kind,
		StartedAt:        rec.StartedAt,
		FinishedAt:       rec.FinishedAt,
		Status:           string(rec.Status),
		Error:            rec.ErrorMessage,
		TotalFiles:       rec.Counters.TotalFiles,
		CompletedFiles:   rec.Counters.CompletedFiles,
		ProcessedRecords: rec.Counters.ProcessedRecords,
		CreatedCount:     rec.Counters.CreatedCount,
		UpdatedCount:     rec.Counters.UpdatedCount,
		ErrorCount:       rec.Counters.ErrorCount,
	}
}
