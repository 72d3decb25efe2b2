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

	"github.com/queryharvest/harvester/internal/store"
)

const (
	defaultRunLimit    = 50
	maxRunLimit        = 500
	defaultQueryLimit  = 100
	maxQueryLimit      = 1000
	defaultRecordLimit = 50
	maxRecordLimit     = 500
	runReadTimeout     = 3 * time.Second
)

// RunHandler exposes read-only harvest run progress endpoints.
type RunHandler struct {
	repo    store.RunRepository
	timeout time.Duration
	logger  *zap.Logger
}

// NewRunHandler wires the repository and logger.
func NewRunHandler(repo store.RunRepository, logger *zap.Logger) *RunHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunHandler{
		repo:    repo,
		timeout: runReadTimeout,
		logger:  logger,
	}
}

// ListRuns handles GET /v1/runs?status=&limit=&offset=. It returns a JSON
// object {"runs": [...]} on success, 400 for invalid filters, 503 when the
// repo is unavailable, or 500 if the repository call fails.
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "run repository unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

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
	runs, err := h.repo.ListRuns(ctx, status, limit, offset)
	if err != nil {
		h.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runs": toRunDTOs(runs),
	})
}

// GetRun handles GET /v1/runs/{run_id}. It returns {"run": {...}} on success,
// 400 for malformed IDs, 404 when the repository reports store.ErrNotFound,
// 503 if the repo is not initialized, or 500 otherwise.
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "run repository unavailable")
		return
	}
	runID, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	run, err := h.repo.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": toRunDTO(run)})
}

// ListRunQueries handles GET /v1/runs/{run_id}/queries?limit=&offset=. It
// returns {"queries": [...]} on success, 400 for invalid query parameters,
// 503 when the repository is missing, or 500 for repository errors.
func (h *RunHandler) ListRunQueries(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "run repository unavailable")
		return
	}
	runID, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultQueryLimit, maxQueryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	stats, err := h.repo.ListRunQueries(ctx, runID, limit, offset)
	if err != nil {
		h.logger.Error("list run queries failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list run queries")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"queries": toQueryStatsDTOs(stats),
	})
}

// parseRunID validates the run id path parameter. Run ids are handed out by
// the trigger as UUID strings, so anything else is rejected before it
// reaches the repository.
func parseRunID(r *http.Request) (string, error) {
	runID := chi.URLParam(r, "run_id")
	if runID == "" {
		return "", errors.New("run_id is required")
	}
	if _, err := uuid.Parse(runID); err != nil {
		return "", errors.New("invalid run_id")
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
	case "", "running":
		return store.RunRunning, nil
	case "success":
		return store.RunSuccess, nil
	case "error", "failed", "failure":
		return store.RunError, nil
	default:
		return "", errors.New("invalid status")
	}
}

func toRunDTOs(in []store.Run) []runDTO {
	out := make([]runDTO, 0, len(in))
	for _, run := range in {
		out = append(out, toRunDTO(run))
	}
	return out
}

func toRunDTO(run store.Run) runDTO {
	dto := runDTO{
		ID:        run.ID,
		Queries:   run.Queries,
		StartedAt: run.StartedAt,
		Status:    string(run.Status),
		Records:   run.Records,
		Error:     run.ErrorMessage,
	}
	if run.FinishedAt != nil {
		dto.FinishedAt = run.FinishedAt
	}
	return dto
}

func toQueryStatsDTOs(in []store.QueryStats) []queryStatsDTO {
	out := make([]queryStatsDTO, 0, len(in))
	for _, s := range in {
		out = append(out, queryStatsDTO{
			Query:      s.Query,
			LastUpdate: s.LastUpdate,
			Pages:      s.Pages,
			Listed:     s.Listed,
			Stored:     s.Stored,
			Empty:      s.Empty,
			Blocked:    s.Blocked,
			Failed:     s.Failed,
		})
	}
	return out
}

type runDTO struct {
	ID         string     `json:"id"`
	Queries    int        `json:"queries"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	Records    int64      `json:"records"`
	Error      *string    `json:"error,omitempty"`
}

type queryStatsDTO struct {
	Query      string    `json:"query"`
	LastUpdate time.Time `json:"last_update"`
	Pages      int64     `json:"pages"`
	Listed     int64     `json:"listed"`
	Stored     int64     `json:"stored"`
	Empty      int64     `json:"empty"`
	Blocked    int64     `json:"blocked"`
	Failed     int64     `json:"failed"`
}
