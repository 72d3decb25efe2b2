package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/queryharvest/harvester/internal/config"
	"github.com/queryharvest/harvester/internal/database"
	"github.com/queryharvest/harvester/internal/harvest"
	"github.com/queryharvest/harvester/internal/logging"
	"github.com/queryharvest/harvester/internal/metrics"
	"github.com/queryharvest/harvester/internal/middleware"
	"github.com/queryharvest/harvester/internal/store"
)

// Runner executes one harvesting run and blocks until every phase finished.
// The application container implements it; tests substitute fakes.
type Runner interface {
	Run(ctx context.Context, queries []string) (harvest.RunSummary, error)
}

// Server wires HTTP handlers to the harvest runner and the read stores.
type Server struct {
	router chi.Router
	runner Runner
	db     database.Provider
	runs   *RunHandler
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes. runRepo may be
// nil when no run store is configured; the /v1/runs endpoints then answer 503.
func NewServer(
	runner Runner,
	db database.Provider,
	runRepo store.RunRepository,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runner: runner,
		db:     db,
		runs:   NewRunHandler(runRepo, logger.Named("runs")),
		cfg:    cfg,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Recover(logger))
	r.Use(metrics.Middleware)
	if cfg.Auth.Enabled {
		r.Use(middleware.APIKey(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		// A harvest blocks the caller for the whole run, so only this route
		// carries the long request budget.
		r.With(middleware.Timeout(cfg.Server.RequestTimeout)).Post("/harvests", s.submitHarvest)
		r.Get("/records", s.listRecords)
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.runs.ListRuns)
			r.Route("/{run_id}", func(r chi.Router) {
				r.Get("/", s.runs.GetRun)
				r.Get("/queries", s.runs.ListRunQueries)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the router wrapped for tracing, for use with http.Server.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "harvester.api")
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// harvestRequest carries the raw comma-separated query input, exactly as the
// original trigger form submitted it.
type harvestRequest struct {
	Queries string `json:"queries"`
}

type harvestResponse struct {
	RunID         string   `json:"run_id"`
	Queries       []string `json:"queries"`
	PagesFetched  int      `json:"pages_fetched"`
	Records       int      `json:"records"`
	Exported      int      `json:"exported"`
	Stored        int      `json:"stored"`
	Empty         int      `json:"empty"`
	Failed        int      `json:"failed"`
	PersistFailed bool     `json:"persist_failed"`
	ExportPath    string   `json:"export_path,omitempty"`
	DurationMS    int64    `json:"duration_ms"`
}

func (s *Server) submitHarvest(w http.ResponseWriter, r *http.Request) {
	var req harvestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	queries := harvest.ParseQueries(req.Queries)
	if len(queries) == 0 {
		writeError(w, http.StatusBadRequest, "no queries provided")
		return
	}

	summary, err := s.runner.Run(r.Context(), queries)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			status = http.StatusRequestTimeout
		}
		s.logger.Error("harvest run failed", zap.Error(err))
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, harvestResponse{
		RunID:         summary.RunID,
		Queries:       summary.Queries,
		PagesFetched:  summary.PagesFetched,
		Records:       summary.Collected,
		Exported:      summary.Exported,
		Stored:        summary.ContentStored,
		Empty:         summary.ContentEmpty,
		Failed:        summary.ContentFailed,
		PersistFailed: summary.PersistFailed,
		ExportPath:    summary.ExportPath,
		DurationMS:    summary.Duration.Milliseconds(),
	})
}

// listRecords is the read-through the original UI performed after a run:
// persisted rows for one query, newest first.
func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	query := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("query")))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter is required")
		return
	}
	limit, _, err := parseLimitOffset(r, defaultRecordLimit, maxRecordLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.db.RecordsByQuery(r.Context(), query, limit)
	if err != nil {
		s.logger.Error("list records failed", zap.String("query", query), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.L.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
