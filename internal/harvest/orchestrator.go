package harvest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/queryharvest/harvester/internal/progress"
	"github.com/queryharvest/harvester/internal/telemetry"
	"github.com/queryharvest/harvester/internal/worker"
)

// ListingSource yields the new records of one search-results page.
type ListingSource interface {
	FetchPage(ctx context.Context, query string, page int, reg Registry) ([]Record, error)
}

// ContentSource fetches and stores the full text behind one record.
type ContentSource interface {
	FetchContent(ctx context.Context, rec Record) error
}

// HarvesterConfig holds the per-run orchestration knobs.
type HarvesterConfig struct {
	// MaxPages is the pagination ceiling per query.
	MaxPages int
	// Workers sizes the content-phase pool; see worker.Clamp for bounds.
	Workers int
	// Scope selects whether the seen-URL registry spans the whole run or
	// resets between queries.
	Scope RegistryScope
}

// Harvester drives one run through its phases: sequential collection,
// persistence, export, and concurrent content distribution. Collaborators
// return typed errors; this is the one place that decides log-and-continue.
type Harvester struct {
	cfg      HarvesterConfig
	listing  ListingSource
	content  ContentSource
	registry Registry
	results  ResultSink
	exporter Exporter
	notifier Notifier
	emitter  progress.Emitter
	clock    Clock
	ids      IDGenerator
	logger   *zap.Logger
}

// NewHarvester creates a Harvester. notifier and emitter may be nil; the
// corresponding signal is skipped.
func NewHarvester(
	cfg HarvesterConfig,
	listing ListingSource,
	content ContentSource,
	registry Registry,
	results ResultSink,
	exporter Exporter,
	notifier Notifier,
	emitter progress.Emitter,
	clock Clock,
	ids IDGenerator,
	logger *zap.Logger,
) *Harvester {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 9
	}
	if cfg.Scope == "" {
		cfg.Scope = ScopeRun
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harvester{
		cfg:      cfg,
		listing:  listing,
		content:  content,
		registry: registry,
		results:  results,
		exporter: exporter,
		notifier: notifier,
		emitter:  emitter,
		clock:    clock,
		ids:      ids,
		logger:   logger,
	}
}

// completionMessage is the payload published to the queue after a run.
type completionMessage struct {
	RunID   string `json:"run_id"`
	Queries int    `json:"queries"`
	Records int    `json:"records"`
	Stored  int    `json:"stored"`
}

// Run executes one harvesting run over the given queries and blocks until
// every phase has finished. Phase failures are logged and reflected in the
// summary, never fatal; the returned error is reserved for a run that could
// not start or a canceled context.
func (h *Harvester) Run(ctx context.Context, queries []string) (RunSummary, error) {
	runID, err := h.ids.NewID()
	if err != nil {
		return RunSummary{}, fmt.Errorf("generate run id: %w", err)
	}
	start := h.clock.Now()
	summary := RunSummary{RunID: runID, Queries: queries, StartedAt: start}

	ctx, span := telemetry.StartSpan(ctx, "harvest.run", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.Int("queries", len(queries)),
	))
	defer span.End()

	h.emit(progress.Event{RunID: runID, Stage: progress.StageRunStart, Records: int64(len(queries))})
	h.logger.Info("harvest run starting",
		zap.String("run_id", runID),
		zap.Strings("queries", queries),
		zap.Int("max_pages", h.cfg.MaxPages))

	batch := h.collect(ctx, runID, queries, &summary)
	summary.Collected = len(batch)
	BatchRecords.Observe(float64(len(batch)))

	h.persist(ctx, batch, &summary)

	exported := h.export(ctx, runID, batch, &summary)

	h.distribute(ctx, runID, exported, &summary)

	summary.Duration = h.clock.Now().Sub(start)

	if ctx.Err() != nil {
		h.emit(progress.Event{RunID: runID, Stage: progress.StageRunError, Note: ctx.Err().Error()})
		return summary, fmt.Errorf("harvest run %s: %w", runID, ctx.Err())
	}

	h.publishCompletion(ctx, runID, &summary)
	h.emit(progress.Event{
		RunID:   runID,
		Stage:   progress.StageRunDone,
		Records: int64(summary.Collected),
		Dur:     summary.Duration,
	})
	h.logger.Info("harvest run finished",
		zap.String("run_id", runID),
		zap.Int("collected", summary.Collected),
		zap.Int("exported", summary.Exported),
		zap.Int("content_stored", summary.ContentStored),
		zap.Int("content_empty", summary.ContentEmpty),
		zap.Int("content_failed", summary.ContentFailed),
		zap.Duration("duration", summary.Duration))
	return summary, nil
}

// collect paginates every query in input order. Pagination for a query stops
// at the ceiling, after a page that contributes zero new records, or after a
// failed page; a failure never spills into the next query.
func (h *Harvester) collect(ctx context.Context, runID string, queries []string, summary *RunSummary) Batch {
	ctx, span := telemetry.StartSpan(ctx, "harvest.collect")
	defer span.End()
	phaseStart := h.clock.Now()
	defer func() { PhaseDuration.WithLabelValues("collect").Observe(h.clock.Now().Sub(phaseStart).Seconds()) }()

	var batch Batch
	for _, query := range queries {
		if ctx.Err() != nil {
			return batch
		}
		if h.cfg.Scope == ScopeQuery {
			if err := h.registry.Reset(ctx); err != nil {
				h.logger.Warn("registry reset failed, dedup scope widens to the run",
					zap.String("run_id", runID), zap.String("query", query), zap.Error(err))
			}
		}
		for page := 1; page <= h.cfg.MaxPages; page++ {
			if ctx.Err() != nil {
				return batch
			}
			records, err := h.listing.FetchPage(ctx, query, page, h.registry)
			summary.PagesFetched++
			if err != nil {
				summary.ListingFailures++
				h.logger.Warn("listing page failed, ending pagination for query",
					zap.String("run_id", runID),
					zap.String("query", query),
					zap.Int("page", page),
					zap.Error(err))
				break
			}
			h.emit(progress.Event{
				RunID:   runID,
				Stage:   progress.StageListingPage,
				Query:   query,
				Page:    page,
				Records: int64(len(records)),
			})
			if len(records) == 0 {
				break
			}
			batch = append(batch, records...)
		}
	}
	return batch
}

// persist upserts the whole batch; failure is recorded and the run continues.
func (h *Harvester) persist(ctx context.Context, batch Batch, summary *RunSummary) {
	if len(batch) == 0 {
		return
	}
	ctx, span := telemetry.StartSpan(ctx, "harvest.persist")
	defer span.End()
	phaseStart := h.clock.Now()
	defer func() { PhaseDuration.WithLabelValues("persist").Observe(h.clock.Now().Sub(phaseStart).Seconds()) }()

	if err := h.results.UpsertBatch(ctx, batch); err != nil {
		perr := &PersistError{Count: len(batch), Err: err}
		summary.PersistFailed = true
		h.logger.Error("batch persistence failed, continuing with export and content",
			zap.String("run_id", summary.RunID), zap.Error(perr))
	}
}

// export dedups the batch by record id and writes it to the export sink. The
// deduplicated slice is returned for the content phase regardless of whether
// the write succeeded.
func (h *Harvester) export(ctx context.Context, runID string, batch Batch, summary *RunSummary) Batch {
	exported := DedupeByRecordID(batch)
	summary.Exported = len(exported)
	if len(exported) == 0 {
		return exported
	}
	ctx, span := telemetry.StartSpan(ctx, "harvest.export")
	defer span.End()
	phaseStart := h.clock.Now()
	defer func() { PhaseDuration.WithLabelValues("export").Observe(h.clock.Now().Sub(phaseStart).Seconds()) }()

	path, err := h.exporter.WriteBatch(ctx, runID, exported)
	if err != nil {
		h.logger.Error("batch export failed, continuing with content",
			zap.String("run_id", runID), zap.Int("records", len(exported)), zap.Error(err))
		return exported
	}
	summary.ExportPath = path
	return exported
}

// distribute fans content fetches out over the bounded pool and waits for
// every accepted task before returning.
func (h *Harvester) distribute(ctx context.Context, runID string, records Batch, summary *RunSummary) {
	if len(records) == 0 {
		return
	}
	ctx, span := telemetry.StartSpan(ctx, "harvest.distribute")
	defer span.End()
	phaseStart := h.clock.Now()
	defer func() {
		PhaseDuration.WithLabelValues("distribute").Observe(h.clock.Now().Sub(phaseStart).Seconds())
	}()

	pool := worker.NewPool(h.cfg.Workers, h.logger)
	var mu sync.Mutex
	for _, rec := range records {
		rec := rec
		err := pool.Submit(ctx, func() {
			outcome, dur := h.fetchOne(ctx, rec)
			mu.Lock()
			switch outcome {
			case progress.OutcomeStored:
				summary.ContentStored++
			case progress.OutcomeEmpty:
				summary.ContentEmpty++
			default:
				summary.ContentFailed++
			}
			mu.Unlock()
			h.emit(progress.Event{
				RunID:   runID,
				Stage:   progress.StageContentDone,
				Query:   rec.Query,
				URL:     rec.URL,
				Outcome: outcome,
				Dur:     dur,
			})
		})
		if err != nil {
			// Submit only fails once the run context is gone; everything
			// not yet handed to the pool counts as failed.
			mu.Lock()
			summary.ContentFailed++
			mu.Unlock()
		}
	}
	pool.Close()
}

// fetchOne runs one content fetch and classifies its outcome.
func (h *Harvester) fetchOne(ctx context.Context, rec Record) (string, time.Duration) {
	start := h.clock.Now()
	err := h.content.FetchContent(ctx, rec)
	dur := h.clock.Now().Sub(start)
	if err == nil {
		return progress.OutcomeStored, dur
	}
	var cerr *ContentError
	if errors.As(err, &cerr) {
		h.logger.Warn("content fetch gave up",
			zap.String("record_id", rec.RecordID),
			zap.String("url", rec.URL),
			zap.String("kind", string(cerr.Kind)),
			zap.Int("attempts", cerr.Attempts),
			zap.Error(err))
		switch cerr.Kind {
		case ContentEmpty:
			return progress.OutcomeEmpty, dur
		case ContentBlocked:
			return progress.OutcomeBlocked, dur
		default:
			return progress.OutcomeTransient, dur
		}
	}
	h.logger.Warn("content fetch aborted",
		zap.String("record_id", rec.RecordID),
		zap.String("url", rec.URL),
		zap.Error(err))
	return progress.OutcomeFailed, dur
}

// publishCompletion notifies downstream consumers; failures only warn.
func (h *Harvester) publishCompletion(ctx context.Context, runID string, summary *RunSummary) {
	if h.notifier == nil {
		return
	}
	payload, err := json.Marshal(completionMessage{
		RunID:   runID,
		Queries: len(summary.Queries),
		Records: summary.Collected,
		Stored:  summary.ContentStored,
	})
	if err != nil {
		h.logger.Warn("completion payload marshal failed", zap.String("run_id", runID), zap.Error(err))
		return
	}
	if err := h.notifier.Publish(ctx, payload); err != nil {
		h.logger.Warn("completion publish failed", zap.String("run_id", runID), zap.Error(err))
	}
}

func (h *Harvester) emit(evt progress.Event) {
	if h.emitter == nil {
		return
	}
	if evt.TS.IsZero() {
		evt.TS = h.clock.Now()
	}
	h.emitter.Emit(evt)
}
