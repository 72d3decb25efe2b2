package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/queryharvest/harvester/internal/progress"
	"github.com/queryharvest/harvester/internal/store"
)

// StoreSink persists run progress via a store.RunRepository. It collapses
// per-query listing and content counters within each batch to reduce write
// amplification.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume collapses query deltas and forwards them to the repository. It
// respects ctx deadlines and returns repository errors to the hub.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	stats := make(map[statsKey]*statsDelta)

	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart, progress.StageRunDone, progress.StageRunError:
			if err := s.handleRunEvent(ctx, evt); err != nil {
				return err
			}
		case progress.StageListingPage:
			s.recordListing(stats, evt)
		case progress.StageContentDone:
			s.recordContent(stats, evt)
		}
	}

	for key, delta := range stats {
		if delta.pages == 0 && delta.count == 0 {
			continue
		}
		if err := s.repo.UpsertQueryStats(
			ctx,
			key.runID,
			key.query,
			delta.pages,
			delta.count,
			key.class,
			delta.at,
		); err != nil {
			return fmt.Errorf("upsert query stats: %w", err)
		}
	}
	return nil
}

func (s *StoreSink) handleRunEvent(ctx context.Context, evt progress.Event) error {
	switch evt.Stage {
	case progress.StageRunStart:
		// Records carries the number of queries on RUN_START events.
		if err := s.repo.UpsertRunStart(ctx, evt.RunID, int(evt.Records), evt.TS); err != nil {
			return fmt.Errorf("upsert run start: %w", err)
		}
	case progress.StageRunDone:
		if err := s.repo.CompleteRun(ctx, evt.RunID, evt.TS, store.RunSuccess, evt.Records, nil); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
	case progress.StageRunError:
		var note *string
		if evt.Note != "" {
			note = &evt.Note
		}
		if err := s.repo.CompleteRun(ctx, evt.RunID, evt.TS, store.RunError, evt.Records, note); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
	}
	return nil
}

func (s *StoreSink) recordListing(stats map[statsKey]*statsDelta, evt progress.Event) {
	if evt.Query == "" {
		return
	}
	delta := statFor(stats, statsKey{runID: evt.RunID, query: evt.Query, class: store.ClassListed})
	delta.pages++
	delta.count += evt.Records
	delta.touch(evt.TS)
}

func (s *StoreSink) recordContent(stats map[statsKey]*statsDelta, evt progress.Event) {
	if evt.Query == "" {
		return
	}
	var class string
	switch evt.Outcome {
	case progress.OutcomeStored:
		class = store.ClassStored
	case progress.OutcomeEmpty:
		class = store.ClassEmpty
	case progress.OutcomeBlocked:
		class = store.ClassBlocked
	default:
		// Transient exhaustion and hard failures land in the same column.
		class = store.ClassFailed
	}
	delta := statFor(stats, statsKey{runID: evt.RunID, query: evt.Query, class: class})
	delta.count++
	delta.touch(evt.TS)
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type statsKey struct {
	runID string
	query string
	class string
}

type statsDelta struct {
	pages int64
	count int64
	at    time.Time
}

func (d *statsDelta) touch(ts time.Time) {
	if ts.After(d.at) || d.at.IsZero() {
		d.at = ts
	}
}

func statFor(stats map[statsKey]*statsDelta, key statsKey) *statsDelta {
	delta := stats[key]
	if delta == nil {
		delta = &statsDelta{}
		stats[key] = delta
	}
	return delta
}
