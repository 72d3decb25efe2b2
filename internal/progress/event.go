package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart    Stage = "RUN_START"
	StageRunDone     Stage = "RUN_DONE"
	StageRunError    Stage = "RUN_ERROR"
	StageListingPage Stage = "LISTING_PAGE"
	StageContentDone Stage = "CONTENT_DONE"
)

// Content fetch outcomes recorded on CONTENT_DONE events.
const (
	OutcomeStored    = "stored"
	OutcomeEmpty     = "empty"
	OutcomeBlocked   = "blocked"
	OutcomeTransient = "transient"
	OutcomeFailed    = "failed"
)

// Event captures a single milestone of harvesting progress.
type Event struct {
	// RunID identifies the harvesting run, in the string form the trigger
	// API hands out.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// Query scopes listing events to the query being paginated.
	Query string
	// Page is the 1-based listing page number for LISTING_PAGE events.
	Page int
	// URL is the optional page URL; it should not contain credentials.
	URL string
	// Records carries the new-record count for LISTING_PAGE events and the
	// batch size for RUN_DONE events.
	Records int64
	// Outcome classifies CONTENT_DONE events (stored, empty, blocked,
	// transient, failed).
	Outcome string
	// Dur captures execution latency for content fetches and whole runs.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageListingPage:
		if e.Query == "" {
			return errors.New("listing page requires query")
		}
		if e.Page < 1 {
			return errors.New("listing page requires page >= 1")
		}
	case StageContentDone:
		if e.Outcome == "" {
			return errors.New("content done requires outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
