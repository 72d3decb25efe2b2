package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run record not found")

// RunStatus mirrors the harvest_runs status column.
type RunStatus string

// Run statuses persisted in harvest_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Outcome classes accepted by UpsertQueryStats. ClassListed applies listing
// page deltas; the remaining classes count content fetch completions.
const (
	ClassListed  = "listed"
	ClassStored  = "stored"
	ClassEmpty   = "empty"
	ClassBlocked = "blocked"
	ClassFailed  = "failed"
)

// Run models the harvest_runs table for API responses.
type Run struct {
	// ID is the run identifier handed out when the run is triggered.
	ID string
	// Queries is the number of queries submitted with the run.
	Queries int
	// StartedAt captures when the run was first marked running.
	StartedAt time.Time
	// FinishedAt is nil until the run is marked success/error.
	FinishedAt *time.Time
	// Status is running/success/error.
	Status RunStatus
	// Records is the deduplicated batch size reported at completion.
	Records int64
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string
}

// QueryStats captures per-query aggregation for a run.
type QueryStats struct {
	// RunID is the owning run.
	RunID string
	// Query is the search query the stats belong to.
	Query string
	// LastUpdate captures the timestamp of the most recent aggregate.
	LastUpdate time.Time
	// Pages counts harvested listing pages for the query.
	Pages int64
	// Listed counts records kept from listing pages.
	Listed int64
	// Stored-Failed hold per-outcome content fetch counts for diagnostics.
	Stored  int64
	Empty   int64
	Blocked int64
	Failed  int64
}

// RunRepository persists incremental harvest run progress.
type RunRepository interface {
	// UpsertRunStart inserts (or idempotently updates) the started_at timestamp.
	UpsertRunStart(ctx context.Context, runID string, queries int, startedAt time.Time) error
	// CompleteRun marks the run finished with the provided status, final
	// record count, and error.
	CompleteRun(ctx context.Context, runID string, finishedAt time.Time, status RunStatus, records int64, errMsg *string) error
	// UpsertQueryStats applies page/count deltas per (run, query, class).
	UpsertQueryStats(
		ctx context.Context,
		runID string,
		query string,
		deltaPages int64,
		deltaCount int64,
		class string,
		at time.Time,
	) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID string) (Run, error)
	// ListRuns returns runs filtered by optional status plus limit/offset.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
	// ListRunQueries returns aggregated query stats for one run.
	ListRunQueries(ctx context.Context, runID string, limit, offset int) ([]QueryStats, error)
}
