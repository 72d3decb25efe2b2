package harvest

import (
	"context"
	"time"
)

// Fetcher retrieves a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (FetchResponse, error)
}

// Renderer fetches a URL through a headless browser so script-built
// pages yield their rendered DOM.
type Renderer interface {
	Render(ctx context.Context, rawURL string) (FetchResponse, error)
}

// RenderDetector decides whether a fetched page warrants render promotion.
type RenderDetector interface {
	ShouldPromote(resp FetchResponse) bool
}

// RetryPolicy decides retry eligibility and spacing for content fetches.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// RobotsPolicy answers whether a URL may be fetched at all.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// HostLimiter spaces outbound requests per host.
type HostLimiter interface {
	Wait(ctx context.Context, host string) error
}

// Relevance gates listing entries by their affinity to the issuing query.
type Relevance interface {
	Relevant(query, title, snippet string) bool
}

// Registry is the seen-URL set for one harvesting run. Keys are record ids,
// so equivalent URL spellings collapse to one entry. Implementations are not
// required to be safe for concurrent use; collection is sequential and owns
// the registry exclusively.
type Registry interface {
	Contains(ctx context.Context, id string) (bool, error)
	Add(ctx context.Context, id string) error
	Len(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
	Close(ctx context.Context) error
}

// RegistryScope selects how long seen-URL state survives during a run.
type RegistryScope string

const (
	// ScopeRun shares one dedup horizon across every query of the run.
	ScopeRun RegistryScope = "run"
	// ScopeQuery resets the registry between queries, so the same URL may
	// appear once per query in the batch.
	ScopeQuery RegistryScope = "query"
)

// ResultSink persists the batch with insert-or-update semantics keyed on
// record id, atomically per batch.
type ResultSink interface {
	UpsertBatch(ctx context.Context, records []Record) error
}

// Exporter writes the deduplicated batch to a tabular file and returns its
// path.
type Exporter interface {
	WriteBatch(ctx context.Context, runID string, records []Record) (string, error)
}

// ContentSink durably stores extracted page text keyed by record id.
// Implementations must tolerate concurrent Store calls.
type ContentSink interface {
	Store(ctx context.Context, recordID, query, text string) error
}

// Notifier publishes run-completion payloads to downstream consumers.
type Notifier interface {
	Publish(ctx context.Context, data []byte) error
}

// Clock returns the current time and sleeps under context control
// (useful for testing).
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
