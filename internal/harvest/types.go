package harvest

import (
	"net/http"
	"strings"
	"time"
)

// Record is a single search-result entry pending persistence and
// content fetch. URL keeps the original spelling from the listing;
// RecordID is derived from its canonical form.
type Record struct {
	RecordID string `json:"record_id"`
	Query    string `json:"query"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Snippet  string `json:"snippet"`
	Page     int    `json:"page"`
}

// Batch is the full ordered sequence of records produced by one run:
// query input order first, page order within a query.
type Batch []Record

// DedupeByRecordID returns a copy of the batch with later duplicates of a
// record id removed. Order is preserved and the first occurrence wins.
func DedupeByRecordID(batch Batch) Batch {
	seen := make(map[string]struct{}, len(batch))
	out := make(Batch, 0, len(batch))
	for _, rec := range batch {
		if _, ok := seen[rec.RecordID]; ok {
			continue
		}
		seen[rec.RecordID] = struct{}{}
		out = append(out, rec)
	}
	return out
}

// RunSummary reports what one orchestration run did. It is returned to the
// trigger (CLI or API) and published on the completion queue.
type RunSummary struct {
	RunID           string        `json:"run_id"`
	Queries         []string      `json:"queries"`
	PagesFetched    int           `json:"pages_fetched"`
	Collected       int           `json:"collected"`
	Exported        int           `json:"exported"`
	ContentStored   int           `json:"content_stored"`
	ContentEmpty    int           `json:"content_empty"`
	ContentFailed   int           `json:"content_failed"`
	ListingFailures int           `json:"listing_failures"`
	PersistFailed   bool          `json:"persist_failed"`
	ExportPath      string        `json:"export_path,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration"`
}

// FetchResponse is the result returned by a Fetcher or Renderer.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// ParseQueries splits raw comma-separated input into trimmed, lower-cased
// query phrases, dropping empties. Duplicates are kept; the registry makes a
// repeated query cheap rather than wrong.
func ParseQueries(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		q := strings.ToLower(strings.TrimSpace(p))
		if q != "" {
			out = append(out, q)
		}
	}
	return out
}
