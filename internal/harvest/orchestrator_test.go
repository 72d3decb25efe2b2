package harvest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/queryharvest/harvester/internal/policy/keyword"
	"github.com/queryharvest/harvester/internal/progress"
)

type fakeEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *fakeEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *fakeEmitter) byStage(stage progress.Stage) []progress.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []progress.Event
	for _, evt := range e.events {
		if evt.Stage == stage {
			out = append(out, evt)
		}
	}
	return out
}

type orchestratorHarness struct {
	fetcher  *fakeFetcher
	registry *fakeRegistry
	results  *fakeSink
	exporter *fakeExporter
	content  *fakeContentSink
	notifier *fakeNotifier
	emitter  *fakeEmitter
	clock    *fakeClock
	listing  *ListingFetcher
	h        *Harvester
}

func newOrchestratorHarness(cfg HarvesterConfig, rel Relevance) *orchestratorHarness {
	oh := &orchestratorHarness{
		fetcher:  newFakeFetcher(),
		registry: newFakeRegistry(),
		results:  &fakeSink{},
		exporter: &fakeExporter{},
		content:  newFakeContentSink(),
		notifier: &fakeNotifier{},
		emitter:  &fakeEmitter{},
		clock:    newFakeClock(),
	}
	oh.listing = NewListingFetcher(oh.fetcher, rel, testListingConfig(), zap.NewNop())
	contentFetcher := NewContentFetcher(
		ContentFetcherConfig{RequestTimeout: time.Second},
		oh.fetcher, nil, nil, nil, nil,
		NewLinearRetryPolicy(3, time.Millisecond),
		oh.clock, oh.content, zap.NewNop(),
	)
	oh.h = NewHarvester(cfg, oh.listing, contentFetcher,
		oh.registry, oh.results, oh.exporter, oh.notifier, oh.emitter,
		oh.clock, fixedIDGen{id: "run-1"}, zap.NewNop())
	return oh
}

func (oh *orchestratorHarness) seedListing(query string, page int, entries ...string) {
	oh.fetcher.pages[oh.listing.PageURL(query, page)] = listingPage(entries...)
}

func (oh *orchestratorHarness) seedArticle(url, text string) {
	oh.fetcher.pages[url] = "<html><body><p>" + text + "</p></body></html>"
}

func recordIDs(batch []Record) []string {
	ids := make([]string, 0, len(batch))
	for _, rec := range batch {
		ids = append(ids, rec.RecordID)
	}
	return ids
}

func TestRunEndToEnd(t *testing.T) {
	oh := newOrchestratorHarness(HarvesterConfig{}, allowAll())
	oh.seedListing("cats", 1,
		listingEntry("https://example.com/cats-a", "All about cats", "cats cats cats"),
		listingEntry("https://example.com/shared", "Cats and dogs", "both kinds"),
	)
	oh.seedListing("cats", 2)
	oh.seedListing("dogs", 1,
		listingEntry("https://example.com/dogs-b", "All about dogs", "dogs dogs dogs"),
		listingEntry("https://example.com/shared", "Cats and dogs", "both kinds"),
	)
	oh.seedListing("dogs", 2)
	oh.seedArticle("https://example.com/cats-a", "long cat article")
	oh.seedArticle("https://example.com/shared", "shared article")
	oh.seedArticle("https://example.com/dogs-b", "long dog article")

	summary, err := oh.h.Run(context.Background(), []string{"cats", "dogs"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	// Run scope: the shared URL surfaces once, under the first query.
	if oh.registry.resets != 0 {
		t.Errorf("run scope must not reset the registry, saw %d resets", oh.registry.resets)
	}
	if summary.Collected != 3 {
		t.Fatalf("collected = %d, want 3", summary.Collected)
	}
	if len(oh.results.batches) != 1 || len(oh.results.batches[0]) != 3 {
		t.Fatalf("expected one persisted batch of 3, got %v", oh.results.batches)
	}
	batch := oh.results.batches[0]
	wantOrder := []string{
		RecordID("https://example.com/cats-a"),
		RecordID("https://example.com/shared"),
		RecordID("https://example.com/dogs-b"),
	}
	for i, want := range wantOrder {
		if batch[i].RecordID != want {
			t.Errorf("batch order: got %v, want %v", recordIDs(batch), wantOrder)
			break
		}
	}
	if batch[1].Query != "cats" {
		t.Errorf("shared record should belong to the first query, got %q", batch[1].Query)
	}

	if summary.PagesFetched != 4 {
		t.Errorf("pages fetched = %d, want 4", summary.PagesFetched)
	}
	if summary.Exported != 3 {
		t.Errorf("exported = %d, want 3", summary.Exported)
	}
	if summary.ExportPath != "exports/results_run-1.csv" {
		t.Errorf("export path = %q", summary.ExportPath)
	}
	if summary.ContentStored != 3 || summary.ContentEmpty != 0 || summary.ContentFailed != 0 {
		t.Errorf("content counts = %d/%d/%d, want 3/0/0",
			summary.ContentStored, summary.ContentEmpty, summary.ContentFailed)
	}
	if got := oh.content.stored(); len(got) != 3 {
		t.Errorf("stored content ids = %v, want 3 entries", got)
	}
	if summary.ListingFailures != 0 || summary.PersistFailed {
		t.Errorf("unexpected failures in summary: %+v", summary)
	}

	if len(oh.notifier.payloads) != 1 {
		t.Fatalf("expected one completion message, got %d", len(oh.notifier.payloads))
	}
	var msg struct {
		RunID   string `json:"run_id"`
		Queries int    `json:"queries"`
		Records int    `json:"records"`
		Stored  int    `json:"stored"`
	}
	if err := json.Unmarshal(oh.notifier.payloads[0], &msg); err != nil {
		t.Fatalf("completion payload: %v", err)
	}
	if msg.RunID != "run-1" || msg.Queries != 2 || msg.Records != 3 || msg.Stored != 3 {
		t.Errorf("completion message = %+v", msg)
	}
}

func TestRunQueryScopeAllowsCrossQueryDuplicates(t *testing.T) {
	oh := newOrchestratorHarness(HarvesterConfig{Scope: ScopeQuery}, allowAll())
	oh.seedListing("cats", 1,
		listingEntry("https://example.com/cats-a", "All about cats", "cats"),
		listingEntry("https://example.com/shared", "Cats and dogs", "both"),
	)
	oh.seedListing("cats", 2)
	oh.seedListing("dogs", 1,
		listingEntry("https://example.com/dogs-b", "All about dogs", "dogs"),
		listingEntry("https://example.com/shared", "Cats and dogs", "both"),
	)
	oh.seedListing("dogs", 2)
	oh.seedArticle("https://example.com/cats-a", "cat text")
	oh.seedArticle("https://example.com/shared", "shared text")
	oh.seedArticle("https://example.com/dogs-b", "dog text")

	summary, err := oh.h.Run(context.Background(), []string{"cats", "dogs"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	// Query scope: the registry resets per query, so the shared URL shows
	// up once per query in the collected batch.
	if oh.registry.resets != 2 {
		t.Errorf("query scope should reset once per query, saw %d resets", oh.registry.resets)
	}
	if summary.Collected != 4 {
		t.Fatalf("collected = %d, want 4", summary.Collected)
	}
	batch := oh.results.batches[0]
	sharedID := RecordID("https://example.com/shared")
	var sharedQueries []string
	for _, rec := range batch {
		if rec.RecordID == sharedID {
			sharedQueries = append(sharedQueries, rec.Query)
		}
	}
	if len(sharedQueries) != 2 || sharedQueries[0] != "cats" || sharedQueries[1] != "dogs" {
		t.Errorf("shared record queries = %v, want [cats dogs]", sharedQueries)
	}

	// Export still holds the no-duplicate invariant: first occurrence wins.
	if summary.Exported != 3 {
		t.Errorf("exported = %d, want 3 after dedup", summary.Exported)
	}
	seen := map[string]bool{}
	for _, rec := range oh.exporter.batches[0] {
		if seen[rec.RecordID] {
			t.Fatalf("exported batch repeats record id %s", rec.RecordID)
		}
		seen[rec.RecordID] = true
	}
}

func TestRunStopsPaginationOnZeroNewRecords(t *testing.T) {
	oh := newOrchestratorHarness(HarvesterConfig{}, allowAll())
	oh.seedListing("cats", 1,
		listingEntry("https://example.com/cats-a", "cats a", "cats"),
		listingEntry("https://example.com/cats-b", "cats b", "cats"),
	)
	// Page 2 repeats page 1's links: everything dedups away, so page 3
	// (which has no fixture) must never be requested.
	oh.seedListing("cats", 2,
		listingEntry("https://example.com/cats-a", "cats a", "cats"),
	)
	oh.seedArticle("https://example.com/cats-a", "a text")
	oh.seedArticle("https://example.com/cats-b", "b text")

	summary, err := oh.h.Run(context.Background(), []string{"cats"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.PagesFetched != 2 {
		t.Errorf("pages fetched = %d, want 2", summary.PagesFetched)
	}
	if summary.ListingFailures != 0 {
		t.Errorf("listing failures = %d, want 0", summary.ListingFailures)
	}
	if summary.Collected != 2 {
		t.Errorf("collected = %d, want 2", summary.Collected)
	}
}

func TestRunRespectsPageCeiling(t *testing.T) {
	oh := newOrchestratorHarness(HarvesterConfig{MaxPages: 2}, allowAll())
	oh.seedListing("cats", 1, listingEntry("https://example.com/c1", "cats one", "cats"))
	oh.seedListing("cats", 2, listingEntry("https://example.com/c2", "cats two", "cats"))
	// Page 3 exists and would contribute records, but the ceiling is 2.
	oh.seedListing("cats", 3, listingEntry("https://example.com/c3", "cats three", "cats"))
	oh.seedArticle("https://example.com/c1", "one")
	oh.seedArticle("https://example.com/c2", "two")

	summary, err := oh.h.Run(context.Background(), []string{"cats"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.PagesFetched != 2 {
		t.Errorf("pages fetched = %d, want 2", summary.PagesFetched)
	}
	if summary.Collected != 2 {
		t.Errorf("collected = %d, want 2", summary.Collected)
	}
	if oh.fetcher.callCount(oh.listing.PageURL("cats", 3)) != 0 {
		t.Error("page 3 fetched despite the ceiling")
	}
}

func TestRunListingFailureEndsQueryNotRun(t *testing.T) {
	oh := newOrchestratorHarness(HarvesterConfig{}, allowAll())
	oh.fetcher.errs[oh.listing.PageURL("cats", 1)] = errors.New("503 from provider")
	oh.seedListing("dogs", 1, listingEntry("https://example.com/dogs-b", "dogs", "dogs"))
	oh.seedListing("dogs", 2)
	oh.seedArticle("https://example.com/dogs-b", "dog text")

	summary, err := oh.h.Run(context.Background(), []string{"cats", "dogs"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.ListingFailures != 1 {
		t.Errorf("listing failures = %d, want 1", summary.ListingFailures)
	}
	if summary.Collected != 1 {
		t.Errorf("collected = %d, want 1 (dogs only)", summary.Collected)
	}
	if summary.ContentStored != 1 {
		t.Errorf("content stored = %d, want 1", summary.ContentStored)
	}
}

func TestRunPersistFailureContinues(t *testing.T) {
	oh := newOrchestratorHarness(HarvesterConfig{}, allowAll())
	oh.results.err = errors.New("database unavailable")
	oh.seedListing("cats", 1, listingEntry("https://example.com/cats-a", "cats", "cats"))
	oh.seedListing("cats", 2)
	oh.seedArticle("https://example.com/cats-a", "cat text")

	summary, err := oh.h.Run(context.Background(), []string{"cats"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !summary.PersistFailed {
		t.Error("summary should flag the failed persist")
	}
	if len(oh.exporter.batches) != 1 {
		t.Errorf("export should still run, got %d batches", len(oh.exporter.batches))
	}
	if summary.ContentStored != 1 {
		t.Errorf("content should still run, stored = %d", summary.ContentStored)
	}
	if len(oh.notifier.payloads) != 1 {
		t.Errorf("completion should still publish, got %d payloads", len(oh.notifier.payloads))
	}
}

func TestRunExportFailureContinues(t *testing.T) {
	oh := newOrchestratorHarness(HarvesterConfig{}, allowAll())
	oh.exporter.err = errors.New("disk full")
	oh.seedListing("cats", 1, listingEntry("https://example.com/cats-a", "cats", "cats"))
	oh.seedListing("cats", 2)
	oh.seedArticle("https://example.com/cats-a", "cat text")

	summary, err := oh.h.Run(context.Background(), []string{"cats"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.ExportPath != "" {
		t.Errorf("export path should stay empty on failure, got %q", summary.ExportPath)
	}
	if summary.Exported != 1 {
		t.Errorf("exported count = %d, want 1", summary.Exported)
	}
	if summary.ContentStored != 1 {
		t.Errorf("content should still run, stored = %d", summary.ContentStored)
	}
}

func TestRunExcludesEntryWithEmptyTitle(t *testing.T) {
	oh := newOrchestratorHarness(HarvesterConfig{}, allowAll())
	oh.seedListing("cats", 1,
		listingEntry("https://example.com/untitled", "", "a snippet"),
		listingEntry("https://example.com/cats-a", "cats a", "cats"),
	)
	oh.seedListing("cats", 2)
	oh.seedArticle("https://example.com/cats-a", "cat text")

	summary, err := oh.h.Run(context.Background(), []string{"cats"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Collected != 1 {
		t.Fatalf("collected = %d, want 1", summary.Collected)
	}
	if oh.results.batches[0][0].URL != "https://example.com/cats-a" {
		t.Errorf("wrong record kept: %+v", oh.results.batches[0][0])
	}
}

func TestRunRelevanceFilterExcludesUnrelatedEntries(t *testing.T) {
	oh := newOrchestratorHarness(HarvesterConfig{}, keyword.New())
	oh.seedListing("weather", 1,
		listingEntry("https://example.com/ad", "Unrelated Product", "Buy now"),
		listingEntry("https://example.com/forecast", "Weather in Oslo", "Seven day forecast"),
	)
	oh.seedListing("weather", 2)
	oh.seedArticle("https://example.com/forecast", "rain tomorrow")

	summary, err := oh.h.Run(context.Background(), []string{"weather"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Collected != 1 {
		t.Fatalf("collected = %d, want 1", summary.Collected)
	}
	if oh.results.batches[0][0].URL != "https://example.com/forecast" {
		t.Errorf("relevance filter kept the wrong record: %+v", oh.results.batches[0][0])
	}
	if oh.fetcher.callCount("https://example.com/ad") != 0 {
		t.Error("irrelevant entry's content should never be fetched")
	}
}

func TestRunRetriesContentTimeoutsThenStoresOnce(t *testing.T) {
	oh := newOrchestratorHarness(HarvesterConfig{}, allowAll())
	oh.seedListing("cats", 1, listingEntry("https://example.com/flaky", "cats flaky", "cats"))
	oh.seedListing("cats", 2)
	oh.seedArticle("https://example.com/flaky", "finally fetched")
	oh.fetcher.failN["https://example.com/flaky"] = 2

	summary, err := oh.h.Run(context.Background(), []string{"cats"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.ContentStored != 1 || summary.ContentFailed != 0 {
		t.Errorf("content counts = %d stored / %d failed, want 1/0",
			summary.ContentStored, summary.ContentFailed)
	}
	if got := oh.fetcher.callCount("https://example.com/flaky"); got != 3 {
		t.Errorf("content fetch attempts = %d, want 3", got)
	}
	if got := oh.content.stored(); len(got) != 1 {
		t.Errorf("stored ids = %v, want exactly one", got)
	}
}

func TestRunEmptyContentNotStoredNotRetried(t *testing.T) {
	oh := newOrchestratorHarness(HarvesterConfig{}, allowAll())
	oh.seedListing("cats", 1, listingEntry("https://example.com/hollow", "cats hollow", "cats"))
	oh.seedListing("cats", 2)
	oh.fetcher.pages["https://example.com/hollow"] = ""

	summary, err := oh.h.Run(context.Background(), []string{"cats"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.ContentEmpty != 1 || summary.ContentStored != 0 {
		t.Errorf("content counts = %d stored / %d empty, want 0/1",
			summary.ContentStored, summary.ContentEmpty)
	}
	if got := oh.fetcher.callCount("https://example.com/hollow"); got != 1 {
		t.Errorf("empty content fetched %d times, want 1 (no retries)", got)
	}
	if got := oh.content.stored(); len(got) != 0 {
		t.Errorf("empty content must not be stored, got %v", got)
	}
}

func TestRunEmitsProgressEvents(t *testing.T) {
	oh := newOrchestratorHarness(HarvesterConfig{}, allowAll())
	oh.seedListing("cats", 1, listingEntry("https://example.com/cats-a", "cats", "cats"))
	oh.seedListing("cats", 2)
	oh.seedArticle("https://example.com/cats-a", "cat text")

	if _, err := oh.h.Run(context.Background(), []string{"cats"}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if got := oh.emitter.byStage(progress.StageRunStart); len(got) != 1 {
		t.Errorf("RUN_START events = %d, want 1", len(got))
	}
	pages := oh.emitter.byStage(progress.StageListingPage)
	if len(pages) != 2 {
		t.Fatalf("LISTING_PAGE events = %d, want 2", len(pages))
	}
	if pages[0].Query != "cats" || pages[0].Page != 1 || pages[0].Records != 1 {
		t.Errorf("first listing event = %+v", pages[0])
	}
	content := oh.emitter.byStage(progress.StageContentDone)
	if len(content) != 1 || content[0].Outcome != progress.OutcomeStored {
		t.Errorf("CONTENT_DONE events = %+v", content)
	}
	done := oh.emitter.byStage(progress.StageRunDone)
	if len(done) != 1 || done[0].Records != 1 {
		t.Errorf("RUN_DONE events = %+v", done)
	}
	for _, evt := range oh.emitter.events {
		if evt.RunID != "run-1" {
			t.Errorf("event missing run id: %+v", evt)
		}
		if evt.TS.IsZero() {
			t.Errorf("event missing timestamp: %+v", evt)
		}
	}
}

func TestRunCanceledContextReturnsError(t *testing.T) {
	oh := newOrchestratorHarness(HarvesterConfig{}, allowAll())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := oh.h.Run(ctx, []string{"cats"})
	if err == nil {
		t.Fatal("expected error from canceled run")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error should wrap context.Canceled, got %v", err)
	}
	if summary.PagesFetched != 0 {
		t.Errorf("canceled run fetched %d pages", summary.PagesFetched)
	}
	if got := oh.emitter.byStage(progress.StageRunError); len(got) != 1 {
		t.Errorf("RUN_ERROR events = %d, want 1", len(got))
	}
}
