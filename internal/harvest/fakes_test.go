package harvest

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Shared in-package fakes for the pipeline seams. Each one records what it
// was asked to do so tests can assert on call order and payloads.

type relevanceFunc func(query, title, snippet string) bool

func (f relevanceFunc) Relevant(query, title, snippet string) bool {
	return f(query, title, snippet)
}

func allowAll() Relevance {
	return relevanceFunc(func(string, string, string) bool { return true })
}

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	errs  map[string]error
	failN map[string]int
	calls []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages: map[string]string{},
		errs:  map[string]error{},
		failN: map[string]int{},
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rawURL)
	if n := f.failN[rawURL]; n > 0 {
		f.failN[rawURL] = n - 1
		return FetchResponse{}, context.DeadlineExceeded
	}
	if err, ok := f.errs[rawURL]; ok {
		return FetchResponse{}, err
	}
	body, ok := f.pages[rawURL]
	if !ok {
		return FetchResponse{}, fmt.Errorf("no fixture for %s", rawURL)
	}
	return FetchResponse{
		URL:        rawURL,
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": []string{"text/html"}},
		Body:       []byte(body),
	}, nil
}

func (f *fakeFetcher) callCount(rawURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == rawURL {
			n++
		}
	}
	return n
}

type fakeRegistry struct {
	ids         map[string]struct{}
	resets      int
	closed      bool
	containsErr error
	addErr      error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{ids: map[string]struct{}{}}
}

func (r *fakeRegistry) Contains(_ context.Context, id string) (bool, error) {
	if r.containsErr != nil {
		return false, r.containsErr
	}
	_, ok := r.ids[id]
	return ok, nil
}

func (r *fakeRegistry) Add(_ context.Context, id string) error {
	if r.addErr != nil {
		return r.addErr
	}
	r.ids[id] = struct{}{}
	return nil
}

func (r *fakeRegistry) Len(context.Context) (int, error) { return len(r.ids), nil }

func (r *fakeRegistry) Reset(context.Context) error {
	r.ids = map[string]struct{}{}
	r.resets++
	return nil
}

func (r *fakeRegistry) Close(context.Context) error {
	r.closed = true
	return nil
}

type fakeSink struct {
	mu      sync.Mutex
	batches [][]Record
	err     error
}

func (s *fakeSink) UpsertBatch(_ context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	cp := make([]Record, len(records))
	copy(cp, records)
	s.batches = append(s.batches, cp)
	return nil
}

type fakeExporter struct {
	mu      sync.Mutex
	batches [][]Record
	path    string
	err     error
}

func (e *fakeExporter) WriteBatch(_ context.Context, runID string, records []Record) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return "", e.err
	}
	cp := make([]Record, len(records))
	copy(cp, records)
	e.batches = append(e.batches, cp)
	if e.path == "" {
		e.path = "exports/results_" + runID + ".csv"
	}
	return e.path, nil
}

type fakeContentSink struct {
	mu    sync.Mutex
	texts map[string]string
	errs  map[string]error
}

func newFakeContentSink() *fakeContentSink {
	return &fakeContentSink{texts: map[string]string{}, errs: map[string]error{}}
}

func (s *fakeContentSink) Store(_ context.Context, recordID, _, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errs[recordID]; ok {
		return err
	}
	s.texts[recordID] = text
	return nil
}

func (s *fakeContentSink) stored() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.texts))
	for id := range s.texts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type fakeNotifier struct {
	mu       sync.Mutex
	payloads [][]byte
	err      error
}

func (n *fakeNotifier) Publish(_ context.Context, data []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	n.payloads = append(n.payloads, cp)
	return nil
}

// fakeClock never sleeps for real; it records requested durations so backoff
// schedules can be asserted without slowing the suite down.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

type fixedIDGen struct{ id string }

func (g fixedIDGen) NewID() (string, error) { return g.id, nil }
