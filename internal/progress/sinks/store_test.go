package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/queryharvest/harvester/internal/progress"
	"github.com/queryharvest/harvester/internal/store"
)

// TestStoreSinkPersistsRunLifecycle ensures page/record deltas are collapsed
// per query and class before persisting.
func TestStoreSinkPersistsRunLifecycle(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewStoreSink(repo, nil)
	runID := "0192f7a8-3333-7abc-8def-000000000001"
	now := time.Now()

	batch := []progress.Event{
		{RunID: runID, Stage: progress.StageRunStart, TS: now, Records: 2},
		{RunID: runID, Stage: progress.StageListingPage, Query: "gold price", Page: 1, Records: 10, TS: now.Add(1 * time.Second)},
		{RunID: runID, Stage: progress.StageListingPage, Query: "gold price", Page: 2, Records: 5, TS: now.Add(2 * time.Second)},
		{RunID: runID, Stage: progress.StageContentDone, Query: "gold price", Outcome: progress.OutcomeStored, Dur: time.Second, TS: now.Add(3 * time.Second)},
		{RunID: runID, Stage: progress.StageContentDone, Query: "gold price", Outcome: progress.OutcomeStored, Dur: time.Second, TS: now.Add(4 * time.Second)},
		{RunID: runID, Stage: progress.StageContentDone, Query: "gold price", Outcome: progress.OutcomeTransient, Dur: time.Second, TS: now.Add(5 * time.Second)},
		{RunID: runID, Stage: progress.StageRunDone, TS: now.Add(6 * time.Second), Records: 15, Dur: 6 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Len(t, repo.starts, 1)
	require.Equal(t, 2, repo.starts[0].queries)
	require.Len(t, repo.completes, 1)
	require.Equal(t, store.RunSuccess, repo.completes[0].status)
	require.Equal(t, int64(15), repo.completes[0].records)
	require.Nil(t, repo.completes[0].errMsg)

	listed := repo.statsByClass(store.ClassListed)
	require.NotNil(t, listed)
	require.Equal(t, int64(2), listed.deltaPages)
	require.Equal(t, int64(15), listed.deltaCount)

	stored := repo.statsByClass(store.ClassStored)
	require.NotNil(t, stored)
	require.Equal(t, int64(0), stored.deltaPages)
	require.Equal(t, int64(2), stored.deltaCount)

	// Transient exhaustion counts as a failure in durable stats.
	failed := repo.statsByClass(store.ClassFailed)
	require.NotNil(t, failed)
	require.Equal(t, int64(1), failed.deltaCount)
}

// TestStoreSinkRecordsErrorNote surfaces the run error message to the repository.
func TestStoreSinkRecordsErrorNote(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewStoreSink(repo, nil)
	err := sink.Consume(context.Background(), []progress.Event{
		{
			RunID: "0192f7a8-3333-7abc-8def-000000000002",
			Stage: progress.StageRunError,
			TS:    time.Now(),
			Note:  "listing fetch failed",
		},
	})
	require.NoError(t, err)
	require.Len(t, repo.completes, 1)
	require.Equal(t, store.RunError, repo.completes[0].status)
	require.NotNil(t, repo.completes[0].errMsg)
	require.Equal(t, "listing fetch failed", *repo.completes[0].errMsg)
}

// TestStoreSinkHandlesErrors surfaces repository failures back to the caller.
func TestStoreSinkHandlesErrors(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{fail: true}
	sink := NewStoreSink(repo, nil)
	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: "0192f7a8-3333-7abc-8def-000000000003", Stage: progress.StageRunStart, TS: time.Now()},
	})
	require.Error(t, err)
}

// TestStoreSinkSkipsUnscopedEvents drops listing/content events without a query.
func TestStoreSinkSkipsUnscopedEvents(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewStoreSink(repo, nil)
	err := sink.Consume(context.Background(), []progress.Event{
		{
			RunID:   "0192f7a8-3333-7abc-8def-000000000004",
			Stage:   progress.StageContentDone,
			Outcome: progress.OutcomeStored,
			TS:      time.Now(),
		},
	})
	require.NoError(t, err)
	require.Empty(t, repo.queryStats)
}

type fakeRunRepo struct {
	fail       bool
	starts     []startCall
	completes  []completeCall
	queryStats []statsCall
}

type startCall struct {
	runID   string
	queries int
}

type completeCall struct {
	runID   string
	status  store.RunStatus
	records int64
	errMsg  *string
}

type statsCall struct {
	runID      string
	query      string
	deltaPages int64
	deltaCount int64
	class      string
}

func (f *fakeRunRepo) UpsertRunStart(_ context.Context, runID string, queries int, _ time.Time) error {
	if f.fail {
		return assertErr("start")
	}
	f.starts = append(f.starts, startCall{runID: runID, queries: queries})
	return nil
}

func (f *fakeRunRepo) CompleteRun(
	_ context.Context,
	runID string,
	_ time.Time,
	status store.RunStatus,
	records int64,
	errMsg *string,
) error {
	if f.fail {
		return assertErr("complete")
	}
	f.completes = append(f.completes, completeCall{runID: runID, status: status, records: records, errMsg: errMsg})
	return nil
}

func (f *fakeRunRepo) UpsertQueryStats(
	_ context.Context,
	runID string,
	query string,
	deltaPages int64,
	deltaCount int64,
	class string,
	_ time.Time,
) error {
	if f.fail {
		return assertErr("stats")
	}
	f.queryStats = append(f.queryStats, statsCall{
		runID:      runID,
		query:      query,
		deltaPages: deltaPages,
		deltaCount: deltaCount,
		class:      class,
	})
	return nil
}

func (f *fakeRunRepo) GetRun(context.Context, string) (store.Run, error) {
	return store.Run{}, assertErr("read")
}

func (f *fakeRunRepo) ListRuns(context.Context, *store.RunStatus, int, int) ([]store.Run, error) {
	return nil, assertErr("list")
}

func (f *fakeRunRepo) ListRunQueries(context.Context, string, int, int) ([]store.QueryStats, error) {
	return nil, assertErr("queries")
}

func (f *fakeRunRepo) statsByClass(class string) *statsCall {
	for i := range f.queryStats {
		if f.queryStats[i].class == class {
			return &f.queryStats[i]
		}
	}
	return nil
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
