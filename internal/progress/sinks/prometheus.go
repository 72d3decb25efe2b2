package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/queryharvest/harvester/internal/progress"
)

// PrometheusSink exports harvest progress metrics via Prometheus. It owns all
// collectors for runs started/completed/running and per-query page, record,
// and content-outcome counters.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runRuntime    *prometheus.HistogramVec

	queryPages      *prometheus.CounterVec
	queryRecords    *prometheus.CounterVec
	contentOutcomes *prometheus.CounterVec
	contentDuration *prometheus.HistogramVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvest_runs_started_total",
			Help: "Total harvest runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_runs_completed_total",
			Help: "Total harvest runs completed partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "harvest_runs_running",
			Help: "Current number of running harvest runs.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvest_run_runtime_seconds",
			Help:    "Wall time per completed harvest run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"result"}),
		queryPages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_query_pages_total",
			Help: "Listing pages collected per query.",
		}, []string{"query"}),
		queryRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_query_records_total",
			Help: "New records accepted per query.",
		}, []string{"query"}),
		contentOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_content_outcomes_total",
			Help: "Content fetch completions partitioned by query and outcome.",
		}, []string{"query", "outcome"}),
		contentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvest_content_fetch_duration_seconds",
			Help:    "Content fetch duration partitioned by query and outcome.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"query", "outcome"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runRuntime,
		s.queryPages,
		s.queryRecords,
		s.contentOutcomes,
		s.contentDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart, progress.StageRunDone, progress.StageRunError:
		s.handleRunEvent(evt)
	case progress.StageListingPage:
		s.handleListingEvent(evt)
	case progress.StageContentDone:
		s.handleContentEvent(evt)
	}
}

func (s *PrometheusSink) handleRunEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StageRunDone:
		s.runsCompleted.WithLabelValues("success").Inc()
		s.observeRuntime(evt, "success")
	case progress.StageRunError:
		s.runsCompleted.WithLabelValues("error").Inc()
		s.observeRuntime(evt, "error")
	}
	if evt.Stage != progress.StageRunStart && s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

func (s *PrometheusSink) observeRuntime(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.runRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handleListingEvent(evt progress.Event) {
	query := evt.Query
	if query == "" {
		query = "unknown"
	}
	s.queryPages.WithLabelValues(query).Inc()
	if evt.Records > 0 {
		s.queryRecords.WithLabelValues(query).Add(float64(evt.Records))
	}
}

func (s *PrometheusSink) handleContentEvent(evt progress.Event) {
	query := evt.Query
	if query == "" {
		query = "unknown"
	}
	outcome := evt.Outcome
	if outcome == "" {
		outcome = progress.OutcomeFailed
	}
	s.contentOutcomes.WithLabelValues(query, outcome).Inc()
	if evt.Dur > 0 {
		s.contentDuration.WithLabelValues(query, outcome).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[string]struct{})}
}

func (t *runTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
