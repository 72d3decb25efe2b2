package harvest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ListingPagesTotal tracks search-result pages fetched, by outcome.
	ListingPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_listing_pages_total",
		Help: "The total number of search listing pages fetched, labeled by outcome.",
	}, []string{"outcome"})
	// ListingEntriesTotal tracks listing entries seen, by what happened to them.
	ListingEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_listing_entries_total",
		Help: "The total number of listing entries processed, labeled by disposition.",
	}, []string{"disposition"})
	// ContentFetchesTotal tracks per-record content fetch outcomes.
	ContentFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_content_fetches_total",
		Help: "The total number of page content fetches, labeled by outcome.",
	}, []string{"outcome"})
	// ContentRetriesTotal tracks backoff-then-retry cycles during content fetch.
	ContentRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_content_retries_total",
		Help: "The total number of content fetch retries.",
	})
	// BatchRecords observes how many records one run collected.
	BatchRecords = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvest_batch_records",
		Help:    "Records collected per harvesting run.",
		Buckets: []float64{0, 5, 10, 25, 50, 100, 250, 500},
	})
	// PhaseDuration observes wall time per orchestration phase.
	PhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "harvest_phase_duration_seconds",
		Help:    "Duration of each orchestration phase.",
		Buckets: prometheus.DefBuckets,
	}, []string{"phase"})
)

// Listing entry dispositions.
const (
	dispositionKept       = "kept"
	dispositionMissing    = "missing_fields"
	dispositionBlocked    = "blocked_host"
	dispositionIrrelevant = "irrelevant"
	dispositionDuplicate  = "duplicate"
	dispositionBadURL     = "bad_url"
)
