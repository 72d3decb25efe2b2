package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"

	"github.com/queryharvest/harvester/internal/harvest"
)

func summaryOutput(t *testing.T, s harvest.RunSummary) string {
	t.Helper()
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	printSummary(cmd, s)
	return buf.String()
}

func TestPrintSummaryCleanRun(t *testing.T) {
	t.Parallel()

	out := summaryOutput(t, harvest.RunSummary{
		RunID:         "0198f3a0-0000-7000-8000-0000000000aa",
		Queries:       []string{"cats", "dogs"},
		PagesFetched:  4,
		Collected:     20,
		Exported:      18,
		ContentStored: 17,
		ContentEmpty:  1,
		ExportPath:    "exports/run.csv",
		Duration:      1500 * time.Millisecond,
	})

	assert.Contains(t, out, "queries:         2")
	assert.Contains(t, out, "20 collected, 18 exported")
	assert.Contains(t, out, "exports/run.csv")
	assert.NotContains(t, out, "failures:")
}

func TestPrintSummaryReportsFailures(t *testing.T) {
	t.Parallel()

	out := summaryOutput(t, harvest.RunSummary{
		RunID:           "0198f3a0-0000-7000-8000-0000000000ab",
		Queries:         []string{"cats"},
		ListingFailures: 2,
		PersistFailed:   true,
	})

	assert.Contains(t, out, "2 listing")
	assert.Contains(t, out, "persist failed: true")
}

func TestPrintSummaryPersistFailureAlone(t *testing.T) {
	t.Parallel()

	out := summaryOutput(t, harvest.RunSummary{
		RunID:         "0198f3a0-0000-7000-8000-0000000000ac",
		Queries:       []string{"cats"},
		PersistFailed: true,
	})

	// The failures line appears even with zero listing failures.
	assert.Contains(t, out, "failures:")
	assert.Contains(t, out, "persist failed: true")
}
