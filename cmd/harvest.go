package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/queryharvest/harvester/internal/harvest"
)

// newHarvestCmd creates and configures the 'harvest' subcommand: a one-shot,
// blocking run over the queries given on the command line.
func newHarvestCmd() *cobra.Command {
	var rawQueries string

	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Runs one harvesting pass over a batch of queries",
		Long: `Collects search listings for the given comma-separated queries, dedupes
and persists them, writes the CSV export, and fetches every exported page's
content. Blocks until the run completes and prints a summary.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			queries := harvest.ParseQueries(rawQueries)
			if len(queries) == 0 {
				return fmt.Errorf("no usable queries in %q; pass --queries \"cats, dogs\"", rawQueries)
			}

			logger := appInstance.GetLogger()
			logger.Info("starting harvest run", zap.Strings("queries", queries))

			summary, err := appInstance.Run(cmd.Context(), queries)
			if err != nil {
				return fmt.Errorf("harvest run: %w", err)
			}

			printSummary(cmd, summary)
			return nil
		},
	}

	cmd.Flags().StringVar(&rawQueries, "queries", "", "comma-separated search queries (required)")
	_ = cmd.MarkFlagRequired("queries")

	return cmd
}

func printSummary(cmd *cobra.Command, s harvest.RunSummary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s finished in %s\n", s.RunID, s.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  queries:         %d\n", len(s.Queries))
	fmt.Fprintf(out, "  pages fetched:   %d\n", s.PagesFetched)
	fmt.Fprintf(out, "  records:         %d collected, %d exported\n", s.Collected, s.Exported)
	fmt.Fprintf(out, "  content:         %d stored, %d empty, %d failed\n", s.ContentStored, s.ContentEmpty, s.ContentFailed)
	if s.ListingFailures > 0 || s.PersistFailed {
		fmt.Fprintf(out, "  failures:        %d listing, persist failed: %t\n", s.ListingFailures, s.PersistFailed)
	}
	if s.ExportPath != "" {
		fmt.Fprintf(out, "  export:          %s\n", s.ExportPath)
	}
}
