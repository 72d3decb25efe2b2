// Package export writes harvested record batches to tabular export files.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/queryharvest/harvester/internal/harvest"
)

// header matches the columns downstream consumers of the export expect.
var header = []string{"Query", "Title", "URL", "Snippet", "Record ID"}

// Config captures the parameters for the CSV exporter.
type Config struct {
	// Dir is the directory export files are written into.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// CSVExporter writes one results_<run id>.csv per run.
type CSVExporter struct {
	dir    string
	logger *zap.Logger
}

// NewCSVExporter returns an exporter rooted at cfg.Dir, creating the
// directory when it does not exist.
func NewCSVExporter(cfg Config, logger *zap.Logger) (*CSVExporter, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("export directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create export dir %s: %w", cfg.Dir, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVExporter{dir: cfg.Dir, logger: logger}, nil
}

// WriteBatch writes the batch to results_<run id>.csv and returns the path.
// The rows land in a temp file that is renamed into place, so readers never
// observe a partial export.
func (e *CSVExporter) WriteBatch(ctx context.Context, runID string, records []harvest.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context canceled: %w", err)
	}
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	target := filepath.Join(e.dir, "results_"+runID+".csv")

	// Clean the path and verify it's within the export dir to prevent path traversal.
	cleanDir := filepath.Clean(e.dir)
	if !strings.HasPrefix(filepath.Clean(target), cleanDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}

	tmp, err := os.CreateTemp(e.dir, "results_*.csv.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp export: %w", err)
	}
	defer func() {
		if removeErr := os.Remove(tmp.Name()); removeErr != nil && !os.IsNotExist(removeErr) {
			e.logger.Warn("failed to remove temp export",
				zap.String("path", tmp.Name()),
				zap.Error(removeErr))
		}
	}()

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		closeQuietly(tmp, e.logger)
		return "", fmt.Errorf("write header: %w", err)
	}
	for _, rec := range records {
		row := []string{rec.Query, rec.Title, rec.URL, rec.Snippet, rec.RecordID}
		if err := w.Write(row); err != nil {
			closeQuietly(tmp, e.logger)
			return "", fmt.Errorf("write record %s: %w", rec.RecordID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		closeQuietly(tmp, e.logger)
		return "", fmt.Errorf("flush export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp export: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("finalize export %s: %w", target, err)
	}
	return target, nil
}

func closeQuietly(f *os.File, logger *zap.Logger) {
	if err := f.Close(); err != nil {
		logger.Warn("failed to close temp export", zap.String("path", f.Name()), zap.Error(err))
	}
}

// NoOpExporter discards batches. It is useful for dry runs where listings
// are collected but no export file is wanted.
type NoOpExporter struct{}

// WriteBatch for NoOpExporter does nothing and always returns an empty path.
func (n *NoOpExporter) WriteBatch(_ context.Context, _ string, _ []harvest.Record) (string, error) {
	return "", nil
}
