// Package fs implements a local filesystem content store.
package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the filesystem content store.
type Config struct {
	// BaseDir is the directory page text files are written into.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// ContentStore writes extracted page text to the local filesystem, one
// <record id>.txt file per record.
type ContentStore struct {
	baseDir string
}

// New creates a filesystem-backed content store rooted at cfg.BaseDir.
func New(cfg Config) (*ContentStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	// Check if the directory exists and is writable.
	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			// Directory doesn't exist, try to create it.
			if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
				return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
			}
		} else {
			// Some other error.
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	// Check for write permissions.
	probe := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &ContentStore{
		baseDir: cfg.BaseDir,
	}, nil
}

// Store writes the extracted text to <base dir>/<record id>.txt, replacing
// any file already stored for the record.
func (s *ContentStore) Store(_ context.Context, recordID, _, text string) error {
	if strings.TrimSpace(recordID) == "" {
		return fmt.Errorf("record id is required")
	}

	fullPath := filepath.Join(s.baseDir, recordID+".txt")

	// Clean the path and verify it's within baseDir to prevent path traversal.
	cleanBaseDir := filepath.Clean(s.baseDir)
	cleanFullPath := filepath.Clean(fullPath)
	if !strings.HasPrefix(cleanFullPath, cleanBaseDir+string(filepath.Separator)) {
		return fmt.Errorf("path traversal detected")
	}

	if err := os.WriteFile(fullPath, []byte(text), 0o600); err != nil {
		return fmt.Errorf("failed to write content file: %w", err)
	}
	return nil
}

// Close is a no-op for the filesystem store.
func (s *ContentStore) Close() error {
	return nil
}
