// Package gcs provides a content store backed by Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the parameters required to write page content to GCS.
type Config struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
}

// ContentStore writes extracted page text into a configured GCS bucket,
// one text object per record id.
type ContentStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed content store.
func New(client *storage.Client, cfg Config) (*ContentStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &ContentStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Store uploads the extracted text to <prefix>/<record id>.txt in the
// configured bucket. The originating query is attached as object metadata.
func (s *ContentStore) Store(ctx context.Context, recordID, query, text string) error {
	if strings.TrimSpace(recordID) == "" {
		return fmt.Errorf("record id is required")
	}

	writer := s.client.Bucket(s.bucket).Object(s.objectName(recordID)).NewWriter(ctx)
	writer.ContentType = "text/plain; charset=utf-8"
	if query != "" {
		writer.Metadata = map[string]string{"query": query}
	}

	if _, err := io.Copy(writer, strings.NewReader(text)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write object: %w", err)
	}
	// Close must be called to finalize the upload. It flushes any buffered data.
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// Close releases the underlying GCS client.
func (s *ContentStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close storage client: %w", err)
	}
	return nil
}

func (s *ContentStore) objectName(recordID string) string {
	if s.prefix == "" {
		return recordID + ".txt"
	}
	return s.prefix + "/" + recordID + ".txt"
}
