// Package storage defines the interface for durable page-content storage.
// This abstraction keeps the harvesting pipeline independent of a specific
// backend (e.g., Google Cloud Storage, Postgres, or the local filesystem).
package storage

import (
	"context"
)

// Provider defines the common interface for a page-content store.
// Store must be safe for concurrent use: content fetches run on a
// worker pool and store their text as they finish.
type Provider interface {
	// Store persists the extracted text for a record, replacing any
	// content previously stored under the same record id.
	Store(ctx context.Context, recordID, query, text string) error
	// Close releases the resources held by the store.
	Close() error
}

// NoOpProvider is a content store that performs no operations.
// It is useful for testing or for dry runs where pages are fetched
// and counted but their text is not kept.
type NoOpProvider struct{}

// Store for NoOpProvider does nothing and always returns nil.
func (n *NoOpProvider) Store(_ context.Context, _, _, _ string) error {
	return nil
}

// Close for NoOpProvider does nothing and always returns nil.
func (n *NoOpProvider) Close() error {
	return nil
}
