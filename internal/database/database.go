// Package database defines the interfaces for persisting harvested records.
// By using an interface, we decouple the application from a specific database
// implementation, allowing for easier testing and flexibility in the future.
package database

import (
	"context"

	"github.com/queryharvest/harvester/internal/harvest"
)

// Provider defines the common interface for our database layer. This allows
// us to use a real Postgres database in production and a mock (NoOpProvider)
// in tests or for local development.
type Provider interface {
	// UpsertBatch writes the whole batch with insert-or-update semantics
	// keyed on record id, atomically: either every record lands or none do.
	UpsertBatch(ctx context.Context, records []harvest.Record) error

	// RecordsByQuery returns the stored records for one query phrase,
	// newest first. limit <= 0 applies a server-side default.
	RecordsByQuery(ctx context.Context, query string, limit int) ([]harvest.Record, error)

	// Close terminates the database connection and releases any resources.
	Close() error
}

// NoOpProvider is a database provider that performs no operations. It is
// useful for running the harvester without a real database connection.
type NoOpProvider struct{}

// UpsertBatch for NoOpProvider does nothing and returns no error.
func (n *NoOpProvider) UpsertBatch(_ context.Context, _ []harvest.Record) error {
	return nil
}

// RecordsByQuery for NoOpProvider always returns an empty slice.
func (n *NoOpProvider) RecordsByQuery(_ context.Context, _ string, _ int) ([]harvest.Record, error) {
	return []harvest.Record{}, nil
}

// Close for NoOpProvider does nothing and returns no error.
func (n *NoOpProvider) Close() error { return nil }
