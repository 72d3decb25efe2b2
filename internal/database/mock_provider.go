package database

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/queryharvest/harvester/internal/harvest"
)

// MockProvider is a mock implementation of the Provider interface for testing.
type MockProvider struct {
	mock.Mock
}

// UpsertBatch is the mock implementation of the UpsertBatch method.
func (m *MockProvider) UpsertBatch(ctx context.Context, records []harvest.Record) error {
	args := m.Called(ctx, records)
	return args.Error(0) //nolint:wrapcheck
}

// RecordsByQuery is the mock implementation of the RecordsByQuery method.
func (m *MockProvider) RecordsByQuery(ctx context.Context, query string, limit int) ([]harvest.Record, error) {
	args := m.Called(ctx, query, limit)
	if recs := args.Get(0); recs != nil {
		return recs.([]harvest.Record), args.Error(1)
	}
	return nil, args.Error(1)
}

// Close is the mock implementation of the Close method.
func (m *MockProvider) Close() error {
	args := m.Called()
	return args.Error(0) //nolint:wrapcheck
}
