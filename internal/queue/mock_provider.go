package queue

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockProvider is a mock implementation of the Provider interface for testing.
type MockProvider struct {
	mock.Mock
}

// Publish is the mock implementation of the Publish method.
func (m *MockProvider) Publish(ctx context.Context, data []byte) error {
	args := m.Called(ctx, data)
	return args.Error(0) //nolint:wrapcheck
}

// Receive is the mock implementation of the Receive method.
func (m *MockProvider) Receive(ctx context.Context, handler Handler) error {
	args := m.Called(ctx, handler)
	return args.Error(0) //nolint:wrapcheck
}

// Close is the mock implementation of the Close method.
func (m *MockProvider) Close() error {
	args := m.Called()
	return args.Error(0) //nolint:wrapcheck
}
