// Package queue defines the interfaces for a message queue provider.
// This abstraction allows the application to be independent of a specific
// message queue implementation (e.g., GCP Pub/Sub, RabbitMQ, Kafka).
// Payloads are opaque byte slices; the dispatcher defines their meaning.
package queue

import (
	"context"
)

// Handler processes a single received payload. Returning an error tells
// the provider the payload was not handled; backends that support
// redelivery will offer it again.
type Handler func(ctx context.Context, data []byte) error

// Provider defines the common interface for a message queue.
// It abstracts publishing trigger payloads, receiving them, and closing
// the connection.
type Provider interface {
	// Publish sends a payload to the configured topic. It blocks until
	// the backend has accepted the message or the context ends.
	Publish(ctx context.Context, data []byte) error

	// Receive delivers payloads to handler until the context ends.
	// It blocks for the lifetime of the subscription and returns nil
	// on a clean shutdown.
	Receive(ctx context.Context, handler Handler) error

	// Close cleans up any client connections and resources.
	Close() error
}

// NoOpProvider is a queue provider that performs no operations.
// It is useful for testing or running the application without a real
// message queue.
type NoOpProvider struct{}

// Publish for NoOpProvider does nothing and returns nil.
func (n *NoOpProvider) Publish(_ context.Context, _ []byte) error { return nil }

// Receive for NoOpProvider blocks until the context ends and delivers
// nothing.
func (n *NoOpProvider) Receive(ctx context.Context, _ Handler) error {
	<-ctx.Done()
	return nil
}

// Close for NoOpProvider does nothing and returns nil.
func (n *NoOpProvider) Close() error { return nil }
