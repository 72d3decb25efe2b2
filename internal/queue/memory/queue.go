// Package memory provides queue implementations for local development.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/queryharvest/harvester/internal/queue"
)

// Queue is a bounded in-memory queue with context-aware operations.
// It implements queue.Provider for tests and single-process deployments.
// Unlike Pub/Sub it does not redeliver payloads whose handler failed.
type Queue struct {
	ch      chan []byte
	done    chan struct{}
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		ch:   make(chan []byte, capacity),
		done: make(chan struct{}),
	}
}

// Publish pushes a payload into the queue or returns if the context ends.
// The payload is copied, so callers may reuse data after Publish returns.
func (q *Queue) Publish(ctx context.Context, data []byte) error {
	payload := append([]byte(nil), data...)
	select {
	case <-ctx.Done():
		return fmt.Errorf("publish canceled: %w", ctx.Err())
	case <-q.done:
		return errors.New("queue closed")
	case q.ch <- payload:
		return nil
	}
}

// Receive hands queued payloads to handler until the context ends or the
// queue is closed. Payloads whose handler returns an error are dropped.
func (q *Queue) Receive(ctx context.Context, handler queue.Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-q.done:
			return nil
		case data := <-q.ch:
			_ = handler(ctx, data)
		}
	}
}

// Len reports the number of payloads waiting to be received.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close unblocks publishers and receivers for shutdown.
func (q *Queue) Close() error {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return nil
	}
	close(q.done)
	q.closed = true
	return nil
}
