// Package dispatcher consumes harvest triggers from the queue and runs them.
package dispatcher

import (
	"bytes"
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/queryharvest/harvester/internal/harvest"
	"github.com/queryharvest/harvester/internal/queue"
)

// Runner executes one harvesting run over a list of queries.
type Runner interface {
	Run(ctx context.Context, queries []string) (harvest.RunSummary, error)
}

// Dispatcher subscribes to the trigger queue and executes a blocking run per
// message. Message bodies are raw comma-separated query strings; returning an
// error from the handler leaves the message unacked so the backend redelivers.
type Dispatcher struct {
	queue  queue.Provider
	runner Runner
	logger *zap.Logger
}

// New creates a Dispatcher.
func New(q queue.Provider, runner Runner, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:  q,
		runner: runner,
		logger: logger,
	}
}

// Run blocks on the queue subscription until the context ends.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher listening for harvest triggers")
	if err := d.queue.Receive(ctx, d.handle); err != nil {
		return fmt.Errorf("queue receive: %w", err)
	}
	return nil
}

func (d *Dispatcher) handle(ctx context.Context, data []byte) error {
	// Run-completion notifications are JSON and may arrive on the same
	// channel in single-topic setups. Triggers are raw query strings, so a
	// JSON payload is never a trigger; acking it here keeps a completion
	// message from starting a run whose own completion would retrigger.
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		d.logger.Debug("ignoring non-trigger payload", zap.ByteString("payload", trimmed))
		return nil
	}

	queries := harvest.ParseQueries(string(data))
	if len(queries) == 0 {
		// Ack and drop: redelivering an empty trigger can never succeed.
		d.logger.Warn("discarding trigger with no usable queries",
			zap.ByteString("payload", data))
		return nil
	}

	d.logger.Info("harvest trigger received", zap.Strings("queries", queries))
	summary, err := d.runner.Run(ctx, queries)
	if err != nil {
		d.logger.Error("triggered run failed", zap.Error(err))
		return fmt.Errorf("run triggered harvest: %w", err)
	}

	d.logger.Info("triggered run complete",
		zap.String("run_id", summary.RunID),
		zap.Int("collected", summary.Collected),
		zap.Int("stored", summary.ContentStored),
		zap.Duration("duration", summary.Duration))
	return nil
}
