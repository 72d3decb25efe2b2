package queue

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Config holds the settings for the Google Cloud Pub/Sub provider.
type Config struct {
	// ProjectID is the GCP project that owns the topic.
	ProjectID string `mapstructure:"project_id" yaml:"project_id"`
	// TopicID is the topic harvest triggers are published to.
	TopicID string `mapstructure:"topic_id" yaml:"topic_id"`
	// Subscription is the subscription the dispatcher receives from.
	// It may be empty for publish-only deployments.
	Subscription string `mapstructure:"subscription" yaml:"subscription"`
}

// PubSubProvider implements the queue.Provider interface for Google Cloud Pub/Sub.
type PubSubProvider struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	logger *zap.Logger
}

// NewPubSubProvider creates a new Pub/Sub client and gets a handle to the
// configured topic. It authenticates using Google Cloud's Application
// Default Credentials and fails fast when the topic does not exist.
func NewPubSubProvider(ctx context.Context, cfg Config, logger *zap.Logger) (*PubSubProvider, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	provider, err := NewPubSubProviderWithClient(ctx, client, cfg.TopicID, cfg.Subscription, logger)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil && logger != nil {
			logger.Warn("Failed to close pubsub client after setup failure", zap.Error(closeErr))
		}
		return nil, err
	}
	return provider, nil
}

// NewPubSubProviderWithClient wraps an existing Pub/Sub client. The caller
// keeps ownership of the client until the provider's Close is called.
func NewPubSubProviderWithClient(ctx context.Context, client *pubsub.Client, topicID, subscription string, logger *zap.Logger) (*PubSubProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	if topicID == "" {
		return nil, fmt.Errorf("pubsub topic id is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for topic existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic '%s' does not exist", topicID)
	}

	provider := &PubSubProvider{
		client: client,
		topic:  topic,
		logger: logger,
	}
	if subscription != "" {
		provider.sub = client.Subscription(subscription)
	}
	return provider, nil
}

// Publish sends the payload to the Pub/Sub topic and blocks until the
// server acknowledges it, so callers learn about delivery failures.
// Trace context is propagated through message attributes.
func (p *PubSubProvider) Publish(ctx context.Context, data []byte) error {
	msg := &pubsub.Message{
		Data:       data,
		Attributes: make(map[string]string),
	}
	otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})

	result := p.topic.Publish(ctx, msg)
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// Receive pulls payloads from the configured subscription and hands them
// to handler. A handler error nacks the message so Pub/Sub redelivers it;
// otherwise the message is acked. Receive blocks until the context ends.
func (p *PubSubProvider) Receive(ctx context.Context, handler Handler) error {
	if p.sub == nil {
		return fmt.Errorf("pubsub subscription is not configured")
	}

	err := p.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		msgCtx := otel.GetTextMapPropagator().Extract(ctx, &pubsubCarrier{attrs: msg.Attributes})
		if err := handler(msgCtx, msg.Data); err != nil {
			p.logger.Warn("Queue handler failed; message will be redelivered",
				zap.String("message_id", msg.ID),
				zap.Error(err))
			msg.Nack()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("receive: %w", err)
	}
	return nil
}

// Close stops the topic's publisher and closes the underlying client connection.
func (p *PubSubProvider) Close() error {
	p.topic.Stop()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("failed to close pubsub client: %w", err)
	}
	return nil
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
