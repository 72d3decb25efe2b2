// Package redis implements a Redis-backed seen-URL registry so that
// harvester replicas can share one dedup horizon per run.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 24 * time.Hour

// Config captures the Redis connection parameters for the shared registry.
type Config struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	// TTL bounds how long the seen-set of an abandoned run survives.
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// Registry stores record ids in a Redis set keyed by run id.
type Registry struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// New connects to Redis and scopes the registry to the provided run id.
func New(ctx context.Context, cfg Config, runID string) (*Registry, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		closeErr := client.Close()
		if closeErr != nil {
			return nil, fmt.Errorf("ping redis: %w (close client: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewWithClient(client, runID, cfg.TTL)
}

// NewWithClient wraps an existing client (primarily for testing). The
// registry takes ownership of the client and closes it with Close.
func NewWithClient(client *redis.Client, runID string, ttl time.Duration) (*Registry, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Registry{
		client: client,
		key:    "harvest:seen:" + runID,
		ttl:    ttl,
	}, nil
}

// Contains reports whether the id is in the run's set.
func (r *Registry) Contains(ctx context.Context, id string) (bool, error) {
	seen, err := r.client.SIsMember(ctx, r.key, id).Result()
	if err != nil {
		return false, fmt.Errorf("check %s: %w", r.key, err)
	}
	return seen, nil
}

// Add inserts the id into the run's set and refreshes the set's TTL.
func (r *Registry) Add(ctx context.Context, id string) error {
	if err := r.client.SAdd(ctx, r.key, id).Err(); err != nil {
		return fmt.Errorf("add to %s: %w", r.key, err)
	}
	if err := r.client.Expire(ctx, r.key, r.ttl).Err(); err != nil {
		return fmt.Errorf("expire %s: %w", r.key, err)
	}
	return nil
}

// Len reports the cardinality of the run's set.
func (r *Registry) Len(ctx context.Context) (int, error) {
	n, err := r.client.SCard(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("size of %s: %w", r.key, err)
	}
	return int(n), nil
}

// Reset deletes the run's set so the next Add starts from empty.
func (r *Registry) Reset(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("reset %s: %w", r.key, err)
	}
	return nil
}

// Close deletes the run's set and releases the client.
func (r *Registry) Close(ctx context.Context) error {
	delErr := r.client.Del(ctx, r.key).Err()
	closeErr := r.client.Close()
	if delErr != nil {
		return fmt.Errorf("delete %s: %w", r.key, delErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close redis client: %w", closeErr)
	}
	return nil
}
