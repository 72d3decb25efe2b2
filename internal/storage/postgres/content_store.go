// Package postgres provides a Postgres-backed page-content store.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ContentStoreConfig controls the Postgres connection pool used for page content.
type ContentStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ContentStore writes extracted page text into Postgres, one row per record.
//
// It assumes a table schema like:
//
//	CREATE TABLE page_content (
//		record_id  TEXT PRIMARY KEY,
//		query      TEXT NOT NULL,
//		content    TEXT NOT NULL,
//		fetched_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type ContentStore struct {
	pool  execCloser
	table string
}

// NewContentStore creates a Postgres-backed ContentStore using the provided config.
func NewContentStore(ctx context.Context, cfg ContentStoreConfig) (*ContentStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "page_content"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ContentStore{
		pool:  pool,
		table: table,
	}, nil
}

// NewContentStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewContentStoreWithPool(pool execCloser, table string) (*ContentStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "page_content"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ContentStore{pool: pool, table: table}, nil
}

// Store upserts the extracted text for a record, keyed by record id.
func (s *ContentStore) Store(ctx context.Context, recordID, query, text string) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("content store is not configured")
	}
	if recordID == "" {
		return fmt.Errorf("record id is required")
	}
	stmt := fmt.Sprintf(`
INSERT INTO %s (record_id, query, content, fetched_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (record_id) DO UPDATE SET
	query = EXCLUDED.query,
	content = EXCLUDED.content,
	fetched_at = NOW()`, s.table)

	if _, err := s.pool.Exec(ctx, stmt, recordID, query, text); err != nil {
		return fmt.Errorf("upsert page content: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *ContentStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
