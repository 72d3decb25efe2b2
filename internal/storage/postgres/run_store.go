package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/queryharvest/harvester/internal/store"
)

type runPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// RunStore implements the store.RunRepository interface using Postgres.
//
// It assumes table schemas like:
//
//	CREATE TABLE harvest_runs (
//		run_id        TEXT PRIMARY KEY,
//		queries       INT NOT NULL DEFAULT 0,
//		started_at    TIMESTAMPTZ NOT NULL,
//		finished_at   TIMESTAMPTZ,
//		status        TEXT NOT NULL,
//		records       BIGINT NOT NULL DEFAULT 0,
//		error_message TEXT
//	);
//
//	CREATE TABLE query_stats (
//		run_id      TEXT NOT NULL,
//		query       TEXT NOT NULL,
//		last_update TIMESTAMPTZ NOT NULL,
//		pages       BIGINT NOT NULL DEFAULT 0,
//		listed      BIGINT NOT NULL DEFAULT 0,
//		stored      BIGINT NOT NULL DEFAULT 0,
//		empty       BIGINT NOT NULL DEFAULT 0,
//		blocked     BIGINT NOT NULL DEFAULT 0,
//		failed      BIGINT NOT NULL DEFAULT 0,
//		PRIMARY KEY (run_id, query)
//	);
type RunStore struct {
	pool runPool
}

// NewRunStore creates a new Postgres-backed RunStore.
func NewRunStore(ctx context.Context, dsn string) (*RunStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &RunStore{pool: pool}, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRunStoreWithPool(pool runPool) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *RunStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// UpsertRunStart inserts or updates a run's start row.
func (s *RunStore) UpsertRunStart(ctx context.Context, runID string, queries int, startedAt time.Time) error {
	query := `
		INSERT INTO harvest_runs (run_id, queries, started_at, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id) DO UPDATE
		SET status = EXCLUDED.status
		WHERE harvest_runs.status <> EXCLUDED.status;
	`
	_, err := s.pool.Exec(ctx, query, runID, queries, startedAt, store.RunRunning)
	if err != nil {
		return fmt.Errorf("failed to upsert run start: %w", err)
	}
	return nil
}

// CompleteRun marks a run as finished with a status, final record count, and
// optional error message.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	runID string,
	finishedAt time.Time,
	status store.RunStatus,
	records int64,
	errMsg *string,
) error {
	query := `
		UPDATE harvest_runs
		SET finished_at = $1, status = $2, records = $3, error_message = $4
		WHERE run_id = $5;
	`
	_, err := s.pool.Exec(ctx, query, finishedAt, status, records, errMsg, runID)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

// UpsertQueryStats applies deltas to the per-query statistics of a run.
func (s *RunStore) UpsertQueryStats(
	ctx context.Context,
	runID string,
	query string,
	deltaPages int64,
	deltaCount int64,
	class string,
	at time.Time,
) error {
	var column string
	switch class {
	case store.ClassListed:
		column = "listed"
	case store.ClassStored:
		column = "stored"
	case store.ClassEmpty:
		column = "empty"
	case store.ClassBlocked:
		column = "blocked"
	case store.ClassFailed:
		column = "failed"
	default:
		return fmt.Errorf("unknown stats class: %s", class)
	}

	stmt := fmt.Sprintf(`UPDATE query_stats SET pages = pages + $1,
		%s = %s + $2,
		last_update = $3
		WHERE run_id = $4 AND query = $5;`, column, column)

	res, err := s.pool.Exec(ctx, stmt, deltaPages, deltaCount, at, runID, query)
	if err != nil {
		return fmt.Errorf("failed to update query stats: %w", err)
	}
	if res.RowsAffected() == 0 {
		var listed, stored, empty, blocked, failed int64
		switch class {
		case store.ClassListed:
			listed = deltaCount
		case store.ClassStored:
			stored = deltaCount
		case store.ClassEmpty:
			empty = deltaCount
		case store.ClassBlocked:
			blocked = deltaCount
		case store.ClassFailed:
			failed = deltaCount
		}

		stmt = `
			INSERT INTO query_stats (run_id, query, last_update, pages, listed, stored, empty, blocked, failed)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (run_id, query) DO NOTHING;
		`
		_, err = s.pool.Exec(
			ctx,
			stmt,
			runID,
			query,
			at,
			deltaPages,
			listed,
			stored,
			empty,
			blocked,
			failed,
		)
		if err != nil {
			return fmt.Errorf("failed to insert query stats: %w", err)
		}
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, runID string) (store.Run, error) {
	query := `
		SELECT run_id, queries, started_at, finished_at, status, records, error_message
		FROM harvest_runs
		WHERE run_id = $1;
	`
	var run store.Run
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.Queries,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.Records,
		&run.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves a list of runs, with optional status filtering.
func (s *RunStore) ListRuns(
	ctx context.Context,
	status *store.RunStatus,
	limit,
	offset int,
) ([]store.Run, error) {
	query := `
		SELECT run_id, queries, started_at, finished_at, status, records, error_message
		FROM harvest_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		var run store.Run
		err := rows.Scan(
			&run.ID,
			&run.Queries,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Status,
			&run.Records,
			&run.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read run rows: %w", err)
	}
	return runs, nil
}

// ListRunQueries retrieves aggregated query statistics for a given run.
func (s *RunStore) ListRunQueries(
	ctx context.Context,
	runID string,
	limit,
	offset int,
) ([]store.QueryStats, error) {
	query := `
		SELECT run_id, query, last_update, pages, listed, stored, empty, blocked, failed
		FROM query_stats
		WHERE run_id = $1
		ORDER BY last_update DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list run queries: %w", err)
	}
	defer rows.Close()

	var stats []store.QueryStats
	for rows.Next() {
		var stat store.QueryStats
		err := rows.Scan(
			&stat.RunID,
			&stat.Query,
			&stat.LastUpdate,
			&stat.Pages,
			&stat.Listed,
			&stat.Stored,
			&stat.Empty,
			&stat.Blocked,
			&stat.Failed,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan query stats row: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read query stats rows: %w", err)
	}
	return stats, nil
}
