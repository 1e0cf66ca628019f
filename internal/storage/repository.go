package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neexbeast/weather-aggregator/internal/history"
	"github.com/neexbeast/weather-aggregator/internal/weather"
)

// DB abstracts the subset of pgxpool.Pool used by Repository.
// This allows injection of a mock in tests.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
}

var _ history.Store = (*Repository)(nil)

// Repository stores the lookup history in the search_history table and keeps
// only the most recent limit rows.
type Repository struct {
	db    DB
	limit int
	now   func() time.Time
}

// NewRepository constructs a Repository backed by the given pool.
func NewRepository(pool *pgxpool.Pool, limit int) *Repository {
	return NewRepositoryWithDB(pool, limit)
}

// NewRepositoryWithDB constructs a Repository with a custom DB (for tests).
func NewRepositoryWithDB(db DB, limit int) *Repository {
	if limit <= 0 {
		limit = history.DefaultLimit
	}
	return &Repository{db: db, limit: limit, now: time.Now}
}

// Append inserts a record and trims older rows in the same transaction.
func (r *Repository) Append(ctx context.Context, location string, snapshot weather.Snapshot) error {
	weatherJSON, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshaling snapshot for %s: %w", location, err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	const insert = `
		INSERT INTO search_history (location, weather, searched_at)
		VALUES ($1, $2, $3)
	`
	if _, err := tx.Exec(ctx, insert, location, weatherJSON, r.now()); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("inserting history for %s: %w", location, err)
	}

	const trim = `
		DELETE FROM search_history
		WHERE id NOT IN (
			SELECT id FROM search_history ORDER BY id DESC LIMIT $1
		)
	`
	if _, err := tx.Exec(ctx, trim, r.limit); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("trimming history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing history: %w", err)
	}
	return nil
}

// All returns the retained records, oldest first.
func (r *Repository) All(ctx context.Context) ([]weather.HistoryRecord, error) {
	const q = `
		SELECT location, weather, searched_at
		FROM search_history
		ORDER BY id ASC
	`

	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	records := []weather.HistoryRecord{}
	for rows.Next() {
		var rec weather.HistoryRecord
		var weatherJSON []byte
		var searchedAt time.Time

		if err := rows.Scan(&rec.Location, &weatherJSON, &searchedAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		if err := json.Unmarshal(weatherJSON, &rec.Weather); err != nil {
			return nil, fmt.Errorf("unmarshaling history snapshot: %w", err)
		}
		rec.Timestamp = searchedAt.Format(time.RFC3339Nano)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history rows: %w", err)
	}

	return records, nil
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
