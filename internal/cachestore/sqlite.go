package cachestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"barback/internal/core"
)

// SQLiteBackend implements Backend over a SQLite database. The data
// partition (cache_collections) and the freshness partition
// (cache_freshness) are updated inside one transaction so a snapshot can
// never be observed half-written.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend creates a SQLite cache backend over an existing
// connection (typically the shared storage connection) and creates the cache
// tables if they do not exist.
func NewSQLiteBackend(db *sql.DB) (*SQLiteBackend, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cache_collections (
			collection TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			item_count INTEGER NOT NULL DEFAULT 0,
			checksum INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache_collections table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS cache_freshness (
			collection TEXT PRIMARY KEY,
			refreshed_at_ms INTEGER NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache_freshness table: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

// Read retrieves the snapshot for one collection.
func (b *SQLiteBackend) Read(ctx context.Context, collection core.Collection) (*Snapshot, error) {
	row := b.db.QueryRowContext(ctx, `
		SELECT c.data, c.item_count, c.checksum, COALESCE(f.refreshed_at_ms, 0)
		FROM cache_collections c
		LEFT JOIN cache_freshness f ON f.collection = c.collection
		WHERE c.collection = ?
	`, string(collection))

	var (
		data        []byte
		count       int
		checksum    int64
		refreshedMS int64
	)
	if err := row.Scan(&data, &count, &checksum, &refreshedMS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache snapshot: %w", err)
	}

	snap := &Snapshot{
		Collection: collection,
		Data:       data,
		Count:      count,
		Checksum:   uint64(checksum),
	}
	if refreshedMS > 0 {
		snap.RefreshedAt = time.UnixMilli(refreshedMS).UTC()
	}
	return snap, nil
}

// Write replaces the snapshot and its freshness timestamp in one transaction.
func (b *SQLiteBackend) Write(ctx context.Context, snap *Snapshot) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cache write: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cache_collections (collection, data, item_count, checksum)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(collection) DO UPDATE SET
			data = excluded.data,
			item_count = excluded.item_count,
			checksum = excluded.checksum
	`, string(snap.Collection), []byte(snap.Data), snap.Count, int64(snap.Checksum))
	if err != nil {
		return fmt.Errorf("failed to write cache snapshot: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cache_freshness (collection, refreshed_at_ms)
		VALUES (?, ?)
		ON CONFLICT(collection) DO UPDATE SET
			refreshed_at_ms = excluded.refreshed_at_ms
	`, string(snap.Collection), snap.RefreshedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to write cache freshness: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache write: %w", err)
	}
	return nil
}

// Clear removes all snapshots and freshness metadata.
func (b *SQLiteBackend) Clear(ctx context.Context) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cache clear: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_collections`); err != nil {
		return fmt.Errorf("failed to clear cache collections: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_freshness`); err != nil {
		return fmt.Errorf("failed to clear cache freshness: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache clear: %w", err)
	}
	return nil
}

// Stats returns counts and refresh timestamps for all stored collections.
func (b *SQLiteBackend) Stats(ctx context.Context) ([]Stat, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT c.collection, c.item_count, COALESCE(f.refreshed_at_ms, 0)
		FROM cache_collections c
		LEFT JOIN cache_freshness f ON f.collection = c.collection
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache stats: %w", err)
	}
	defer rows.Close()

	var stats []Stat
	for rows.Next() {
		var (
			collection  string
			count       int
			refreshedMS int64
		)
		if err := rows.Scan(&collection, &count, &refreshedMS); err != nil {
			return nil, fmt.Errorf("failed to scan cache stats: %w", err)
		}
		st := Stat{Collection: core.Collection(collection), Count: count}
		if refreshedMS > 0 {
			t := time.UnixMilli(refreshedMS).UTC()
			st.RefreshedAt = &t
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// Close is a no-op: the backend does not own the shared connection.
func (b *SQLiteBackend) Close() error {
	return nil
}
