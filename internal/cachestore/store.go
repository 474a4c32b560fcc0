// Package cachestore provides the durable collection cache for barback.
// Snapshots are stored and replaced whole, one per collection, together with
// a freshness timestamp stamped at the completion of the fetch that produced
// them. Supports file, SQLite and Redis backends.
package cachestore

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"

	"barback/internal/core"
)

// Snapshot is one whole-collection cache record. Data holds the raw JSON
// array for the collection; Checksum is the xxhash of Data and is used to
// detect no-op refreshes in logs and stats.
type Snapshot struct {
	Collection  core.Collection `json:"collection"`
	Data        json.RawMessage `json:"data"`
	Count       int             `json:"count"`
	Checksum    uint64          `json:"checksum"`
	RefreshedAt time.Time       `json:"refreshed_at"`
}

// Stat describes the cache state of one collection for the admin API.
// RefreshedAt is nil when the collection has never been refreshed.
type Stat struct {
	Collection  core.Collection `json:"collection"`
	Count       int             `json:"count"`
	RefreshedAt *time.Time      `json:"refreshed_at,omitempty"`
	Fresh       bool            `json:"fresh"`
}

// Backend persists snapshots. Implementations must be safe for concurrent
// use and must replace snapshots atomically: a Write that is interrupted
// must never leave a collection half-updated or its freshness timestamp out
// of step with its data.
type Backend interface {
	// Read returns the stored snapshot for the collection.
	// Returns nil, nil if no snapshot exists yet.
	Read(ctx context.Context, collection core.Collection) (*Snapshot, error)

	// Write atomically replaces the snapshot for snap.Collection.
	Write(ctx context.Context, snap *Snapshot) error

	// Clear removes all snapshots and freshness metadata.
	Clear(ctx context.Context) error

	// Stats returns per-collection counts and refresh timestamps.
	Stats(ctx context.Context) ([]Stat, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Store wraps a Backend with the freshness policy and the degrade contract:
// reads never fail the caller. The cache is always optional relative to the
// remote source of truth, so a broken backend behaves like an empty cache.
type Store struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time
}

// New creates a Store over the given backend. A non-positive ttl falls back
// to DefaultTTL.
func New(backend Backend, ttl time.Duration) *Store {
	return NewWithClock(backend, ttl, time.Now)
}

// NewWithClock creates a Store with an injected clock, used by tests to
// drive freshness deterministically.
func NewWithClock(backend Backend, ttl time.Duration, now func() time.Time) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		backend: backend,
		ttl:     ttl,
		now:     now,
	}
}

// TTL returns the configured freshness window.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Lookup returns the stored snapshot for the collection and whether it is
// fresh. It never fails: a missing snapshot or a backend error yields an
// empty snapshot with fresh = false.
func (s *Store) Lookup(ctx context.Context, collection core.Collection) (Snapshot, bool) {
	snap, err := s.backend.Read(ctx, collection)
	if err != nil {
		slog.Warn("cache read failed, treating as empty",
			"collection", collection,
			"error", err,
		)
		storeErrors.WithLabelValues("read").Inc()
		return Snapshot{Collection: collection}, false
	}
	if snap == nil {
		return Snapshot{Collection: collection}, false
	}

	return *snap, IsFresh(snap.RefreshedAt, s.ttl, s.now())
}

// Replace atomically swaps the collection's snapshot for data and stamps the
// refresh timestamp at write time. data must be a JSON array; count is the
// number of records it holds. The returned time is the stamp written to the
// snapshot, so callers can report exactly what was persisted.
func (s *Store) Replace(ctx context.Context, collection core.Collection, data json.RawMessage, count int) (time.Time, error) {
	snap := &Snapshot{
		Collection:  collection,
		Data:        data,
		Count:       count,
		Checksum:    xxhash.Sum64(data),
		RefreshedAt: s.now(),
	}

	if err := s.backend.Write(ctx, snap); err != nil {
		storeErrors.WithLabelValues("write").Inc()
		return snap.RefreshedAt, core.NewPersistenceUnavailableError("failed to persist cache snapshot", err)
	}
	return snap.RefreshedAt, nil
}

// Clear removes all snapshots and freshness metadata for all collections.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Clear(ctx); err != nil {
		storeErrors.WithLabelValues("clear").Inc()
		return core.NewPersistenceUnavailableError("failed to clear cache", err)
	}
	return nil
}

// Stats returns per-collection item counts, refresh timestamps and freshness
// flags. Degrades to "never refreshed" entries if the backend is unavailable.
func (s *Store) Stats(ctx context.Context) []Stat {
	stats, err := s.backend.Stats(ctx)
	if err != nil {
		slog.Warn("cache stats failed", "error", err)
		storeErrors.WithLabelValues("stats").Inc()
		stats = nil
	}

	byCollection := make(map[core.Collection]Stat, len(stats))
	for _, st := range stats {
		byCollection[st.Collection] = st
	}

	// Every collection appears exactly once, in the fixed order, whether or
	// not the backend has seen it.
	now := s.now()
	out := make([]Stat, 0, len(core.Collections()))
	for _, c := range core.Collections() {
		st, ok := byCollection[c]
		if !ok {
			st = Stat{Collection: c}
		}
		if st.RefreshedAt != nil {
			st.Fresh = IsFresh(*st.RefreshedAt, s.ttl, now)
		}
		out = append(out, st)
	}
	return out
}

// Close releases the underlying backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
