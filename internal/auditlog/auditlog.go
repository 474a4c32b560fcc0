// Package auditlog records administrative actions - catalog writes, forced
// refreshes, cache clears - in a configurable storage backend. Reads of the
// public API are deliberately not audited; only actions that mutate the
// catalog or the cache leave a trail.
package auditlog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Audited actions.
const (
	ActionSave       = "save"
	ActionRefresh    = "refresh"
	ActionClearCache = "clear_cache"
)

// Entry is a single audit record.
type Entry struct {
	// ID is a UUID assigned when the entry is created.
	ID string `json:"id" bson:"_id"`

	// Timestamp is when the audited request started.
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`

	// DurationNS is the request duration in nanoseconds.
	DurationNS int64 `json:"duration_ns" bson:"duration_ns"`

	// Actor identifies who performed the action ("admin" for master key
	// requests).
	Actor  string `json:"actor" bson:"actor"`
	Action string `json:"action" bson:"action"`

	// Collection names the affected catalog collection; empty for actions
	// that span all collections.
	Collection string `json:"collection,omitempty" bson:"collection,omitempty"`

	// ItemCount is the number of records written, for save actions.
	ItemCount  int `json:"item_count" bson:"item_count"`
	StatusCode int `json:"status_code" bson:"status_code"`

	ClientIP  string `json:"client_ip,omitempty" bson:"client_ip,omitempty"`
	RequestID string `json:"request_id,omitempty" bson:"request_id,omitempty"`

	// Error holds the failure message when the action did not succeed.
	Error string `json:"error,omitempty" bson:"error,omitempty"`
}

// NewEntry creates an entry for the given action with a fresh ID and the
// current time.
func NewEntry(action string) *Entry {
	return &Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Action:    action,
	}
}

// LogStore is a storage backend for audit entries. Implementations must be
// safe for concurrent use.
type LogStore interface {
	// WriteBatch persists a batch of entries. Called by the Logger when
	// flushing its buffer.
	WriteBatch(ctx context.Context, entries []*Entry) error

	// List returns the most recent entries, newest first, up to limit.
	List(ctx context.Context, limit int) ([]*Entry, error)

	// Flush forces pending writes to complete. Called during shutdown.
	Flush(ctx context.Context) error

	// Close releases store resources. The underlying database connection is
	// owned by the storage layer and is not closed here.
	Close() error
}

// Config holds audit logging configuration.
type Config struct {
	// Enabled controls whether audit logging is active.
	Enabled bool

	// BufferSize is the number of entries buffered before writes block the
	// drop path (default: 1000).
	BufferSize int

	// FlushInterval is how often buffered entries are flushed (default: 5s).
	FlushInterval time.Duration

	// RetentionDays is how long entries are kept; 0 keeps them forever.
	RetentionDays int
}

// DefaultConfig returns the audit logging defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:       false,
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
		RetentionDays: 30,
	}
}
