package cachestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"barback/internal/core"
)

// fileSnapshot is the persisted form of one collection in the cache file.
// The freshness timestamp lives in the separate refreshed partition so the
// metadata layout matches the other backends.
type fileSnapshot struct {
	Data     json.RawMessage `json:"data"`
	Count    int             `json:"count"`
	Checksum uint64          `json:"checksum"`
}

// fileDocument is the on-disk cache layout: one partition per collection
// plus one freshness partition keyed by collection name.
type fileDocument struct {
	Version     int                              `json:"version"`
	Collections map[core.Collection]fileSnapshot `json:"collections"`
	Refreshed   map[core.Collection]time.Time    `json:"refreshed"`
}

const fileDocumentVersion = 1

// FileBackend implements Backend using a single local JSON file.
// Suitable for single-instance deployments.
type FileBackend struct {
	mu       sync.RWMutex
	filePath string
}

// NewFileBackend creates a file-based cache backend. The filePath specifies
// where the cache file will be stored.
func NewFileBackend(filePath string) *FileBackend {
	return &FileBackend{filePath: filePath}
}

// Read retrieves the snapshot for one collection from the cache file.
func (b *FileBackend) Read(ctx context.Context, collection core.Collection) (*Snapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	doc, err := b.load()
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil // No cache file yet, not an error
	}

	fs, ok := doc.Collections[collection]
	if !ok {
		return nil, nil
	}

	return &Snapshot{
		Collection:  collection,
		Data:        fs.Data,
		Count:       fs.Count,
		Checksum:    fs.Checksum,
		RefreshedAt: doc.Refreshed[collection],
	}, nil
}

// Write replaces the snapshot for snap.Collection. The whole document is
// rewritten atomically via temp file + rename, so data and freshness can
// never get out of step.
func (b *FileBackend) Write(ctx context.Context, snap *Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := b.load()
	if err != nil {
		return err
	}
	if doc == nil {
		doc = &fileDocument{
			Version:     fileDocumentVersion,
			Collections: make(map[core.Collection]fileSnapshot),
			Refreshed:   make(map[core.Collection]time.Time),
		}
	}

	doc.Collections[snap.Collection] = fileSnapshot{
		Data:     snap.Data,
		Count:    snap.Count,
		Checksum: snap.Checksum,
	}
	doc.Refreshed[snap.Collection] = snap.RefreshedAt

	return b.save(doc)
}

// Clear removes the cache file entirely.
func (b *FileBackend) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.Remove(b.filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove cache file: %w", err)
	}
	return nil
}

// Stats returns counts and refresh timestamps for all stored collections.
func (b *FileBackend) Stats(ctx context.Context) ([]Stat, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	doc, err := b.load()
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}

	stats := make([]Stat, 0, len(doc.Collections))
	for collection, fs := range doc.Collections {
		st := Stat{Collection: collection, Count: fs.Count}
		if ts, ok := doc.Refreshed[collection]; ok && !ts.IsZero() {
			t := ts
			st.RefreshedAt = &t
		}
		stats = append(stats, st)
	}
	return stats, nil
}

// Close is a no-op for the file backend.
func (b *FileBackend) Close() error {
	return nil
}

// load reads and parses the cache file. Returns nil, nil if the file does
// not exist. Callers must hold at least the read lock.
func (b *FileBackend) load() (*fileDocument, error) {
	if b.filePath == "" {
		return nil, nil
	}

	data, err := os.ReadFile(b.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse cache file: %w", err)
	}
	if doc.Collections == nil {
		doc.Collections = make(map[core.Collection]fileSnapshot)
	}
	if doc.Refreshed == nil {
		doc.Refreshed = make(map[core.Collection]time.Time)
	}
	return &doc, nil
}

// save writes the document atomically using temp file + rename. Callers must
// hold the write lock.
func (b *FileBackend) save(doc *fileDocument) error {
	if b.filePath == "" {
		return nil
	}

	// Ensure directory exists
	dir := filepath.Dir(b.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	tmpFile := b.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmpFile, b.filePath); err != nil {
		os.Remove(tmpFile) // Clean up temp file
		return fmt.Errorf("failed to rename cache file: %w", err)
	}

	return nil
}
