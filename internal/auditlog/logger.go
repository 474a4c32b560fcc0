package auditlog

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Recorder is the interface the server writes audit entries through. The
// noop implementation is used when auditing is disabled.
type Recorder interface {
	// Record queues an entry for asynchronous writing. Never blocks.
	Record(entry *Entry)

	// List returns the most recent entries, newest first, up to limit.
	List(ctx context.Context, limit int) ([]*Entry, error)

	// Close flushes pending entries and releases resources.
	Close() error
}

// Logger is an async buffered Recorder. Entries accumulate in a channel and
// are flushed to the store in batches, either when the batch fills or on a
// timer. A full buffer drops entries rather than blocking the request path.
type Logger struct {
	store         LogStore
	buffer        chan *Entry
	done          chan struct{}
	wg            sync.WaitGroup
	flushInterval time.Duration
}

const flushBatchSize = 100

// NewLogger creates a Logger and starts its background flush goroutine.
func NewLogger(store LogStore, cfg Config) *Logger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	l := &Logger{
		store:         store,
		buffer:        make(chan *Entry, cfg.BufferSize),
		done:          make(chan struct{}),
		flushInterval: cfg.FlushInterval,
	}

	l.wg.Add(1)
	go l.flushLoop()

	return l
}

// Record queues an entry for async writing. If the buffer is full the entry
// is dropped with a warning; audit writes never slow down admin requests.
func (l *Logger) Record(entry *Entry) {
	if entry == nil {
		return
	}

	select {
	case l.buffer <- entry:
	default:
		slog.Warn("audit log buffer full, dropping entry",
			"action", entry.Action,
			"collection", entry.Collection,
		)
	}
}

// List returns the most recent entries from the underlying store.
func (l *Logger) List(ctx context.Context, limit int) ([]*Entry, error) {
	return l.store.List(ctx, limit)
}

// Close stops the flush loop, drains the buffer and closes the store.
func (l *Logger) Close() error {
	close(l.done)
	l.wg.Wait()
	return l.store.Close()
}

func (l *Logger) flushLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	batch := make([]*Entry, 0, flushBatchSize)

	for {
		select {
		case entry := <-l.buffer:
			batch = append(batch, entry)
			if len(batch) >= flushBatchSize {
				l.flushBatch(batch)
				batch = make([]*Entry, 0, flushBatchSize)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				l.flushBatch(batch)
				batch = make([]*Entry, 0, flushBatchSize)
			}

		case <-l.done:
			close(l.buffer)
			for entry := range l.buffer {
				batch = append(batch, entry)
			}
			if len(batch) > 0 {
				l.flushBatch(batch)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := l.store.Flush(ctx); err != nil {
				slog.Error("failed to flush audit log store", "error", err)
			}
			cancel()
			return
		}
	}
}

func (l *Logger) flushBatch(batch []*Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := l.store.WriteBatch(ctx, batch); err != nil {
		slog.Error("failed to write audit log batch",
			"error", err,
			"count", len(batch),
		)
	}
}

// NoopRecorder discards everything. Used when auditing is disabled.
type NoopRecorder struct{}

func (NoopRecorder) Record(_ *Entry) {}

func (NoopRecorder) List(_ context.Context, _ int) ([]*Entry, error) {
	return []*Entry{}, nil
}

func (NoopRecorder) Close() error {
	return nil
}
