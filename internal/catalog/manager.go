// Package catalog provides the cocktail catalog manager: the read/write API
// that UI-facing handlers call. Reads are cache-first with
// stale-while-revalidate semantics; remote and persistence failures degrade
// to the best data available instead of surfacing as errors.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"barback/internal/cachestore"
	"barback/internal/core"
)

// DefaultRefreshDelay is how long a stale read waits before firing its
// background refresh. The delay batches refresh triggers from bursts of
// reads; zero is a legitimate value.
const DefaultRefreshDelay = 100 * time.Millisecond

// fetchFunc fetches one collection from the remote gateway and returns its
// JSON snapshot plus the record count.
type fetchFunc func(ctx context.Context) (json.RawMessage, int, error)

// refreshCall is the joinable handle for one in-flight refresh. Concurrent
// refresh requests for the same collection share a single call rather than
// issuing a second remote fetch.
type refreshCall struct {
	done        chan struct{}
	data        json.RawMessage
	count       int
	refreshedAt time.Time
	err         error
}

// Options configures a Manager.
type Options struct {
	// RefreshDelay is the delay before a stale read's background refresh
	// fires. Negative means DefaultRefreshDelay; zero fires immediately.
	RefreshDelay time.Duration
}

// Manager orchestrates reads and writes across the durable cache store and
// the remote gateway. Construct exactly one per process and inject it into
// the HTTP layer; it holds only transient in-flight state, never data.
type Manager struct {
	store        *cachestore.Store
	gateway      core.RemoteGateway
	refreshDelay time.Duration
	fetchers     map[core.Collection]fetchFunc

	mu        sync.Mutex
	inflight  map[core.Collection]*refreshCall
	scheduled map[core.Collection]bool
}

// NewManager creates a catalog manager over the given store and gateway.
func NewManager(store *cachestore.Store, gw core.RemoteGateway, opts Options) *Manager {
	delay := opts.RefreshDelay
	if delay < 0 {
		delay = DefaultRefreshDelay
	}

	m := &Manager{
		store:        store,
		gateway:      gw,
		refreshDelay: delay,
		inflight:     make(map[core.Collection]*refreshCall),
		scheduled:    make(map[core.Collection]bool),
	}

	m.fetchers = map[core.Collection]fetchFunc{
		core.CollectionCocktails:   marshalFetch(gw.FetchCocktails),
		core.CollectionIngredients: marshalFetch(gw.FetchIngredients),
		core.CollectionGlassTypes:  marshalFetch(gw.FetchGlassTypes),
		core.CollectionCategories:  marshalFetch(gw.FetchCategories),
	}

	return m
}

// marshalFetch adapts a typed gateway fetch into the JSON form the store
// persists.
func marshalFetch[T any](fetch func(context.Context) ([]T, error)) fetchFunc {
	return func(ctx context.Context) (json.RawMessage, int, error) {
		records, err := fetch(ctx)
		if err != nil {
			return nil, 0, err
		}
		if records == nil {
			records = []T{}
		}
		data, err := json.Marshal(records)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal fetched collection: %w", err)
		}
		return data, len(records), nil
	}
}

// GetCocktails returns the cocktail collection, cache-first.
func (m *Manager) GetCocktails(ctx context.Context) Result[core.Cocktail] {
	return get[core.Cocktail](ctx, m, core.CollectionCocktails)
}

// GetIngredients returns the ingredient collection, cache-first.
func (m *Manager) GetIngredients(ctx context.Context) Result[core.Ingredient] {
	return get[core.Ingredient](ctx, m, core.CollectionIngredients)
}

// GetGlassTypes returns the glass type collection, cache-first.
func (m *Manager) GetGlassTypes(ctx context.Context) Result[core.GlassType] {
	return get[core.GlassType](ctx, m, core.CollectionGlassTypes)
}

// GetCategories returns the category collection, cache-first.
func (m *Manager) GetCategories(ctx context.Context) Result[core.Category] {
	return get[core.Category](ctx, m, core.CollectionCategories)
}

// get implements the read contract:
//  1. a populated fresh snapshot is returned with zero remote calls;
//  2. a populated stale snapshot is returned immediately and a background
//     refresh is scheduled;
//  3. a never-populated collection is fetched synchronously, cached and
//     returned; if the fetch fails the caller gets an empty degraded result,
//     never an error.
//
// "Populated" means a successful fetch has completed at least once, so a
// legitimately empty collection does not force a remote call on every read.
func get[T any](ctx context.Context, m *Manager, collection core.Collection) Result[T] {
	snap, fresh := m.store.Lookup(ctx, collection)

	if !snap.RefreshedAt.IsZero() {
		records, ok := decodeSnapshot[T](collection, snap.Data)
		if ok {
			if fresh {
				reads.WithLabelValues(string(collection), string(StateFresh)).Inc()
				return Result[T]{Records: records, State: StateFresh, RefreshedAt: snap.RefreshedAt}
			}
			m.scheduleRefresh(collection)
			reads.WithLabelValues(string(collection), string(StateStale)).Inc()
			return Result[T]{Records: records, State: StateStale, RefreshedAt: snap.RefreshedAt}
		}
		// Corrupt snapshot: fall through to a synchronous re-fetch.
	}

	call := m.startOrJoinRefresh(collection)
	<-call.done

	if call.err != nil {
		// Degrade: the last known snapshot is empty (or corrupt), so the
		// caller gets an empty result rather than an error.
		reads.WithLabelValues(string(collection), string(StateDegraded)).Inc()
		return Result[T]{Records: []T{}, State: StateDegraded}
	}

	records, ok := decodeSnapshot[T](collection, call.data)
	if !ok {
		reads.WithLabelValues(string(collection), string(StateDegraded)).Inc()
		return Result[T]{Records: []T{}, State: StateDegraded}
	}

	reads.WithLabelValues(string(collection), string(StateFresh)).Inc()
	return Result[T]{Records: records, State: StateFresh, RefreshedAt: call.refreshedAt}
}

// decodeSnapshot unmarshals a stored snapshot. A corrupt snapshot is logged
// and reported as not-ok; it never fails the read path.
func decodeSnapshot[T any](collection core.Collection, data json.RawMessage) ([]T, bool) {
	if len(data) == 0 {
		return []T{}, true
	}
	var records []T
	if err := json.Unmarshal(data, &records); err != nil {
		slog.Warn("corrupt cache snapshot, ignoring",
			"collection", collection,
			"error", err,
		)
		return nil, false
	}
	if records == nil {
		records = []T{}
	}
	return records, true
}

// Refresh fetches the collection from the remote gateway and replaces its
// cached snapshot. At most one refresh per collection is in flight at any
// time; concurrent callers join the pending refresh and receive its outcome.
func (m *Manager) Refresh(ctx context.Context, collection core.Collection) error {
	if _, ok := m.fetchers[collection]; !ok {
		return core.NewInvalidRequestError("unknown collection: "+string(collection), nil)
	}

	call := m.startOrJoinRefresh(collection)
	select {
	case <-call.done:
		return call.err
	case <-ctx.Done():
		// The refresh itself keeps running to completion; only this caller
		// stops waiting for it.
		return ctx.Err()
	}
}

// startOrJoinRefresh returns the in-flight refresh call for the collection,
// starting one if none exists.
func (m *Manager) startOrJoinRefresh(collection core.Collection) *refreshCall {
	m.mu.Lock()
	if call, ok := m.inflight[collection]; ok {
		m.mu.Unlock()
		refreshJoins.WithLabelValues(string(collection)).Inc()
		return call
	}

	call := &refreshCall{done: make(chan struct{})}
	m.inflight[collection] = call
	m.mu.Unlock()

	go m.runRefresh(collection, call)
	return call
}

// runRefresh performs one refresh: fetch, then replace the stored snapshot.
// The in-flight marker is released on success and failure alike so the next
// organic read can retry. Runs on a background context: a triggered refresh
// always runs to completion or transport failure, it is never cancelled.
func (m *Manager) runRefresh(collection core.Collection, call *refreshCall) {
	defer func() {
		close(call.done)
		m.mu.Lock()
		delete(m.inflight, collection)
		m.mu.Unlock()
	}()

	ctx := context.Background()
	data, count, err := m.fetchers[collection](ctx)
	if err != nil {
		call.err = err
		refreshes.WithLabelValues(string(collection), "error").Inc()
		slog.Warn("collection refresh failed",
			"collection", collection,
			"error", err,
		)
		return
	}

	call.data = data
	call.count = count
	refreshes.WithLabelValues(string(collection), "success").Inc()

	stamp, err := m.store.Replace(ctx, collection, data, count)
	call.refreshedAt = stamp
	if err != nil {
		// The fetch succeeded, so callers joined to this refresh still get
		// valid data; only durability is lost until the next refresh.
		slog.Warn("failed to persist refreshed snapshot",
			"collection", collection,
			"error", err,
		)
	}
}

// scheduleRefresh queues a background refresh for a stale collection. At
// most one trigger is pending per collection, so a burst of stale reads
// produces a single refresh.
func (m *Manager) scheduleRefresh(collection core.Collection) {
	m.mu.Lock()
	if m.scheduled[collection] || m.inflight[collection] != nil {
		m.mu.Unlock()
		return
	}
	m.scheduled[collection] = true
	m.mu.Unlock()

	time.AfterFunc(m.refreshDelay, func() {
		m.mu.Lock()
		delete(m.scheduled, collection)
		m.mu.Unlock()

		// The snapshot may have been refreshed during the delay window
		// (forced refresh, write-through save); skip the remote call then.
		if _, fresh := m.store.Lookup(context.Background(), collection); fresh {
			return
		}
		m.startOrJoinRefresh(collection)
	})
}

// ForceRefreshAll refreshes all collections concurrently and waits for all
// of them. Collections fail independently: one failure does not block or
// roll back another's success. The returned error joins the per-collection
// failures, if any.
func (m *Manager) ForceRefreshAll(ctx context.Context) error {
	collections := core.Collections()
	errs := make([]error, len(collections))

	var wg sync.WaitGroup
	for i, collection := range collections {
		wg.Add(1)
		go func(i int, collection core.Collection) {
			defer wg.Done()
			if err := m.Refresh(ctx, collection); err != nil {
				errs[i] = fmt.Errorf("%s: %w", collection, err)
			}
		}(i, collection)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// ClearCache removes all cached snapshots and freshness metadata.
func (m *Manager) ClearCache(ctx context.Context) error {
	return m.store.Clear(ctx)
}

// Stats returns per-collection cache statistics.
func (m *Manager) Stats(ctx context.Context) []cachestore.Stat {
	return m.store.Stats(ctx)
}

// SaveCocktails writes the cocktail collection through to the backend and
// the cache.
func (m *Manager) SaveCocktails(ctx context.Context, records []core.Cocktail) error {
	return save(ctx, m, core.CollectionCocktails, m.gateway.SaveCocktails, records)
}

// SaveIngredients writes the ingredient collection through to the backend
// and the cache.
func (m *Manager) SaveIngredients(ctx context.Context, records []core.Ingredient) error {
	return save(ctx, m, core.CollectionIngredients, m.gateway.SaveIngredients, records)
}

// SaveGlassTypes writes the glass type collection through to the backend and
// the cache.
func (m *Manager) SaveGlassTypes(ctx context.Context, records []core.GlassType) error {
	return save(ctx, m, core.CollectionGlassTypes, m.gateway.SaveGlassTypes, records)
}

// SaveCategories writes the category collection through to the backend and
// the cache.
func (m *Manager) SaveCategories(ctx context.Context, records []core.Category) error {
	return save(ctx, m, core.CollectionCategories, m.gateway.SaveCategories, records)
}

// save implements write-through: the remote save must succeed first; the
// local snapshot is then replaced so subsequent reads see the new data
// without refetching. Unlike reads, save errors propagate - admin flows
// need to know a write was rejected.
func save[T any](ctx context.Context, m *Manager, collection core.Collection, saveFn func(context.Context, []T) error, records []T) error {
	if records == nil {
		records = []T{}
	}

	if err := saveFn(ctx, records); err != nil {
		return err
	}

	data, err := json.Marshal(records)
	if err != nil {
		return core.NewInvalidRequestError("failed to marshal records", err)
	}

	if _, err := m.store.Replace(ctx, collection, data, len(records)); err != nil {
		// The backend accepted the write; a cache miss here only means the
		// next read refetches.
		slog.Warn("write-through cache update failed",
			"collection", collection,
			"error", err,
		)
	}

	slog.Info("collection saved",
		"collection", collection,
		"records", len(records),
	)
	return nil
}
