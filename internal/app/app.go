// Package app wires the application together: configuration, storage, the
// durable cache, the remote gateway, the catalog manager, audit logging and
// the HTTP server, with centralized lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"barback/config"
	"barback/internal/auditlog"
	"barback/internal/cachestore"
	"barback/internal/catalog"
	"barback/internal/gateway"
	"barback/internal/server"
	"barback/internal/storage"
)

// App holds all application components and manages their lifecycle.
type App struct {
	config  *config.Config
	storage storage.Storage
	store   *cachestore.Store
	catalog *catalog.Manager
	audit   auditlog.Recorder
	server  *server.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// New creates an App with all dependencies initialized. The caller must
// call Shutdown to release resources.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	app := &App{config: cfg}

	// A shared database connection is needed for audit logging and for the
	// SQLite cache backend.
	needStorage := cfg.Audit.Enabled || cfg.Cache.Backend == config.CacheBackendSQLite
	if needStorage {
		store, err := storage.New(ctx, storage.Config{
			Type: cfg.Storage.Type,
			SQLite: storage.SQLiteConfig{
				Path: cfg.Storage.SQLite.Path,
			},
			PostgreSQL: storage.PostgreSQLConfig{
				URL:      cfg.Storage.PostgreSQL.URL,
				MaxConns: cfg.Storage.PostgreSQL.MaxConns,
			},
			MongoDB: storage.MongoDBConfig{
				URL:      cfg.Storage.MongoDB.URL,
				Database: cfg.Storage.MongoDB.Database,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		app.storage = store
	}

	backend, err := buildCacheBackend(cfg, app.storage)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to initialize cache backend: %w", err), app.closeStorage())
	}
	app.store = cachestore.New(backend, cfg.Cache.TTL.Std())

	gwCfg := gateway.DefaultClientConfig(cfg.Remote.BaseURL, cfg.Remote.APIKey)
	if cfg.Remote.MaxRetries > 0 {
		gwCfg.MaxRetries = cfg.Remote.MaxRetries
	}
	if cfg.Remote.InitialBackoff > 0 {
		gwCfg.InitialBackoff = cfg.Remote.InitialBackoff.Std()
	}
	if cfg.Remote.MaxBackoff > 0 {
		gwCfg.MaxBackoff = cfg.Remote.MaxBackoff.Std()
	}
	if cfg.Remote.BackoffFactor > 0 {
		gwCfg.BackoffFactor = cfg.Remote.BackoffFactor
	}
	gw := gateway.New(gwCfg)

	app.catalog = catalog.NewManager(app.store, gw, catalog.Options{
		RefreshDelay: cfg.Cache.RefreshDelay.Std(),
	})

	audit, err := auditlog.New(app.storage, auditlog.Config{
		Enabled:       cfg.Audit.Enabled,
		BufferSize:    cfg.Audit.BufferSize,
		FlushInterval: cfg.Audit.FlushInterval.Std(),
		RetentionDays: cfg.Audit.RetentionDays,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to initialize audit logging: %w", err),
			app.store.Close(), app.closeStorage())
	}
	app.audit = audit

	app.logStartupInfo()

	app.server = server.New(app.catalog, app.audit, &server.Config{
		MasterKey:       cfg.Server.MasterKey,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsEndpoint: cfg.Metrics.Endpoint,
		BodySizeLimit:   cfg.Server.BodySizeLimit,
	})

	return app, nil
}

// buildCacheBackend selects the cache backend from configuration. The
// SQLite backend shares the storage connection and therefore requires the
// storage type to be sqlite as well.
func buildCacheBackend(cfg *config.Config, store storage.Storage) (cachestore.Backend, error) {
	switch cfg.Cache.Backend {
	case config.CacheBackendFile:
		return cachestore.NewFileBackend(cfg.Cache.FilePath), nil

	case config.CacheBackendSQLite:
		if store == nil || store.Type() != storage.TypeSQLite {
			return nil, fmt.Errorf("sqlite cache backend requires STORAGE_TYPE=sqlite")
		}
		return cachestore.NewSQLiteBackend(store.SQLiteDB())

	case config.CacheBackendRedis:
		return cachestore.NewRedisBackend(cachestore.RedisConfig{
			URL: cfg.Cache.RedisURL,
		})

	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Cache.Backend)
	}
}

// Catalog exposes the catalog manager, mainly for tests.
func (a *App) Catalog() *catalog.Manager {
	return a.catalog
}

// Start starts the HTTP server on the given address. Blocks until the
// server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	slog.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// ServeHTTP implements http.Handler so the whole app can be driven by
// httptest in end-to-end tests.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.server.ServeHTTP(w, r)
}

// Shutdown tears down components in dependency order: HTTP server first,
// then the audit logger (flushing buffered entries), the cache store, and
// finally the shared storage connection. Idempotent; repeated calls are
// no-ops. Every step is attempted and failures are joined.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	slog.Info("shutting down application...")

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			slog.Error("audit logger close error", "error", err)
			errs = append(errs, fmt.Errorf("audit close: %w", err))
		}
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Error("cache store close error", "error", err)
			errs = append(errs, fmt.Errorf("cache store close: %w", err))
		}
	}

	if err := a.closeStorage(); err != nil {
		slog.Error("storage close error", "error", err)
		errs = append(errs, fmt.Errorf("storage close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	slog.Info("application shutdown complete")
	return nil
}

func (a *App) closeStorage() error {
	if a.storage == nil {
		return nil
	}
	return a.storage.Close()
}

// logStartupInfo logs the effective configuration on startup.
func (a *App) logStartupInfo() {
	cfg := a.config

	if cfg.Server.MasterKey == "" {
		slog.Warn("SECURITY WARNING: MASTER_KEY not set - admin API running in UNSAFE MODE",
			"security_risk", "unauthenticated admin access allowed",
			"recommendation", "set the MASTER_KEY environment variable")
	} else {
		slog.Info("admin authentication enabled", "mode", "master_key")
	}

	slog.Info("cache configured",
		"backend", cfg.Cache.Backend,
		"ttl", cfg.Cache.TTL.Std(),
		"refresh_delay", cfg.Cache.RefreshDelay.Std(),
	)

	slog.Info("remote backend configured", "base_url", cfg.Remote.BaseURL)

	if cfg.Metrics.Enabled {
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}

	if a.storage != nil {
		slog.Info("storage configured", "type", a.storage.Type())
	}

	if cfg.Audit.Enabled {
		slog.Info("audit logging enabled",
			"buffer_size", cfg.Audit.BufferSize,
			"flush_interval", cfg.Audit.FlushInterval.Std(),
			"retention_days", cfg.Audit.RetentionDays,
		)
	} else {
		slog.Info("audit logging disabled")
	}
}
