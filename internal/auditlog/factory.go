package auditlog

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"barback/internal/storage"
)

// New creates a Recorder backed by the shared storage connection. The
// storage lifecycle stays with the caller; closing the returned Recorder
// only stops the flush loop and any cleanup goroutine.
//
// When auditing is disabled a NoopRecorder is returned and the storage is
// never touched.
func New(store storage.Storage, cfg Config) (Recorder, error) {
	if !cfg.Enabled {
		return NoopRecorder{}, nil
	}

	logStore, err := createLogStore(store, cfg.RetentionDays)
	if err != nil {
		return nil, err
	}

	return NewLogger(logStore, cfg), nil
}

// createLogStore selects the LogStore implementation matching the storage
// backend.
func createLogStore(store storage.Storage, retentionDays int) (LogStore, error) {
	switch store.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(store.SQLiteDB(), retentionDays)

	case storage.TypePostgreSQL:
		pool := store.PostgreSQLPool()
		if pool == nil {
			return nil, fmt.Errorf("PostgreSQL pool is nil")
		}
		pgxPool, ok := pool.(*pgxpool.Pool)
		if !ok {
			return nil, fmt.Errorf("invalid PostgreSQL pool type: %T", pool)
		}
		return NewPostgreSQLStore(pgxPool, retentionDays)

	case storage.TypeMongoDB:
		db := store.MongoDatabase()
		if db == nil {
			return nil, fmt.Errorf("MongoDB database is nil")
		}
		mongoDB, ok := db.(*mongo.Database)
		if !ok {
			return nil, fmt.Errorf("invalid MongoDB database type: %T", db)
		}
		return NewMongoDBStore(mongoDB, retentionDays)

	default:
		return nil, fmt.Errorf("unknown storage type: %s", store.Type())
	}
}
