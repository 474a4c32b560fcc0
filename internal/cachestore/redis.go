package cachestore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"barback/internal/core"
)

const (
	// DefaultRedisPrefix is the key prefix for cache snapshots in Redis.
	DefaultRedisPrefix = "barback:cache"

	// DefaultRedisTTL is the safety expiry on Redis keys (24 hours). This is
	// not the freshness TTL: it only ensures abandoned data eventually
	// disappears if the application stops updating.
	DefaultRedisTTL = 24 * time.Hour
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379")
	URL string

	// Prefix is the key prefix for cache data (defaults to "barback:cache")
	Prefix string

	// TTL is the key expiry for cached data (defaults to 24 hours)
	TTL time.Duration
}

// redisSnapshot is the JSON payload stored under each collection key. The
// refresh timestamp lives in a separate freshness hash.
type redisSnapshot struct {
	Data     json.RawMessage `json:"data"`
	Count    int             `json:"count"`
	Checksum uint64          `json:"checksum"`
}

// RedisBackend implements Backend using Redis, suitable for multi-instance
// deployments behind a load balancer.
type RedisBackend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisBackend creates a Redis cache backend and verifies the connection.
func NewRedisBackend(cfg RedisConfig) (*RedisBackend, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultRedisTTL
	}

	slog.Info("redis cache connected", "prefix", prefix, "ttl", ttl)

	return &RedisBackend{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

func (b *RedisBackend) dataKey(collection core.Collection) string {
	return b.prefix + ":" + string(collection)
}

func (b *RedisBackend) freshnessKey() string {
	return b.prefix + ":freshness"
}

// Read retrieves the snapshot for one collection from Redis.
func (b *RedisBackend) Read(ctx context.Context, collection core.Collection) (*Snapshot, error) {
	data, err := b.client.Get(ctx, b.dataKey(collection)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // No snapshot yet, not an error
		}
		return nil, fmt.Errorf("failed to get cache from redis: %w", err)
	}

	var rs redisSnapshot
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse cache from redis: %w", err)
	}

	snap := &Snapshot{
		Collection: collection,
		Data:       rs.Data,
		Count:      rs.Count,
		Checksum:   rs.Checksum,
	}

	ms, err := b.client.HGet(ctx, b.freshnessKey(), string(collection)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to get cache freshness from redis: %w", err)
	}
	if ms != "" {
		unixMS, parseErr := strconv.ParseInt(ms, 10, 64)
		if parseErr == nil && unixMS > 0 {
			snap.RefreshedAt = time.UnixMilli(unixMS).UTC()
		}
	}

	return snap, nil
}

// Write replaces the snapshot and its freshness stamp in one transaction
// via MULTI/EXEC pipelining.
func (b *RedisBackend) Write(ctx context.Context, snap *Snapshot) error {
	payload, err := json.Marshal(redisSnapshot{
		Data:     snap.Data,
		Count:    snap.Count,
		Checksum: snap.Checksum,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal cache snapshot: %w", err)
	}

	pipe := b.client.TxPipeline()
	pipe.Set(ctx, b.dataKey(snap.Collection), payload, b.ttl)
	pipe.HSet(ctx, b.freshnessKey(), string(snap.Collection), strconv.FormatInt(snap.RefreshedAt.UnixMilli(), 10))
	pipe.Expire(ctx, b.freshnessKey(), b.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write cache to redis: %w", err)
	}
	return nil
}

// Clear removes all snapshot keys and the freshness hash.
func (b *RedisBackend) Clear(ctx context.Context) error {
	keys := make([]string, 0, len(core.Collections())+1)
	for _, c := range core.Collections() {
		keys = append(keys, b.dataKey(c))
	}
	keys = append(keys, b.freshnessKey())

	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to clear cache in redis: %w", err)
	}
	return nil
}

// Stats returns counts and refresh timestamps for all stored collections.
func (b *RedisBackend) Stats(ctx context.Context) ([]Stat, error) {
	var stats []Stat
	for _, c := range core.Collections() {
		snap, err := b.Read(ctx, c)
		if err != nil {
			return nil, err
		}
		if snap == nil {
			continue
		}
		st := Stat{Collection: c, Count: snap.Count}
		if !snap.RefreshedAt.IsZero() {
			t := snap.RefreshedAt
			st.RefreshedAt = &t
		}
		stats = append(stats, st)
	}
	return stats, nil
}

// Close closes the Redis connection.
func (b *RedisBackend) Close() error {
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}
