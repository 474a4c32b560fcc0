// Package config loads application configuration from an optional .env
// file, an optional config.yaml, and the environment. Environment variables
// take precedence over the YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML duration strings
// like "10m" or "100ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds the application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Remote  RemoteConfig  `yaml:"remote"`
	Cache   CacheConfig   `yaml:"cache"`
	Storage StorageConfig `yaml:"storage"`
	Audit   AuditConfig   `yaml:"audit"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port          string `yaml:"port"`
	MasterKey     string `yaml:"master_key"`
	BodySizeLimit int64  `yaml:"body_size_limit"`
}

// RemoteConfig holds hosted backend configuration.
type RemoteConfig struct {
	BaseURL        string   `yaml:"base_url"`
	APIKey         string   `yaml:"api_key"`
	MaxRetries     int      `yaml:"max_retries"`
	InitialBackoff Duration `yaml:"initial_backoff"`
	MaxBackoff     Duration `yaml:"max_backoff"`
	BackoffFactor  float64  `yaml:"backoff_factor"`
}

// Cache backend names.
const (
	CacheBackendFile   = "file"
	CacheBackendSQLite = "sqlite"
	CacheBackendRedis  = "redis"
)

// CacheConfig holds durable cache configuration.
type CacheConfig struct {
	// Backend is one of "file", "sqlite" or "redis".
	Backend      string   `yaml:"backend"`
	TTL          Duration `yaml:"ttl"`
	RefreshDelay Duration `yaml:"refresh_delay"`
	FilePath     string   `yaml:"file_path"`
	RedisURL     string   `yaml:"redis_url"`
}

// StorageConfig holds shared database configuration.
type StorageConfig struct {
	// Type is one of "sqlite", "postgresql" or "mongodb".
	Type       string           `yaml:"type"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
	MongoDB    MongoDBConfig    `yaml:"mongodb"`
}

// SQLiteConfig holds SQLite storage configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgreSQLConfig holds PostgreSQL storage configuration.
type PostgreSQLConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

// MongoDBConfig holds MongoDB storage configuration.
type MongoDBConfig struct {
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
}

// AuditConfig holds audit logging configuration.
type AuditConfig struct {
	Enabled       bool     `yaml:"enabled"`
	BufferSize    int      `yaml:"buffer_size"`
	FlushInterval Duration `yaml:"flush_interval"`
	RetentionDays int      `yaml:"retention_days"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is one of auto, json, pretty.
	Format string `yaml:"format"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          "8080",
			BodySizeLimit: 10 * 1024 * 1024,
		},
		Remote: RemoteConfig{
			MaxRetries:     3,
			InitialBackoff: Duration(500 * time.Millisecond),
			MaxBackoff:     Duration(10 * time.Second),
			BackoffFactor:  2.0,
		},
		Cache: CacheConfig{
			Backend:      CacheBackendFile,
			TTL:          Duration(10 * time.Minute),
			RefreshDelay: Duration(100 * time.Millisecond),
			FilePath:     "data/cache.json",
		},
		Storage: StorageConfig{
			Type:       "sqlite",
			SQLite:     SQLiteConfig{Path: "data/barback.db"},
			PostgreSQL: PostgreSQLConfig{MaxConns: 10},
			MongoDB:    MongoDBConfig{Database: "barback"},
		},
		Audit: AuditConfig{
			Enabled:       false,
			BufferSize:    1000,
			FlushInterval: Duration(5 * time.Second),
			RetentionDays: 30,
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load builds the configuration: defaults, then the optional YAML file,
// then environment variables. A .env file in the working directory is
// loaded first when present. The YAML path defaults to config.yaml and can
// be overridden with CONFIG_FILE.
func Load() (*Config, error) {
	// Optional; missing .env is not an error.
	_ = godotenv.Load()

	cfg := Default()

	yamlPath := os.Getenv("CONFIG_FILE")
	if yamlPath == "" {
		yamlPath = "config.yaml"
	}
	if err := loadYAML(cfg, yamlPath); err != nil {
		return nil, err
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML merges the YAML file at path into cfg. A missing file is
// ignored; a malformed one is an error.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides config fields from environment variables.
func applyEnv(cfg *Config) {
	envString(&cfg.Server.Port, "PORT")
	envString(&cfg.Server.MasterKey, "MASTER_KEY")
	envInt64(&cfg.Server.BodySizeLimit, "BODY_SIZE_LIMIT")

	envString(&cfg.Remote.BaseURL, "REMOTE_BASE_URL")
	envString(&cfg.Remote.APIKey, "REMOTE_API_KEY")
	envInt(&cfg.Remote.MaxRetries, "REMOTE_MAX_RETRIES")
	envDuration(&cfg.Remote.InitialBackoff, "REMOTE_INITIAL_BACKOFF")
	envDuration(&cfg.Remote.MaxBackoff, "REMOTE_MAX_BACKOFF")
	envFloat(&cfg.Remote.BackoffFactor, "REMOTE_BACKOFF_FACTOR")

	envString(&cfg.Cache.Backend, "CACHE_BACKEND")
	envDuration(&cfg.Cache.TTL, "CACHE_TTL")
	envDuration(&cfg.Cache.RefreshDelay, "CACHE_REFRESH_DELAY")
	envString(&cfg.Cache.FilePath, "CACHE_FILE_PATH")
	envString(&cfg.Cache.RedisURL, "CACHE_REDIS_URL")

	envString(&cfg.Storage.Type, "STORAGE_TYPE")
	envString(&cfg.Storage.SQLite.Path, "STORAGE_SQLITE_PATH")
	envString(&cfg.Storage.PostgreSQL.URL, "STORAGE_POSTGRES_URL")
	envInt(&cfg.Storage.PostgreSQL.MaxConns, "STORAGE_POSTGRES_MAX_CONNS")
	envString(&cfg.Storage.MongoDB.URL, "STORAGE_MONGODB_URL")
	envString(&cfg.Storage.MongoDB.Database, "STORAGE_MONGODB_DATABASE")

	envBool(&cfg.Audit.Enabled, "AUDIT_ENABLED")
	envInt(&cfg.Audit.BufferSize, "AUDIT_BUFFER_SIZE")
	envDuration(&cfg.Audit.FlushInterval, "AUDIT_FLUSH_INTERVAL")
	envInt(&cfg.Audit.RetentionDays, "AUDIT_RETENTION_DAYS")

	envBool(&cfg.Metrics.Enabled, "METRICS_ENABLED")
	envString(&cfg.Metrics.Endpoint, "METRICS_ENDPOINT")

	envString(&cfg.Log.Level, "LOG_LEVEL")
	envString(&cfg.Log.Format, "LOG_FORMAT")
}

// Validate rejects configurations the app cannot run with.
func (c *Config) Validate() error {
	if c.Remote.BaseURL == "" {
		return fmt.Errorf("remote base URL is required (REMOTE_BASE_URL)")
	}

	switch c.Cache.Backend {
	case CacheBackendFile, CacheBackendSQLite:
	case CacheBackendRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis cache backend requires CACHE_REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown cache backend: %s (valid: file, sqlite, redis)", c.Cache.Backend)
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	if c.Cache.RefreshDelay < 0 {
		return fmt.Errorf("cache refresh delay must not be negative")
	}
	return nil
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func envInt64(dst *int64, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = parsed
		}
	}
}

func envFloat(dst *float64, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = parsed
		}
	}
}

func envBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

func envDuration(dst *Duration, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = Duration(parsed)
		}
	}
}
