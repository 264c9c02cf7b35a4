// Package config handles application configuration loading from environment variables.
//
// Configuration follows the same patterns as other Open Cloud Ops modules,
// using HEAL_* prefixed environment variables with sensible defaults for
// local development. Database and Redis configuration uses the shared
// POSTGRES_* and REDIS_* prefixes; the document store uses MONGODB_*.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Document-store backends selectable via HEAL_STORE.
const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

// Config holds all configuration values for the self-healing engine.
// It is read once at startup and static for the process lifetime.
type Config struct {
	// Port is the HTTP port the status API listens on.
	Port string

	// LogLevel controls the verbosity of log output (debug, info, warn, error).
	LogLevel string

	// StoreMode selects the document-store backend: "mongo" or "memory".
	StoreMode string

	// MongoURI is the MongoDB connection string.
	MongoURI string

	// MongoDatabase is the database the engine scans and repairs.
	MongoDatabase string

	// CheckInterval is the pause between detection cycles.
	CheckInterval time.Duration

	// FixDelay is the pause between consecutive fixes.
	FixDelay time.Duration

	// QueueCapacity bounds the work queue; excess detections are dropped.
	QueueCapacity int

	// AutoFixEnabled gates whether the repairer actually applies fixes.
	AutoFixEnabled bool

	// DryRun simulates fixes without mutating the store.
	DryRun bool

	// BackupBeforeFix creates a backup collection before destructive fixes.
	BackupBeforeFix bool

	// Per-rule enable flags.
	CheckDuplicates    bool
	CheckOrphanedDocs  bool
	CheckMissingFields bool
	CheckInvalidValues bool
	CheckSlowQueries   bool

	// DatabaseURL is the optional PostgreSQL connection string for the
	// defect history store. Empty disables persistence.
	DatabaseURL string

	// RedisURL is the optional Redis address for snapshot caching.
	RedisURL string

	// AllowedOrigins defines the CORS allowed origins for the dashboard.
	AllowedOrigins []string
}

// Load reads configuration from environment variables and returns a Config.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Port = getEnvOrDefault("HEAL_PORT", "8083")
	cfg.LogLevel = getEnvOrDefault("HEAL_LOG_LEVEL", "info")
	cfg.StoreMode = getEnvOrDefault("HEAL_STORE", StoreMongo)

	cfg.MongoURI = getEnvOrDefault("MONGODB_URI", "mongodb://localhost:27017")
	cfg.MongoDatabase = getEnvOrDefault("MONGODB_DATABASE", "myapp")

	intervalSec, err := getEnvInt("HEAL_CHECK_INTERVAL_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	cfg.CheckInterval = time.Duration(intervalSec) * time.Second

	delaySec, err := getEnvInt("HEAL_FIX_DELAY_SECONDS", 2)
	if err != nil {
		return nil, err
	}
	cfg.FixDelay = time.Duration(delaySec) * time.Second

	capacity, err := getEnvInt("HEAL_QUEUE_CAPACITY", 100)
	if err != nil {
		return nil, err
	}
	cfg.QueueCapacity = capacity

	cfg.AutoFixEnabled = getEnvBool("HEAL_AUTO_FIX_ENABLED", true)
	cfg.DryRun = getEnvBool("HEAL_DRY_RUN", false)
	cfg.BackupBeforeFix = getEnvBool("HEAL_BACKUP_BEFORE_FIX", true)

	cfg.CheckDuplicates = getEnvBool("HEAL_CHECK_DUPLICATES", true)
	cfg.CheckOrphanedDocs = getEnvBool("HEAL_CHECK_ORPHANED_DOCS", true)
	cfg.CheckMissingFields = getEnvBool("HEAL_CHECK_MISSING_FIELDS", true)
	cfg.CheckInvalidValues = getEnvBool("HEAL_CHECK_INVALID_VALUES", true)
	cfg.CheckSlowQueries = getEnvBool("HEAL_CHECK_SLOW_QUERIES", true)

	// Build PostgreSQL connection URL from individual components.
	// Persistence is optional: no POSTGRES_HOST and no DATABASE_URL means
	// the engine runs without defect history.
	if pgHost := os.Getenv("POSTGRES_HOST"); pgHost != "" {
		pgPort := getEnvOrDefault("POSTGRES_PORT", "5432")
		pgDB := getEnvOrDefault("POSTGRES_DB", "opencloudops")
		pgUser := getEnvOrDefault("POSTGRES_USER", "oco_user")
		pgPassword := os.Getenv("POSTGRES_PASSWORD")
		pgSSLMode := getEnvOrDefault("POSTGRES_SSLMODE", "disable")

		// url.UserPassword percent-encodes credentials that contain
		// reserved URI characters (@, :, /, etc.).
		dsn := &url.URL{
			Scheme:   "postgres",
			Host:     fmt.Sprintf("%s:%s", pgHost, pgPort),
			Path:     pgDB,
			RawQuery: fmt.Sprintf("sslmode=%s", pgSSLMode),
		}
		if pgPassword == "" {
			dsn.User = url.User(pgUser)
		} else {
			dsn.User = url.UserPassword(pgUser, pgPassword)
		}
		cfg.DatabaseURL = dsn.String()
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.DatabaseURL = dbURL
	}

	// Redis is optional as well; the status endpoint computes snapshots
	// directly when no cache is configured.
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		redisPort := getEnvOrDefault("REDIS_PORT", "6379")
		cfg.RedisURL = fmt.Sprintf("%s:%s", redisHost, redisPort)
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.RedisURL = redisURL
	}

	originsStr := getEnvOrDefault("HEAL_ALLOWED_ORIGINS", "http://localhost:3000")
	cfg.AllowedOrigins = strings.Split(originsStr, ",")
	for i, origin := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set and valid.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("config: HEAL_PORT is required")
	}
	if c.StoreMode != StoreMongo && c.StoreMode != StoreMemory {
		return fmt.Errorf("config: HEAL_STORE must be \"mongo\" or \"memory\", got %q", c.StoreMode)
	}
	if c.StoreMode == StoreMongo && c.MongoURI == "" {
		return fmt.Errorf("config: MONGODB_URI is required")
	}
	if c.MongoDatabase == "" {
		return fmt.Errorf("config: MONGODB_DATABASE is required")
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("config: HEAL_CHECK_INTERVAL_SECONDS must be positive")
	}
	if c.FixDelay < 0 {
		return fmt.Errorf("config: HEAL_FIX_DELAY_SECONDS must not be negative")
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("config: HEAL_QUEUE_CAPACITY must be positive")
	}
	return nil
}

// getEnvOrDefault returns the value of the environment variable named by key,
// or the defaultValue if the variable is not set or empty.
func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s value %q: %w", key, val, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val == "true" || val == "1"
}
