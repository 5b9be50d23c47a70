// Package config provides environment-variable-driven configuration
// for the entity store and its commands, adapted from the teacher's
// config package but trimmed to the settings this core actually has:
// no HTTP/TLS/RBAC settings, since this library exposes no network
// surface of its own (spec.md §1 Non-goals).
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds configuration for opening and running an entity store.
// All values have defaults and can be overridden through environment
// variables.
type Config struct {
	// DataPath is the directory containing the backing bbolt file.
	// Environment: ENTITYDB_DATA_PATH
	// Default: "./var"
	DataPath string

	// CacheEnabled controls whether Store.Get is wrapped with an
	// adaptive read cache (package cache).
	// Environment: ENTITYDB_CACHE_ENABLED
	// Default: true
	CacheEnabled bool

	// CacheTTL is how long a cached read stays valid.
	// Environment: ENTITYDB_CACHE_TTL (seconds)
	// Default: 5 minutes
	CacheTTL time.Duration

	// CacheMaxEntries bounds the adaptive cache's entry count.
	// Environment: ENTITYDB_CACHE_MAX_ENTRIES
	// Default: 10000
	CacheMaxEntries int

	// IntegrityMonitorEnabled controls whether the background
	// free-relation integrity monitor (package integrity) runs.
	// Environment: ENTITYDB_INTEGRITY_MONITOR_ENABLED
	// Default: false (it's a diagnostic aid, not required for
	// correctness — the deletion engine itself never leaves dangling
	// edges under its own operations)
	IntegrityMonitorEnabled bool

	// IntegrityMonitorInterval is how often the monitor runs.
	// Environment: ENTITYDB_INTEGRITY_MONITOR_INTERVAL (seconds)
	// Default: 1 hour
	IntegrityMonitorInterval time.Duration

	// LogLevel sets the initial logger.LogLevel by name.
	// Environment: ENTITYDB_LOG_LEVEL
	// Default: "info"
	LogLevel string
}

// Load builds a Config from environment variables, falling back to
// documented defaults for anything unset.
func Load() *Config {
	return &Config{
		DataPath:                 getEnv("ENTITYDB_DATA_PATH", "./var"),
		CacheEnabled:             getEnvBool("ENTITYDB_CACHE_ENABLED", true),
		CacheTTL:                 getEnvDuration("ENTITYDB_CACHE_TTL", 300),
		CacheMaxEntries:          getEnvInt("ENTITYDB_CACHE_MAX_ENTRIES", 10000),
		IntegrityMonitorEnabled:  getEnvBool("ENTITYDB_INTEGRITY_MONITOR_ENABLED", false),
		IntegrityMonitorInterval: getEnvDuration("ENTITYDB_INTEGRITY_MONITOR_INTERVAL", 3600),
		LogLevel:                 getEnv("ENTITYDB_LOG_LEVEL", "info"),
	}
}

// DatabasePath returns the full path to the backing bbolt file.
func (c *Config) DatabasePath() string {
	return c.DataPath + "/entities.db"
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultSeconds int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return time.Duration(defaultSeconds) * time.Second
}
