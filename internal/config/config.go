// Package config loads the icon service's environment-driven
// configuration, following the flat env(key, def) idiom. Values are not
// validated: an unset or unparseable value falls back to its default,
// and Load never returns an error.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

var lookupEnv = os.Getenv

// Config holds everything correctness depends on (spec.md §6: object
// store binding, key-value binding, optional dev file-server root,
// ALLOWED_ORIGINS CSV — nothing else affects correctness).
type Config struct {
	Addr string

	// Key-value backend (Index Store, §2.2 / §4.2).
	KVDatabasePath string

	// Object store backend (Blob Store, §4.3): the root directory the
	// filesystem adapter serves blobs from.
	DevBlobRoot string

	AllowedOrigins []string

	// Cache tier knobs (§4.5).
	MemoryCacheCapacity int
	MemoryCacheTTL      time.Duration

	// Transform engine cache (§4.4).
	TransformCacheCapacity int

	// Search result cache (§4.7).
	SearchCacheCapacity int
	SearchCacheTTL      time.Duration

	// Coalescer sweep (§4.6 / §5).
	CoalesceTimeout time.Duration

	// Blob store connection pool (§4.3).
	BlobPoolSize int

	// Circuit breaker (§5).
	BreakerThreshold   int
	BreakerOpenTimeout time.Duration

	// Rate limiting is an external collaborator (spec.md §1); these are
	// advisory values surfaced in X-RateLimit-* headers only.
	RateLimitPerMinute int
}

// Load reads configuration from the environment, applying the defaults
// spec.md names explicitly (TTLs, capacities, thresholds).
func Load() (Config, error) {
	cfg := Config{
		Addr:                   env("ICONSERVE_ADDR", ":8080"),
		KVDatabasePath:         env("ICONSERVE_KV_DB_PATH", "data/iconserve.sqlite"),
		DevBlobRoot:            env("ICONSERVE_DEV_BLOB_ROOT", "data/blobs"),
		AllowedOrigins:         splitCSV(env("ALLOWED_ORIGINS", "")),
		MemoryCacheCapacity:    envInt("ICONSERVE_MEMORY_CACHE_CAPACITY", 500),
		MemoryCacheTTL:         envDuration("ICONSERVE_MEMORY_CACHE_TTL", 5*time.Minute),
		TransformCacheCapacity: envInt("ICONSERVE_TRANSFORM_CACHE_CAPACITY", 1000),
		SearchCacheCapacity:    envInt("ICONSERVE_SEARCH_CACHE_CAPACITY", 200),
		SearchCacheTTL:         envDuration("ICONSERVE_SEARCH_CACHE_TTL", 5*time.Minute),
		CoalesceTimeout:        envDuration("ICONSERVE_COALESCE_TIMEOUT", 30*time.Second),
		BlobPoolSize:           envInt("ICONSERVE_BLOB_POOL_SIZE", 50),
		BreakerThreshold:       envInt("ICONSERVE_BREAKER_THRESHOLD", 5),
		BreakerOpenTimeout:     envDuration("ICONSERVE_BREAKER_OPEN_TIMEOUT", 30*time.Second),
		RateLimitPerMinute:     envInt("ICONSERVE_RATE_LIMIT_PER_MINUTE", 600),
	}
	return cfg, nil
}

func env(key, def string) string {
	if v := lookupEnv(key); strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(lookupEnv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(lookupEnv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
