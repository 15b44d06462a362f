// Package config loads and validates environment variables at startup.
// Fail-fast: a malformed value is reported instead of silently defaulted.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"jobmate/job-ingest/internal/model"
	"jobmate/job-ingest/internal/source"
)

// Config holds all runtime configuration for the discovery service.
type Config struct {
	Port        string
	DatabaseURL string // optional: persistence is disabled when empty
	RedisURL    string
	NATSURL     string
	// NotifyBackend selects where new postings are announced: redis, nats or none.
	NotifyBackend    string
	LogLevel         string
	OTELCollectorURL string

	CacheTTL     time.Duration
	SeenCapacity int

	FetchTimeout    time.Duration
	FetchMaxRetries int
	FetchRetryDelay time.Duration

	BulkConcurrency int
	BulkMaxURLs     int

	MisfireGrace time.Duration

	RepoDefaultMax int
	RepoMaxResults int

	RateLimits map[model.Source]int
}

// Load reads environment variables (and a .env file when present) and
// returns a validated Config.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	var errs []string
	intVar := func(key string, def, min int) int {
		v, err := getEnvInt(key, def)
		if err != nil || v < min {
			errs = append(errs, fmt.Sprintf("%s must be an integer >= %d, got %q", key, min, os.Getenv(key)))
			return def
		}
		return v
	}

	cfg := &Config{
		Port:             getEnvString("DISCOVERY_PORT", "8081"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		NATSURL:          os.Getenv("NATS_URL"),
		NotifyBackend:    strings.ToLower(getEnvString("NOTIFY_BACKEND", "none")),
		LogLevel:         getEnvString("LOG_LEVEL", "info"),
		OTELCollectorURL: os.Getenv("OTEL_COLLECTOR_URL"),

		CacheTTL:     time.Duration(intVar("CACHE_TTL_MINUTES", 30, 1)) * time.Minute,
		SeenCapacity: intVar("SEEN_CAPACITY", 0, 0),

		FetchTimeout:    time.Duration(intVar("FETCH_TIMEOUT_SECONDS", 30, 1)) * time.Second,
		FetchMaxRetries: intVar("FETCH_MAX_RETRIES", 3, 1),

		BulkConcurrency: intVar("BULK_CONCURRENCY", 5, 1),
		BulkMaxURLs:     intVar("BULK_MAX_URLS", 50, 1),

		MisfireGrace: time.Duration(intVar("SCHEDULER_MISFIRE_GRACE_SECONDS", 300, 0)) * time.Second,

		RepoDefaultMax: intVar("REPO_DEFAULT_MAX", 100, 1),
		RepoMaxResults: intVar("REPO_MAX_RESULTS", 500, 1),
	}

	delay, err := getEnvDuration("FETCH_RETRY_DELAY", time.Second)
	if err != nil {
		errs = append(errs, fmt.Sprintf("FETCH_RETRY_DELAY must be a duration, got %q", os.Getenv("FETCH_RETRY_DELAY")))
	}
	cfg.FetchRetryDelay = delay

	limits, err := ParseRateLimits(os.Getenv("RATE_LIMITS"))
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.RateLimits = limits

	switch cfg.NotifyBackend {
	case "none":
	case "redis":
		if cfg.RedisURL == "" {
			errs = append(errs, "REDIS_URL is required when NOTIFY_BACKEND=redis")
		}
	case "nats":
		if cfg.NATSURL == "" {
			errs = append(errs, "NATS_URL is required when NOTIFY_BACKEND=nats")
		}
	default:
		errs = append(errs, fmt.Sprintf("NOTIFY_BACKEND must be redis, nats or none, got %q", cfg.NotifyBackend))
	}

	if cfg.RepoDefaultMax > cfg.RepoMaxResults {
		errs = append(errs, "REPO_DEFAULT_MAX must not exceed REPO_MAX_RESULTS")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// ParseRateLimits parses "source=rpm,source=rpm" overrides.
func ParseRateLimits(s string) (map[model.Source]int, error) {
	limits := make(map[model.Source]int)
	s = strings.TrimSpace(s)
	if s == "" {
		return limits, nil
	}
	for _, pair := range strings.Split(s, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("RATE_LIMITS entry %q is not source=rpm", pair)
		}
		src := model.Source(strings.ToLower(strings.TrimSpace(name)))
		if !source.IsKnown(src) {
			return nil, fmt.Errorf("RATE_LIMITS: unknown source %q", name)
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("RATE_LIMITS: %s must be a positive integer, got %q", src, value)
		}
		limits[src] = n
	}
	return limits, nil
}

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, err
	}
	return d, nil
}
