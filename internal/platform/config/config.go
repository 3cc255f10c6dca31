// Package config builds the process configuration from environment
// variables so main stays lean. Every knob has an inline default; the
// backend choice is fixed for the process lifetime.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the binaries read from the environment.
type Config struct {
	Addr string

	// Backend selects the storage implementation: "memory" or "postgres".
	// Switching requires a restart.
	Backend     string
	PostgresDSN string
	MaxSearch   int
	SeedDemo    bool

	// Cache selects the response cache: "memory", "redis", or "off".
	Cache    string
	CacheTTL time.Duration
	RedisURL string

	// QueryLog selects the query-event publisher: "kafka", "log", or "off".
	QueryLog     string
	KafkaBrokers []string
	KafkaTopic   string

	BootstrapBaseURL   string
	BootstrapRefresh   time.Duration
	BootstrapCachePath string

	RequestTimeout time.Duration

	LogLevel  string
	LogFormat string
}

// FromEnv builds a Config from RDAP_* environment variables.
func FromEnv() Config {
	return Config{
		Addr:        envOr("RDAP_ADDR", ":8080"),
		Backend:     envOr("RDAP_BACKEND", "memory"),
		PostgresDSN: os.Getenv("RDAP_POSTGRES_DSN"),
		MaxSearch:   envInt("RDAP_MAX_SEARCH", 50),
		SeedDemo:    os.Getenv("RDAP_SEED_DEMO") == "true",

		Cache:    envOr("RDAP_CACHE", "memory"),
		CacheTTL: envDuration("RDAP_CACHE_TTL", time.Minute),
		RedisURL: os.Getenv("RDAP_REDIS_URL"),

		QueryLog:     envOr("RDAP_QLOG", "off"),
		KafkaBrokers: envList("RDAP_KAFKA_BROKERS"),
		KafkaTopic:   envOr("RDAP_KAFKA_TOPIC", "rdap.queries"),

		BootstrapBaseURL:   envOr("RDAP_BOOTSTRAP_URL", "https://data.iana.org/rdap/"),
		BootstrapRefresh:   envDuration("RDAP_BOOTSTRAP_REFRESH", 24*time.Hour),
		BootstrapCachePath: envOr("RDAP_BOOTSTRAP_CACHE", "rdap-bootstrap.db"),

		RequestTimeout: envDuration("RDAP_REQUEST_TIMEOUT", 30*time.Second),

		LogLevel:  envOr("RDAP_LOG_LEVEL", "info"),
		LogFormat: envOr("RDAP_LOG_FORMAT", "text"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envInt falls back to def on unset or unparsable values.
func envInt(key string, def int) int {
	v := os.Getenv(key)
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
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// envList splits a comma-separated value, dropping empty entries.
func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
