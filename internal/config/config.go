// Package config loads application configuration from the environment and
// from the hot-reloadable lifecycle interval file.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType     string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	RateLimit     RateLimitConfig
	RemoteMetrics RemoteMetricsConfig
}

// RemoteMetricsConfig controls the periodic fleet-statistics push for
// deployments whose /metrics endpoint cannot be scraped.
type RemoteMetricsConfig struct {
	Enabled         bool
	Exporter        string
	Endpoint        string
	AuthToken       string
	IntervalMinutes int64
}

// RateLimitConfig controls the redis-backed limiter on asset mutations.
// Disabled by default so local runs and tests need no redis.
type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MintRate  float64
	MintBurst int

	RenewRate  float64
	RenewBurst int

	RenewLockTTLSeconds int64
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:      getenv("APP_SERVICE", "normies-membership"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:       getenv("DATABASE_TYPE", "postgres"),
		DBHost:       getenv("DATABASE_HOST", "localhost"),
		DBPort:       getenv("DATABASE_PORT", "5432"),
		DBName:       getenv("DATABASE_NAME", "membership"),
		DBUser:       getenv("DATABASE_USER", "postgres"),
		DBPassword:   getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:    getenv("DATABASE_SSLMODE", "disable"),
		RateLimit: RateLimitConfig{
			Enabled:             getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:           getenv("RATE_LIMIT_REDIS_ADDR", ""),
			RedisPassword:       getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:             int(getenvInt64("RATE_LIMIT_REDIS_DB", 0)),
			MintRate:            getenvFloat("RATE_LIMIT_MINT_RATE", 5),
			MintBurst:           int(getenvInt64("RATE_LIMIT_MINT_BURST", 10)),
			RenewRate:           getenvFloat("RATE_LIMIT_RENEW_RATE", 1),
			RenewBurst:          int(getenvInt64("RATE_LIMIT_RENEW_BURST", 3)),
			RenewLockTTLSeconds: getenvInt64("RATE_LIMIT_RENEW_LOCK_TTL_SECONDS", 30),
		},
		RemoteMetrics: RemoteMetricsConfig{
			Enabled:         getenvBool("REMOTE_METRICS_ENABLED", false),
			Exporter:        getenv("REMOTE_METRICS_EXPORTER", "prometheus_remote_write"),
			Endpoint:        getenv("REMOTE_METRICS_ENDPOINT", ""),
			AuthToken:       getenv("REMOTE_METRICS_AUTH_TOKEN", ""),
			IntervalMinutes: getenvInt64("REMOTE_METRICS_INTERVAL_MINUTES", 30),
		},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}
