package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	LogFormat          string
	LogLevel           string
	DatabaseURL        string
	DBMaxConns         int32
	MigrateOnStart     bool
	RedisURL           string
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	CORSAllowedOrigins []string
	MaxBodyBytes       int64

	CartTTL               time.Duration
	CheckoutSessionTTL    time.Duration
	CatalogCacheTTL       time.Duration
	ShippingRatesCacheTTL time.Duration
	LockTTL               time.Duration
	LockRetryBackoff      time.Duration
	ReconcileLockTTL      time.Duration
	ReconcileTimeout      time.Duration
	IdempotencyTTL        time.Duration
	RateLimitRate         string
	WorkerConcurrency     int

	TracingExporter string
	TracingEndpoint string
	TracingSampling float64
	MetricsBuckets  string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		LogFormat:          valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:           valueOrDefault(k.String("LOG_LEVEL"), "info"),
		DatabaseURL:        k.String("DATABASE_URL"),
		DBMaxConns:         int32(parseInt(k.String("DB_MAX_CONNS"), 10)),
		MigrateOnStart:     parseBool(k.String("MIGRATE_ON_START")),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          strings.TrimSpace(k.String("JWT_ISSUER")),
		JWTAudience:        strings.TrimSpace(k.String("JWT_AUDIENCE")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		MaxBodyBytes:       int64(parseInt(k.String("MAX_BODY_BYTES"), 1<<20)),

		CartTTL:               parseDuration(k.String("CART_TTL"), "168h"),
		CheckoutSessionTTL:    parseDuration(k.String("CHECKOUT_SESSION_TTL"), "30m"),
		CatalogCacheTTL:       parseDuration(k.String("CATALOG_CACHE_TTL"), "60s"),
		ShippingRatesCacheTTL: parseDuration(k.String("SHIPPING_RATES_CACHE_TTL"), "5m"),
		LockTTL:               parseDuration(k.String("LOCK_TTL"), "5s"),
		LockRetryBackoff:      parseDuration(k.String("LOCK_RETRY_BACKOFF"), "25ms"),
		ReconcileLockTTL:      parseDuration(k.String("RECONCILE_LOCK_TTL"), "2m"),
		ReconcileTimeout:      parseDuration(k.String("RECONCILE_TIMEOUT"), "90s"),
		IdempotencyTTL:        parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		RateLimitRate:         valueOrDefault(k.String("RATE_LIMIT_RATE"), "120-M"),
		WorkerConcurrency:     parseInt(k.String("WORKER_CONCURRENCY"), 5),

		TracingExporter: valueOrDefault(k.String("OTEL_TRACES_EXPORTER"), "none"),
		TracingEndpoint: strings.TrimSpace(k.String("OTEL_EXPORTER_OTLP_ENDPOINT")),
		TracingSampling: parseFloat(k.String("OTEL_TRACES_SAMPLER_ARG"), 1),
		MetricsBuckets:  k.String("METRICS_BUCKETS_MS"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.ReconcileLockTTL < cfg.LockTTL {
		return nil, errors.New("RECONCILE_LOCK_TTL must not be shorter than LOCK_TTL")
	}
	if cfg.ReconcileTimeout <= 0 || cfg.ReconcileTimeout > cfg.ReconcileLockTTL {
		return nil, errors.New("RECONCILE_TIMEOUT must be positive and not longer than RECONCILE_LOCK_TTL")
	}

	return cfg, nil
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.AppEnv), "production")
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || f < 0 {
		return fallback
	}
	return f
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
