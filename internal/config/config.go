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

// Config holds terminal configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	BackendBaseURL     string
	RedisURL           string
	CORSAllowedOrigins []string

	// Pricing. TaxRateBps is the VAT rate in basis points (1200 = 12%).
	TaxRateBps int
	Currency   string

	SessionTTL     time.Duration
	IdempotencyTTL time.Duration

	// Outbound backend call tuning.
	OutboundTimeout  time.Duration
	RetryMaxAttempts int
	RetryBaseBackoff time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration

	OTLPEndpoint string
}

// Load reads configuration from environment variables and an optional .env
// file. BACKEND_BASE_URL is the only required key; Redis is optional and
// disables idempotency and the retry queue when absent.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		BackendBaseURL:     strings.TrimRight(strings.TrimSpace(k.String("BACKEND_BASE_URL")), "/"),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		TaxRateBps:         parseInt(k.String("TAX_RATE_BPS"), 1200),
		Currency:           valueOrDefault(k.String("CURRENCY"), "PHP"),
		SessionTTL:         parseDuration(k.String("SESSION_TTL"), "12h"),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		OutboundTimeout:    parseDuration(k.String("OUTBOUND_TIMEOUT"), "10s"),
		RetryMaxAttempts:   parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryBaseBackoff:   parseDuration(k.String("RETRY_BASE_BACKOFF"), "200ms"),
		BreakerThreshold:   parseInt(k.String("BREAKER_THRESHOLD"), 5),
		BreakerCooldown:    parseDuration(k.String("BREAKER_COOLDOWN"), "30s"),
		OTLPEndpoint:       strings.TrimSpace(k.String("OTEL_EXPORTER_OTLP_ENDPOINT")),
	}

	if cfg.BackendBaseURL == "" {
		return nil, errors.New("BACKEND_BASE_URL is required")
	}
	if cfg.TaxRateBps < 0 || cfg.TaxRateBps > 10000 {
		return nil, fmt.Errorf("TAX_RATE_BPS out of range: %d", cfg.TaxRateBps)
	}

	return cfg, nil
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

func parseInt(value string, fallback int) int {
	base := strings.TrimSpace(value)
	if base == "" {
		return fallback
	}
	n, err := strconv.Atoi(base)
	if err != nil {
		return fallback
	}
	return n
}

// MustLoad behaves like Load but panics on error. Useful for command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests overrides environment variables for the duration of one Load
// call, then restores the previous values.
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
