package main

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/hibiken/asynq"
	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/pos-keramik/internal/backendapi"
	"github.com/noah-isme/pos-keramik/internal/config"
	"github.com/noah-isme/pos-keramik/internal/obs"
	"github.com/noah-isme/pos-keramik/internal/resilience"
	"github.com/noah-isme/pos-keramik/internal/tasks"
)

// The worker drains the promo-usage retry queue: usage increments that failed
// during finalize are replayed here until the backend accepts them.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.AppEnv, envOrDefault("OBS_LOG_LEVEL", "info")).
		With().Str("component", "worker").Logger()

	if cfg.RedisURL == "" {
		logger.Fatal().Msg("REDIS_URL is required for the worker")
	}
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}

	resilience.MustRegisterBreakerMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "pos"), nil)

	breaker := resilience.NewBreaker(cfg.BreakerThreshold, 0.5, cfg.BreakerCooldown).
		WithTarget("backend").
		WithLogger(logger)
	backendClient := &backendapi.Client{
		BaseURL: cfg.BackendBaseURL,
		HTTP: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker:     breaker,
			BaseBackoff: cfg.RetryBaseBackoff,
			MaxAttempts: cfg.RetryMaxAttempts,
			Jitter:      0.2,
			Timeout:     cfg.OutboundTimeout,
		},
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     redisOpts.Addr,
			Password: redisOpts.Password,
			DB:       redisOpts.DB,
		},
		asynq.Config{
			Concurrency: envInt("WORKER_CONCURRENCY", 5),
		},
	)

	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypePromoUsageIncrement, tasks.PromoUsageHandler{
		Backend: backendClient,
		Logger:  logger,
	})

	logger.Info().Msg("worker starting")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker exited unexpectedly")
	}
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}
