package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/pos-keramik/internal/api"
	"github.com/noah-isme/pos-keramik/internal/backendapi"
	"github.com/noah-isme/pos-keramik/internal/checkout"
	"github.com/noah-isme/pos-keramik/internal/common"
	"github.com/noah-isme/pos-keramik/internal/config"
	"github.com/noah-isme/pos-keramik/internal/events"
	"github.com/noah-isme/pos-keramik/internal/health"
	"github.com/noah-isme/pos-keramik/internal/obs"
	"github.com/noah-isme/pos-keramik/internal/promo"
	"github.com/noah-isme/pos-keramik/internal/ratelimit"
	"github.com/noah-isme/pos-keramik/internal/resilience"
	"github.com/noah-isme/pos-keramik/internal/security"
	"github.com/noah-isme/pos-keramik/internal/session"
	"github.com/noah-isme/pos-keramik/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(cfg.AppEnv, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "pos")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	resilience.MustRegisterBreakerMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "pos-keramik",
			Endpoint:      cfg.OTLPEndpoint,
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis is optional. Without it the terminal still runs; it only loses
	// checkout idempotency and the promo-usage retry queue.
	var redisClient *redis.Client
	var retry checkout.UsageRetryScheduler
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse redis url")
		}
		redisClient = redis.NewClient(redisOpts)
		if err := redisotel.InstrumentTracing(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
		if metricsEnabled {
			if err := redisotel.InstrumentMetrics(redisClient); err != nil {
				logger.Error().Err(err).Msg("instrument redis metrics")
			}
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unreachable, idempotency and retry queue degraded")
		}

		asynqClient := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     redisOpts.Addr,
			Password: redisOpts.Password,
			DB:       redisOpts.DB,
		})
		defer func() {
			if err := asynqClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close asynq client")
			}
		}()
		retry = tasks.Scheduler{Client: asynqClient}
	}

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

	registry := session.NewRegistry(cfg.TaxRateBps, cfg.SessionTTL, nil).
		WithCountHook(func(n int) {
			if obs.ActiveSessions != nil {
				obs.ActiveSessions.Set(float64(n))
			}
		})
	go registry.Run(ctx, 5*time.Minute)

	bus := &events.Bus{Notifiers: []events.Notifier{events.LogNotifier{Logger: logger}}}

	checkoutSvc := &checkout.Service{
		Backend: backendClient,
		Retry:   retry,
		Events:  bus,
		Logger:  logger,
		Timeout: cfg.OutboundTimeout,
	}

	handler := &api.Handler{
		Registry: registry,
		Backend:  backendClient,
		Promo:    &promo.Resolver{Backend: backendClient},
		Checkout: checkoutSvc,
		Events:   bus,
		Validate: validator.New(),
		Logger:   logger,
	}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	limiter := ratelimit.Handler{
		Limiter: ratelimit.NewMemoryLimiter(),
		Config: ratelimit.Config{
			Key:    common.ClientIP,
			Window: time.Minute,
			Max:    envInt("RATE_LIMIT_PER_MINUTE", 240),
		},
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter") },
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true}.Middleware)
	r.Use(security.BodyLimit{Max: 64 << 10}.Middleware)
	r.Use(limiter.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		MaxAge:         300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{
		Checker:        readinessChecker{backend: backendClient, redis: redisClient},
		BackendTimeout: envDurationMillis("HEALTH_READY_BACKEND_TIMEOUT_MS", 1000),
		RedisTimeout:   envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		handler.Routes(v, idem.Middleware)
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown server")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Int("tax_bps", cfg.TaxRateBps).Msg("terminal starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("terminal stopped")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	backend *backendapi.Client
	redis   *redis.Client
}

func (c readinessChecker) PingBackend(ctx context.Context, timeout time.Duration) error {
	if c.backend == nil {
		return errors.New("backend not configured")
	}
	return c.backend.Ping(ctx, timeout)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
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

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
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

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}
