package main

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/digos-health/himsog/libs/auth"
	"github.com/digos-health/himsog/libs/config"
	"github.com/digos-health/himsog/libs/httpx"
	otelx "github.com/digos-health/himsog/libs/otel"
	"github.com/digos-health/himsog/libs/runtime"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "gateway-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()
	defer otelx.Init(ctx, logger, service)()

	mux := runtime.NewBaseMuxWithReady()
	registerRoutes(mux, buildVerifier())

	rateLimitMW, closeLimiter := buildRateLimiter(logger)
	defer closeLimiter()

	handler := httpx.Chain(mux,
		httpx.WithCORS(corsPolicy()),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(time.Duration(config.Int("REQUEST_TIMEOUT_SECONDS", 10))*time.Second),
		rateLimitMW,
	)
	runtime.Serve(ctx, logger, &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(handler, "gateway"),
		ReadHeaderTimeout: 5 * time.Second,
	})
}

// buildVerifier prefers JWKS when configured so the gateway accepts
// RS256 tokens from a rotating key set; the shared secret stays as the
// dev fallback.
func buildVerifier() *tokenVerifier {
	verifier := &tokenVerifier{secret: config.String("JWT_SECRET", "dev-secret")}
	if jwksURL := config.String("JWKS_URL", ""); jwksURL != "" {
		ttl := time.Duration(config.Int("JWKS_CACHE_SECONDS", 300)) * time.Second
		verifier.jwks = auth.NewJWKSClient(jwksURL, ttl)
	}
	return verifier
}

// buildRateLimiter uses Redis when REDIS_ADDR is set so limits hold
// across gateway replicas, and falls back to the in-memory limiter
// otherwise. The returned func releases the Redis connection.
func buildRateLimiter(logger *slog.Logger) (httpx.Middleware, func()) {
	perMinute := config.Int("RATE_LIMIT_PER_MINUTE", 60)

	addr := strings.TrimSpace(config.String("REDIS_ADDR", ""))
	if addr == "" {
		logger.Info("rate limiting enabled (in-memory)", "per_minute", perMinute)
		rl := httpx.NewRateLimiter(perMinute, time.Minute)
		return rl.Middleware(), func() {}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       config.Int("REDIS_DB", 0),
	})
	rl := httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
	logger.Info("rate limiting enabled (redis)", "per_minute", perMinute, "redis_addr", addr)
	return rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true)), func() { _ = rdb.Close() }
}

func corsPolicy() httpx.CORSPolicy {
	return httpx.CORSPolicy{
		AllowedOrigins:   config.Strings("CORS_ALLOWED_ORIGINS", nil),
		AllowedMethods:   config.Strings("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		AllowedHeaders:   config.Strings("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type", "X-Request-Id", "X-Idempotency-Key"}),
		AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
		MaxAge:           time.Duration(config.Int("CORS_MAX_AGE_SECONDS", 600)) * time.Second,
	}
}
