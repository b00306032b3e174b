package main

import (
	"net/http"
	"time"

	"github.com/digos-health/himsog/libs/config"
	"github.com/digos-health/himsog/libs/db"
	"github.com/digos-health/himsog/libs/events"
	"github.com/digos-health/himsog/libs/httpx"
	"github.com/digos-health/himsog/libs/kafkax"
	otelx "github.com/digos-health/himsog/libs/otel"
	"github.com/digos-health/himsog/libs/runtime"
	"github.com/digos-health/himsog/services/auth-service/internal/audit"
	"github.com/digos-health/himsog/services/auth-service/internal/handlers"
	"github.com/digos-health/himsog/services/auth-service/internal/sessions"
	"github.com/digos-health/himsog/services/auth-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "auth-service")
	port, err := config.Port("PORT", "8081")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()
	defer otelx.Init(ctx, logger, service)()

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	brokers := config.String("KAFKA_BROKERS", "")
	outboxRepo := events.NewOutbox(pool)
	outboxRelay := events.NewRelay(pool, outboxRepo, logger, events.RelayConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxRelay.Run(ctx)

	signer, err := buildSigner()
	if err != nil {
		logger.Error("failed to init jwt signer", "err", err)
		panic(err)
	}

	refreshTTLHours := config.Int("REFRESH_TTL_HOURS", 720)
	if refreshTTLHours <= 0 {
		refreshTTLHours = 720
	}

	authHandler := handlers.NewAuthHandler(
		signer,
		pool,
		storage.NewUserRepository(pool),
		audit.NewRepository(pool),
		outboxRepo,
		sessions.NewRefreshRepository(pool),
		time.Duration(refreshTTLHours)*time.Hour,
	)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.HandleFunc("/api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("/api/v1/auth/login", authHandler.Login)
	mux.HandleFunc("/api/v1/auth/refresh", authHandler.Refresh)
	mux.HandleFunc("/api/v1/auth/logout", authHandler.Logout)
	mux.HandleFunc("/api/v1/auth/me", authHandler.Me)
	mux.HandleFunc("/.well-known/jwks.json", authHandler.JWKS)
	mux.HandleFunc("/api/v1/auth/rotate", authHandler.Rotate)
	mux.HandleFunc("/api/v1/auth/audit", authHandler.Audit)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	runtime.Serve(ctx, logger, &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(handler, "auth"),
		ReadHeaderTimeout: 5 * time.Second,
	})
}

// buildSigner picks the token scheme from the environment: a rotating
// RS256 key set, a single RS256 key, or the HS256 dev fallback.
func buildSigner() (handlers.TokenSigner, error) {
	if pems := config.String("JWT_PRIVATE_KEYS_PEM", ""); pems != "" {
		keySet, err := handlers.ParseRS256KeySet(pems)
		if err != nil {
			return nil, err
		}
		signer, err := handlers.NewRotatingRS256Signer(keySet, config.String("JWT_ACTIVE_KID", ""))
		if err != nil {
			return nil, err
		}
		if rk := config.String("JWT_ROTATE_KEY", ""); rk != "" {
			if rotator, ok := signer.(*handlers.RotatingSigner); ok {
				rotator.SetRotateKey(rk)
			}
		}
		return signer, nil
	}
	if pem := config.String("JWT_PRIVATE_KEY_PEM", ""); pem != "" {
		return handlers.NewRS256Signer([]byte(pem), config.String("JWT_KID", ""))
	}
	return handlers.NewHS256Signer(config.String("JWT_SECRET", "dev-secret")), nil
}
