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
	"github.com/digos-health/himsog/services/billing-service/internal/handlers"
	"github.com/digos-health/himsog/services/billing-service/internal/reconcile"
	"github.com/digos-health/himsog/services/billing-service/internal/storage"
	"github.com/digos-health/himsog/services/billing-service/internal/subscriptions"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "billing-service")
	port, err := config.Port("PORT", "8084")
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
	repo := storage.NewRepository(pool)
	outboxRepo := events.NewOutbox(pool)
	subSvc := subscriptions.New(repo, outboxRepo)

	outboxRelay := events.NewRelay(pool, outboxRepo, logger, events.RelayConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxRelay.Run(ctx)

	h := handlers.New(repo, outboxRepo, logger, handlers.Config{
		StripeWebhookSecret:           config.String("STRIPE_WEBHOOK_SECRET", ""),
		StripeWebhookToleranceSeconds: config.Int("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 300),
		StripeSecretKey:               config.String("STRIPE_SECRET_KEY", ""),
		StripePriceStarter:            config.String("STRIPE_PRICE_STARTER", ""),
		StripePricePro:                config.String("STRIPE_PRICE_PRO", ""),
		CheckoutSuccessURL:            config.String("CHECKOUT_SUCCESS_URL", ""),
		CheckoutCancelURL:             config.String("CHECKOUT_CANCEL_URL", ""),
	})

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.HandleFunc("/api/v1/billing/checkout", h.CheckoutStub)
	mux.HandleFunc("/api/v1/billing/checkout/session", h.CheckoutSessionStatus)
	mux.HandleFunc("/api/v1/billing/checkout/session/ack", h.AckCheckoutReturn)
	mux.HandleFunc("/api/v1/billing/subscription", h.GetSubscription)
	mux.HandleFunc("/api/v1/billing/subscription/cancel", h.CancelSubscription)
	mux.HandleFunc("/api/v1/billing/webhooks/local", h.LocalWebhook)
	mux.HandleFunc("/api/v1/billing/webhooks/stripe", h.StripeWebhook)

	// Stripe reconciliation self-heals subscription state when webhooks
	// were missed.
	if config.Bool("BILLING_STRIPE_RECONCILE_ENABLED", false) {
		interval := time.Duration(config.Int("BILLING_STRIPE_RECONCILE_INTERVAL_SECONDS", 300)) * time.Second
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		rec := reconcile.NewStripeReconciler(pool, repo, subSvc, logger, reconcile.StripeReconcilerConfig{
			StripeSecretKey: config.String("STRIPE_SECRET_KEY", ""),
			Interval:        interval,
			BatchSize:       config.Int("BILLING_STRIPE_RECONCILE_BATCH_SIZE", 50),
			AdvisoryLockKey: int64(config.Int("BILLING_STRIPE_RECONCILE_LOCK_KEY", 4242001)),
		})
		go rec.Run(ctx, interval)
	}

	if err := startGrpcServer(ctx, logger, pool); err != nil {
		logger.Error("grpc server failed to start", "err", err)
	}

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	runtime.Serve(ctx, logger, &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(handler, "billing"),
		ReadHeaderTimeout: 5 * time.Second,
	})
}
