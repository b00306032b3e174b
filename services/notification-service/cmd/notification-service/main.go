package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/digos-health/himsog/libs/config"
	"github.com/digos-health/himsog/libs/db"
	"github.com/digos-health/himsog/libs/events"
	"github.com/digos-health/himsog/libs/httpx"
	"github.com/digos-health/himsog/libs/kafkax"
	otelx "github.com/digos-health/himsog/libs/otel"
	"github.com/digos-health/himsog/libs/runtime"
	"github.com/digos-health/himsog/services/notification-service/internal/email"
	"github.com/digos-health/himsog/services/notification-service/internal/handlers"
	"github.com/digos-health/himsog/services/notification-service/internal/sms"
	"github.com/digos-health/himsog/services/notification-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
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

	d := &dispatcher{
		pool:   pool,
		repo:   storage.NewRepository(pool),
		outbox: outboxRepo,
		email: email.NewSMTPSender(
			config.String("SMTP_HOST", "mailpit"),
			config.String("SMTP_PORT", "1025"),
			config.String("SMTP_FROM", "no-reply@himsog.local"),
		),
		sms:        buildSMSSender(),
		logger:     logger,
		failSuffix: config.String("NOTIFICATION_FAIL_SUFFIX", ""),
	}

	eventConsumer := events.NewConsumer(logger, events.NewInbox(pool), events.ConsumerConfig{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
		Topic:   config.String("KAFKA_CONSUME_TOPIC", "scheduler.reminder.due.v1"),
	}, d.handle)
	go eventConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	messageHandler := handlers.NewMessageHandler(storage.NewMessageRepository(pool))
	mux.HandleFunc("/api/v1/messages/threads", messageHandler.Threads)
	mux.HandleFunc("/api/v1/messages", messageHandler.Messages)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	runtime.Serve(ctx, logger, &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(handler, "notification"),
		ReadHeaderTimeout: 5 * time.Second,
	})
}

func buildSMSSender() sms.Sender {
	if strings.ToLower(config.String("SMS_PROVIDER", "noop")) == "noop" {
		return sms.NewNoopSender()
	}
	return sms.NewWebhookSender(
		config.String("SMS_WEBHOOK_URL", ""),
		config.String("SMS_WEBHOOK_TOKEN", ""),
	)
}
