package main

import (
	"context"
	"encoding/json"
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
	"github.com/digos-health/himsog/services/booking-service/internal/handlers"
	"github.com/digos-health/himsog/services/booking-service/internal/schedule"
	"github.com/digos-health/himsog/services/booking-service/internal/storage"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func reminderOffsets(mins []int) []time.Duration {
	var offsets []time.Duration
	for _, m := range mins {
		if m > 0 {
			offsets = append(offsets, time.Duration(m)*time.Minute)
		}
	}
	if len(offsets) == 0 {
		offsets = []time.Duration{24 * time.Hour}
	}
	return offsets
}

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
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

	repo := storage.NewBookingRepository(pool)
	outboxRepo := events.NewOutbox(pool)
	offsets := reminderOffsets(config.Ints("REMINDER_OFFSETS_MINUTES", []int{1440, 60}))

	var schedules schedule.Source
	schedules = schedule.NewPGSource(pool, config.String("TIMEZONE", "Asia/Manila"), offsets)
	if grpcSrc, err := schedule.NewGRPCSource(config.String("PROVIDER_GRPC_ADDR", "")); err != nil {
		logger.Error("schedule grpc source init failed; using postgres source", "err", err)
	} else if grpcSrc != nil {
		schedules = grpcSrc
	}

	outboxRelay := events.NewRelay(pool, outboxRepo, logger, events.RelayConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxRelay.Run(ctx)

	inboxRepo := events.NewInbox(pool)
	startConsumer := func(topic string) {
		if strings.TrimSpace(topic) == "" {
			return
		}
		consumerCfg := events.ConsumerConfig{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "booking-service"),
			Topic:   topic,
		}
		eventConsumer := events.NewConsumer(logger, inboxRepo, consumerCfg, func(ctx context.Context, msg kafka.Message) error {
			// Both activation and cancellation events carry the same limit
			// fields; booking enforces using this local cache.
			var payload struct {
				ProviderID             string `json:"provider_id"`
				Tier                   string `json:"tier"`
				MaxMonthlyAppointments int    `json:"max_monthly_appointments"`
			}
			if err := json.Unmarshal(msg.Value, &payload); err != nil {
				logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
				return nil
			}
			if payload.ProviderID == "" || payload.Tier == "" || payload.MaxMonthlyAppointments <= 0 {
				logger.Error("missing required event fields", "topic", msg.Topic)
				return nil
			}

			tx, err := pool.Begin(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = tx.Rollback(ctx) }()

			if err := repo.UpsertProviderEntitlements(ctx, tx, storage.ProviderEntitlements{
				ProviderID:             payload.ProviderID,
				Tier:                   payload.Tier,
				MaxMonthlyAppointments: payload.MaxMonthlyAppointments,
			}); err != nil {
				return err
			}
			return tx.Commit(ctx)
		})
		go eventConsumer.Run(ctx)
	}

	startConsumer(config.String("KAFKA_CONSUME_TOPIC", "billing.subscription.activated.v1"))
	startConsumer(config.String("KAFKA_CONSUME_TOPIC_2", "billing.subscription.canceled.v1"))
	bookingHandler := handlers.NewBookingHandler(repo, outboxRepo, logger, schedules, offsets)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	setupEntitlementsRoutes(ctx, mux, logger)
	mux.HandleFunc("/api/v1/public/slots", bookingHandler.Slots)
	mux.HandleFunc("/api/v1/public/book", bookingHandler.Create)
	mux.HandleFunc("/api/v1/appointments", bookingHandler.List)
	mux.HandleFunc("/api/v1/appointments/cancel", bookingHandler.Cancel)
	mux.HandleFunc("/api/v1/appointments/status", bookingHandler.UpdateStatus)
	mux.HandleFunc("/api/v1/appointments/status/bulk", bookingHandler.BulkUpdateStatus)
	mux.HandleFunc("/api/v1/appointments/reschedule", bookingHandler.Reschedule)
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	runtime.Serve(ctx, logger, &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(httpHandler, "booking"),
		ReadHeaderTimeout: 5 * time.Second,
	})
}
