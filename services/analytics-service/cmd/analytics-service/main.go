package main

import (
	"context"
	"net/http"
	"time"

	"github.com/digos-health/himsog/libs/config"
	"github.com/digos-health/himsog/libs/db"
	"github.com/digos-health/himsog/libs/events"
	"github.com/digos-health/himsog/libs/httpx"
	"github.com/digos-health/himsog/libs/kafkax"
	otelx "github.com/digos-health/himsog/libs/otel"
	"github.com/digos-health/himsog/libs/runtime"
	"github.com/digos-health/himsog/services/analytics-service/internal/metrics"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "analytics-service")
	port, err := config.Port("PORT", "8086")
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
	groupID := config.String("KAFKA_GROUP_ID", "analytics-service")
	inboxRepo := events.NewInbox(pool)
	metricsRepo := metrics.NewRepository(pool)
	in := &ingestor{pool: pool, metrics: metricsRepo, logger: logger}

	consume := func(topic string, handle func(context.Context, kafka.Message) error) {
		c := events.NewConsumer(logger, inboxRepo, events.ConsumerConfig{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
		}, handle)
		go c.Run(ctx)
	}

	consume("notification.sent.v1", in.notificationOutcome("sent"))
	consume("notification.failed.v1", in.notificationOutcome("failed"))
	consume("scheduler.reminder.dlq.v1", in.schedulerDLQ)
	consume("auth.audit.v1", in.authAudit)
	consume("booking.appointment.booked.v1", in.bookingEvent("booked"))
	consume("booking.appointment.cancelled.v1", in.bookingEvent("canceled"))
	consume("booking.appointment.status_changed.v1", in.statusChange)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	metricsHandler := metrics.NewHandler(metricsRepo)
	mux.HandleFunc("/api/v1/admin/metrics/appointments", metricsHandler.Appointments)
	mux.HandleFunc("/api/v1/admin/metrics/notifications", metricsHandler.Notifications)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	runtime.Serve(ctx, logger, &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(handler, "analytics"),
		ReadHeaderTimeout: 5 * time.Second,
	})
}
