package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/digos-health/himsog/libs/db"
	"github.com/digos-health/himsog/libs/kafkax"
	otelx "github.com/digos-health/himsog/libs/otel"
	"github.com/segmentio/kafka-go"
)

// Relay polls the outbox and delivers staged events to Kafka. Delivery and
// the published_at mark share a transaction, so a crash between the two
// re-sends rather than drops; consumers dedupe through their inbox.
type Relay struct {
	pool      *db.Pool
	outbox    *Outbox
	logger    *slog.Logger
	brokers   []string
	pollEvery time.Duration
	batchSize int
}

type RelayConfig struct {
	Brokers   string
	PollEvery time.Duration
	BatchSize int
}

func NewRelay(pool *db.Pool, outbox *Outbox, logger *slog.Logger, cfg RelayConfig) *Relay {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Relay{
		pool:      pool,
		outbox:    outbox,
		logger:    logger,
		brokers:   kafkax.SplitBrokers(cfg.Brokers),
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

func (rl *Relay) Run(ctx context.Context) {
	if len(rl.brokers) == 0 {
		rl.logger.Warn("outbox relay disabled (no kafka brokers configured)")
		return
	}

	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  rl.brokers,
		Balancer: &kafka.Hash{},
	})
	defer writer.Close()

	ticker := time.NewTicker(rl.pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rl.drain(ctx, writer); err != nil {
				rl.logger.Error("outbox relay failed", "err", err)
			}
		}
	}
}

func (rl *Relay) drain(ctx context.Context, writer *kafka.Writer) error {
	tx, err := rl.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	staged, err := rl.outbox.pending(ctx, tx, rl.batchSize)
	if err != nil {
		return err
	}
	if len(staged) == 0 {
		return tx.Commit(ctx)
	}

	ids := make([]int64, 0, len(staged))
	for _, evt := range staged {
		if err := writer.WriteMessages(ctx, rl.toMessage(ctx, evt)); err != nil {
			return err
		}
		ids = append(ids, evt.ID)
	}
	if err := rl.outbox.markDelivered(ctx, tx, ids); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// toMessage restores the producer's trace context (stored on the row) onto
// the Kafka headers so the consume span links back to the originating request.
func (rl *Relay) toMessage(ctx context.Context, evt stagedEvent) kafka.Message {
	msgCtx := otelx.ContextWithTraceContext(ctx, evt.Traceparent, evt.Tracestate)
	msg := kafka.Message{
		Topic: evt.EventType,
		Key:   []byte(evt.AggregateID),
		Value: evt.Payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(evt.EventID)},
			{Key: "event_type", Value: []byte(evt.EventType)},
		},
	}
	msg.Headers = kafkax.InjectTraceHeaders(msgCtx, msg.Headers)
	return msg
}
