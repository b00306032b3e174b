// Package events carries domain events between services: producers stage
// events in a transactional outbox, a relay drains the outbox to Kafka, and
// consumers deduplicate deliveries through an inbox table.
package events

import (
	"context"
	"time"

	"github.com/digos-health/himsog/libs/db"
	otelx "github.com/digos-health/himsog/libs/otel"
	"github.com/jackc/pgx/v5"
)

// Event is the envelope staged in the outbox table. The Kafka topic name
// equals EventType (one topic per event type).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Outbox stages events inside the caller's transaction so that the event is
// written if and only if the state change commits.
type Outbox struct {
	pool *db.Pool
}

func NewOutbox(pool *db.Pool) *Outbox {
	return &Outbox{pool: pool}
}

// Stage records the event and the current trace context for later delivery.
func (o *Outbox) Stage(ctx context.Context, tx pgx.Tx, evt Event) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := tx.Exec(ctx,
		`INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, traceparent, tracestate)
	return err
}

type stagedEvent struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
	CreatedAt     time.Time
}

// pending locks up to limit undelivered rows so concurrent relays never
// double-send.
func (o *Outbox) pending(ctx context.Context, tx pgx.Tx, limit int) ([]stagedEvent, error) {
	rows, err := tx.Query(ctx,
		`SELECT id, event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at
		 FROM outbox_events
		 WHERE published_at IS NULL
		 ORDER BY id
		 LIMIT $1
		 FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[stagedEvent])
}

func (o *Outbox) markDelivered(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx,
		`UPDATE outbox_events SET published_at = now() WHERE id = ANY($1)`, ids)
	return err
}
