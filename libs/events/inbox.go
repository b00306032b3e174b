package events

import (
	"context"
	"errors"

	"github.com/digos-health/himsog/libs/db"
	"github.com/jackc/pgx/v5/pgconn"
)

// Inbox records which events a service has already processed. The unique
// event_id column turns at-least-once delivery into effectively-once
// handling.
type Inbox struct {
	pool *db.Pool
}

func NewInbox(pool *db.Pool) *Inbox {
	return &Inbox{pool: pool}
}

// FirstDelivery reports whether this is the first time the event has been
// seen. A duplicate insert is not an error.
func (i *Inbox) FirstDelivery(ctx context.Context, eventID, eventType string) (bool, error) {
	_, err := i.pool.Exec(ctx,
		`INSERT INTO inbox_events (event_id, event_type) VALUES ($1, $2)`,
		eventID, eventType)
	if err == nil {
		return true, nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return false, nil
	}
	return false, err
}
