package storage

import (
	"context"
	"encoding/json"

	"github.com/digos-health/himsog/libs/db"
)

// Delivery outcomes recorded against a notification row.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Notification is the delivery record kept for every reminder attempt,
// successful or not.
type Notification struct {
	AppointmentID string
	ProviderID    string
	Channel       string
	Recipient     string
	Payload       map[string]any
	Status        string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO notifications (appointment_id, provider_id, channel, recipient, payload, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, n.AppointmentID, n.ProviderID, n.Channel, n.Recipient, payload, n.Status)
	return err
}
