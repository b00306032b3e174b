package metrics

import (
	"context"
	"time"

	"github.com/digos-health/himsog/libs/db"
)

type AppointmentDay struct {
	ProviderID string    `json:"provider_id"`
	Day        time.Time `json:"day"`
	Booked     int       `json:"booked_count"`
	Canceled   int       `json:"canceled_count"`
	Completed  int       `json:"completed_count"`
	NoShow     int       `json:"no_show_count"`
}

type NotificationDay struct {
	ProviderID string    `json:"provider_id"`
	Day        time.Time `json:"day"`
	Channel    string    `json:"channel"`
	Sent       int       `json:"sent_count"`
	Failed     int       `json:"failed_count"`
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// BumpStatus folds an appointment status transition into the daily aggregate.
// Cancellations arriving through the status-change topic are counted here the
// same way as ones from the dedicated cancellation topic.
func (r *Repository) BumpStatus(ctx context.Context, providerID string, day time.Time, toStatus string) error {
	canceled, completed, noShow := 0, 0, 0
	switch toStatus {
	case "cancelled":
		canceled = 1
	case "completed":
		completed = 1
	case "no_show":
		noShow = 1
	default:
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO daily_appointment_metrics (provider_id, day, canceled_count, completed_count, no_show_count)
		VALUES ($1, $2::date, $3, $4, $5)
		ON CONFLICT (provider_id, day)
		DO UPDATE SET canceled_count = daily_appointment_metrics.canceled_count + EXCLUDED.canceled_count,
		              completed_count = daily_appointment_metrics.completed_count + EXCLUDED.completed_count,
		              no_show_count = daily_appointment_metrics.no_show_count + EXCLUDED.no_show_count,
		              updated_at = now()
	`, providerID, day.UTC(), canceled, completed, noShow)
	return err
}

func (r *Repository) ListAppointmentMetrics(ctx context.Context, providerID string, from, to time.Time) ([]AppointmentDay, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT provider_id, day, booked_count, canceled_count, completed_count, no_show_count
		FROM daily_appointment_metrics
		WHERE ($1 = '' OR provider_id = $1::uuid)
		  AND day >= $2::date AND day <= $3::date
		ORDER BY day, provider_id
	`, providerID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AppointmentDay
	for rows.Next() {
		var m AppointmentDay
		if err := rows.Scan(&m.ProviderID, &m.Day, &m.Booked, &m.Canceled, &m.Completed, &m.NoShow); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Repository) ListNotificationMetrics(ctx context.Context, providerID string, from, to time.Time) ([]NotificationDay, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT provider_id, day, channel, sent_count, failed_count
		FROM daily_notification_metrics
		WHERE ($1 = '' OR provider_id = $1::uuid)
		  AND day >= $2::date AND day <= $3::date
		ORDER BY day, provider_id, channel
	`, providerID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NotificationDay
	for rows.Next() {
		var m NotificationDay
		if err := rows.Scan(&m.ProviderID, &m.Day, &m.Channel, &m.Sent, &m.Failed); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
