package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/digos-health/himsog/libs/db"
	"github.com/digos-health/himsog/libs/kafkax"
	"github.com/digos-health/himsog/services/analytics-service/internal/metrics"
	"github.com/segmentio/kafka-go"
)

// ingestor materializes platform events into the analytics tables.
// Malformed events are logged and dropped; database errors propagate
// so the consumer retries.
type ingestor struct {
	pool    *db.Pool
	metrics *metrics.Repository
	logger  *slog.Logger
}

// notificationOutcome handles notification.sent.v1 and
// notification.failed.v1, which share a shape apart from the
// timestamp field.
func (in *ingestor) notificationOutcome(status string) func(context.Context, kafka.Message) error {
	return func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			AppointmentID string `json:"appointment_id"`
			ProviderID    string `json:"provider_id"`
			Channel       string `json:"channel"`
			ErrorReason   string `json:"error_reason"`
			SentAt        string `json:"sent_at"`
			FailedAt      string `json:"failed_at"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			in.logger.Error("invalid event payload", "err", err)
			return nil
		}
		occurredAt := payload.SentAt
		if status == "failed" {
			occurredAt = payload.FailedAt
			if payload.ErrorReason == "" {
				in.logger.Error("missing failed fields")
				return nil
			}
		}
		if payload.AppointmentID == "" || payload.Channel == "" || occurredAt == "" {
			in.logger.Error("missing event fields")
			return nil
		}
		if _, err := time.Parse(time.RFC3339, occurredAt); err != nil {
			in.logger.Error("invalid event timestamp", "err", err)
			return nil
		}

		_, err := in.pool.Exec(ctx, `
			INSERT INTO notification_metrics (appointment_id, provider_id, channel, sent_at, status)
			VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5)
		`, payload.AppointmentID, payload.ProviderID, payload.Channel, occurredAt, status)
		if err != nil {
			in.logger.Error("failed to write metrics", "err", err)
			return err
		}

		if payload.ProviderID != "" {
			sentInc, failedInc := 1, 0
			if status == "failed" {
				sentInc, failedInc = 0, 1
			}
			if err := in.bumpNotificationDaily(ctx, payload.ProviderID, payload.Channel, occurredAt, sentInc, failedInc); err != nil {
				in.logger.Error("failed to update daily notification metrics", "err", err)
				return err
			}
		}

		in.logger.Info("notification metric recorded", "appointment_id", payload.AppointmentID, "channel", payload.Channel, "status", status)
		return nil
	}
}

func (in *ingestor) bumpNotificationDaily(ctx context.Context, providerID, channel, ts string, sentInc, failedInc int) error {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return nil
	}
	_, err = in.pool.Exec(ctx, `
		INSERT INTO daily_notification_metrics (provider_id, day, channel, sent_count, failed_count)
		VALUES ($1, $2::date, $3, $4, $5)
		ON CONFLICT (provider_id, day, channel)
		DO UPDATE SET sent_count = daily_notification_metrics.sent_count + EXCLUDED.sent_count,
		              failed_count = daily_notification_metrics.failed_count + EXCLUDED.failed_count,
		              updated_at = now()
	`, providerID, t.UTC(), channel, sentInc, failedInc)
	return err
}

// schedulerDLQ records reminders that exhausted their retries.
func (in *ingestor) schedulerDLQ(ctx context.Context, msg kafka.Message) error {
	var payload struct {
		AppointmentID string `json:"appointment_id"`
		ProviderID    string `json:"provider_id"`
		Channel       string `json:"channel"`
		Recipient     string `json:"recipient"`
		RemindAt      string `json:"remind_at"`
		ErrorReason   string `json:"error_reason"`
		FailedAt      string `json:"failed_at"`
	}
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		in.logger.Error("invalid dlq payload", "err", err)
		return nil
	}
	if payload.AppointmentID == "" || payload.ProviderID == "" || payload.Channel == "" || payload.Recipient == "" || payload.RemindAt == "" || payload.ErrorReason == "" || payload.FailedAt == "" {
		in.logger.Error("missing dlq fields")
		return nil
	}
	if _, err := time.Parse(time.RFC3339, payload.FailedAt); err != nil {
		in.logger.Error("invalid failed_at", "err", err)
		return nil
	}
	remindAt, err := time.Parse(time.RFC3339, payload.RemindAt)
	if err != nil {
		in.logger.Error("invalid remind_at", "err", err)
		return nil
	}

	_, err = in.pool.Exec(ctx, `
		INSERT INTO scheduler_dlq_events (appointment_id, provider_id, channel, recipient, remind_at, error_reason, failed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, payload.AppointmentID, payload.ProviderID, payload.Channel, payload.Recipient, remindAt, payload.ErrorReason, payload.FailedAt)
	if err != nil {
		in.logger.Error("failed to write dlq event", "err", err)
		return err
	}

	in.logger.Warn("scheduler dlq recorded", "appointment_id", payload.AppointmentID, "channel", payload.Channel)
	return nil
}

// authAudit mirrors auth.audit.v1 into the security audit table.
func (in *ingestor) authAudit(ctx context.Context, msg kafka.Message) error {
	var payload struct {
		EventType string          `json:"event_type"`
		ActorID   string          `json:"actor_id"`
		Metadata  json.RawMessage `json:"metadata"`
		CreatedAt string          `json:"created_at"`
	}
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		in.logger.Error("invalid auth audit payload", "err", err)
		return nil
	}
	if payload.EventType == "" || payload.CreatedAt == "" {
		in.logger.Error("missing auth audit fields")
		return nil
	}
	if _, err := time.Parse(time.RFC3339, payload.CreatedAt); err != nil {
		in.logger.Error("invalid auth audit created_at", "err", err)
		return nil
	}

	_, err := in.pool.Exec(ctx, `
		INSERT INTO security_audit_events (event_type, actor_id, metadata, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4)
	`, payload.EventType, payload.ActorID, payload.Metadata, payload.CreatedAt)
	if err != nil {
		in.logger.Error("failed to write security audit event", "err", err)
		return err
	}

	in.logger.Info("security audit recorded", "event_type", payload.EventType)
	return nil
}

// bookingEvent handles booked and cancelled appointment events,
// deduping on event id before bumping the daily counters.
func (in *ingestor) bookingEvent(kind string) func(context.Context, kafka.Message) error {
	return func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			AppointmentID string `json:"appointment_id"`
			ProviderID    string `json:"provider_id"`
			StartTime     string `json:"start_time"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			in.logger.Error("invalid booking payload", "err", err)
			return nil
		}
		if payload.AppointmentID == "" || payload.ProviderID == "" || payload.StartTime == "" {
			in.logger.Error("missing booking fields")
			return nil
		}
		startTime, err := time.Parse(time.RFC3339, payload.StartTime)
		if err != nil {
			in.logger.Error("invalid start_time", "err", err)
			return nil
		}

		meta := kafkax.ExtractEventMeta(msg)

		tx, err := in.pool.Begin(ctx)
		if err != nil {
			in.logger.Error("db begin failed", "err", err)
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		tag, err := tx.Exec(ctx, `
			INSERT INTO booking_events (event_id, event_type, provider_id, appointment_id, occurred_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (event_id) DO NOTHING
		`, meta.EventID, meta.EventType, payload.ProviderID, payload.AppointmentID, startTime.UTC())
		if err != nil {
			in.logger.Error("failed to insert booking event", "err", err)
			return err
		}
		if tag.RowsAffected() == 0 {
			_ = tx.Commit(ctx)
			return nil
		}

		bookedInc, canceledInc := 0, 0
		switch kind {
		case "booked":
			bookedInc = 1
		case "canceled":
			canceledInc = 1
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO daily_appointment_metrics (provider_id, day, booked_count, canceled_count)
			VALUES ($1, $2::date, $3, $4)
			ON CONFLICT (provider_id, day)
			DO UPDATE SET booked_count = daily_appointment_metrics.booked_count + EXCLUDED.booked_count,
			              canceled_count = daily_appointment_metrics.canceled_count + EXCLUDED.canceled_count,
			              updated_at = now()
		`, payload.ProviderID, startTime.UTC(), bookedInc, canceledInc); err != nil {
			in.logger.Error("failed to update daily metrics", "err", err)
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			in.logger.Error("failed to commit booking metric", "err", err)
			return err
		}

		in.logger.Info("booking metric recorded", "appointment_id", payload.AppointmentID, "provider_id", payload.ProviderID, "event_type", meta.EventType)
		return nil
	}
}

// statusChange tracks appointment lifecycle transitions.
func (in *ingestor) statusChange(ctx context.Context, msg kafka.Message) error {
	var payload struct {
		AppointmentID string `json:"appointment_id"`
		ProviderID    string `json:"provider_id"`
		ToStatus      string `json:"to_status"`
		StartTime     string `json:"start_time"`
	}
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		in.logger.Error("invalid status payload", "err", err)
		return nil
	}
	if payload.AppointmentID == "" || payload.ProviderID == "" || payload.ToStatus == "" || payload.StartTime == "" {
		in.logger.Error("missing status fields")
		return nil
	}
	startTime, err := time.Parse(time.RFC3339, payload.StartTime)
	if err != nil {
		in.logger.Error("invalid start_time", "err", err)
		return nil
	}

	if err := in.metrics.BumpStatus(ctx, payload.ProviderID, startTime, payload.ToStatus); err != nil {
		in.logger.Error("failed to update status metrics", "err", err)
		return err
	}
	in.logger.Info("status metric recorded", "appointment_id", payload.AppointmentID, "to_status", payload.ToStatus)
	return nil
}
