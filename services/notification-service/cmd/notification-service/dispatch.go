package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/digos-health/himsog/libs/db"
	"github.com/digos-health/himsog/libs/events"
	"github.com/digos-health/himsog/services/notification-service/internal/email"
	"github.com/digos-health/himsog/services/notification-service/internal/sms"
	"github.com/digos-health/himsog/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

// reminderPayload is the body of scheduler.reminder.due.v1.
type reminderPayload struct {
	AppointmentID string         `json:"appointment_id"`
	ProviderID    string         `json:"provider_id"`
	Channel       string         `json:"channel"`
	Recipient     string         `json:"recipient"`
	RemindAt      string         `json:"remind_at"`
	TemplateData  map[string]any `json:"template_data"`
}

// startTime prefers the template's start_time over the reminder time.
func (p reminderPayload) startTime() string {
	if v, ok := p.TemplateData["start_time"].(string); ok && v != "" {
		return v
	}
	return p.RemindAt
}

// dispatcher delivers due reminders over the configured channels and
// records the outcome.
type dispatcher struct {
	pool       *db.Pool
	repo       *storage.Repository
	outbox     *events.Outbox
	email      email.Sender
	sms        sms.Sender
	logger     *slog.Logger
	failSuffix string
}

// handle processes one due reminder. Malformed payloads are dropped so
// the topic keeps moving; delivery and persistence failures are
// retried by the consumer.
func (d *dispatcher) handle(ctx context.Context, msg kafka.Message) error {
	var payload reminderPayload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		d.logger.Error("invalid reminder payload", "err", err)
		return nil
	}
	if payload.AppointmentID == "" || payload.ProviderID == "" || payload.Channel == "" || payload.Recipient == "" || payload.RemindAt == "" {
		d.logger.Error("missing reminder fields")
		return nil
	}
	if _, err := time.Parse(time.RFC3339, payload.RemindAt); err != nil {
		d.logger.Error("invalid remind_at", "err", err)
		return nil
	}

	senderID, deliverErr := d.deliver(ctx, payload)

	status := storage.StatusSent
	if deliverErr != nil {
		status = storage.StatusFailed
	}
	if err := d.repo.Insert(ctx, storage.Notification{
		AppointmentID: payload.AppointmentID,
		ProviderID:    payload.ProviderID,
		Channel:       payload.Channel,
		Recipient:     payload.Recipient,
		Payload:       payload.TemplateData,
		Status:        status,
	}); err != nil {
		d.logger.Error("failed to persist notification", "err", err)
		return err
	}

	if err := d.stageOutcome(ctx, payload, senderID, deliverErr); err != nil {
		d.logger.Error("failed to enqueue notification outcome", "err", err)
		return err
	}

	d.logger.Info("reminder processed", "appointment_id", payload.AppointmentID, "channel", payload.Channel, "status", status)
	return nil
}

// deliver sends the reminder and returns the sender id that handled
// it.
func (d *dispatcher) deliver(ctx context.Context, payload reminderPayload) (string, error) {
	if d.failSuffix != "" && strings.HasSuffix(payload.Recipient, d.failSuffix) {
		return "", fmt.Errorf("simulated failure")
	}

	switch strings.ToLower(payload.Channel) {
	case "email":
		body := fmt.Sprintf("This is a reminder for your appointment at %s.", payload.startTime())
		if name, ok := payload.TemplateData["patient_name"].(string); ok && name != "" {
			body = fmt.Sprintf("Hi %s, %s", name, body)
		}
		if err := d.email.Send(payload.Recipient, "Appointment reminder", body); err != nil {
			d.logger.Error("email send failed", "err", err, "recipient", payload.Recipient)
			return "", err
		}
		return "smtp", nil
	case "sms":
		body := fmt.Sprintf("Reminder: you have an appointment at %s.", payload.startTime())
		if err := d.sms.Send(ctx, payload.Recipient, body); err != nil {
			d.logger.Error("sms send failed", "err", err, "recipient", payload.Recipient)
			return "", err
		}
		return d.sms.SenderID(), nil
	default:
		d.logger.Error("unsupported channel", "channel", payload.Channel)
		return "", fmt.Errorf("unsupported channel: %s", payload.Channel)
	}
}

// stageOutcome stages notification.sent.v1 or notification.failed.v1
// on the outbox depending on how delivery went.
func (d *dispatcher) stageOutcome(ctx context.Context, payload reminderPayload, senderID string, deliverErr error) error {
	now := time.Now().UTC().Format(time.RFC3339)
	eventType := "notification.sent.v1"
	body := map[string]any{
		"appointment_id": payload.AppointmentID,
		"provider_id":    payload.ProviderID,
		"channel":        payload.Channel,
	}
	if deliverErr != nil {
		eventType = "notification.failed.v1"
		body["error_reason"] = deliverErr.Error()
		body["failed_at"] = now
	} else {
		if strings.TrimSpace(senderID) == "" {
			senderID = "unknown"
		}
		body["sender_id"] = senderID
		body["sent_at"] = now
	}

	eventPayload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := d.outbox.Stage(ctx, tx, events.Event{
		AggregateType: "notification",
		AggregateID:   payload.AppointmentID,
		EventType:     eventType,
		Payload:       eventPayload,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
