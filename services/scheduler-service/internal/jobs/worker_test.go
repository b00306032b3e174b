package jobs

import (
	"encoding/json"
	"testing"
	"time"
)

func TestReminderPayloadShape(t *testing.T) {
	job := Job{
		AppointmentID: "appt-1",
		ProviderID:    "prov-1",
		Channel:       "sms",
		Recipient:     "+639171234567",
		RemindAt:      time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC),
		TemplateData:  map[string]any{"patient_name": "Ana"},
	}

	raw, err := json.Marshal(payloadFor(job))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["appointment_id"] != "appt-1" || got["provider_id"] != "prov-1" {
		t.Fatalf("ids mismatch: %v", got)
	}
	if got["remind_at"] != "2026-02-02T09:00:00Z" {
		t.Fatalf("remind_at = %v", got["remind_at"])
	}
	if _, ok := got["error_reason"]; ok {
		t.Fatal("error_reason should be omitted for a due reminder")
	}

	dlq := payloadFor(job)
	dlq.ErrorReason = "max attempts reached"
	dlq.FailedAt = "2026-02-02T09:05:00Z"
	raw, err = json.Marshal(dlq)
	if err != nil {
		t.Fatalf("marshal dlq: %v", err)
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal dlq: %v", err)
	}
	if got["error_reason"] != "max attempts reached" {
		t.Fatalf("error_reason = %v", got["error_reason"])
	}
}
