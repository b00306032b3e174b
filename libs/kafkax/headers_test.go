package kafkax

import (
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestExtractEventMetaFromHeaders(t *testing.T) {
	msg := kafka.Message{
		Topic: "booking.appointment.booked.v1",
		Key:   []byte("key-1"),
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte("evt-42")},
			{Key: "event_type", Value: []byte("appointment.booked")},
		},
	}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "evt-42" {
		t.Fatalf("event id = %q, want evt-42", meta.EventID)
	}
	if meta.EventType != "appointment.booked" {
		t.Fatalf("event type = %q, want appointment.booked", meta.EventType)
	}
}

func TestExtractEventMetaFallsBackToKeyAndTopic(t *testing.T) {
	msg := kafka.Message{Topic: "booking.appointment.booked.v1", Key: []byte("key-1")}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "key-1" {
		t.Fatalf("event id = %q, want key-1", meta.EventID)
	}
	if meta.EventType != "booking.appointment.booked.v1" {
		t.Fatalf("event type = %q, want topic fallback", meta.EventType)
	}
}

func TestHeaderCarrierSetReplaces(t *testing.T) {
	c := &headerCarrier{headers: []kafka.Header{{Key: "traceparent", Value: []byte("old")}}}
	c.Set("traceparent", "new")
	if len(c.headers) != 1 {
		t.Fatalf("expected 1 header, got %d", len(c.headers))
	}
	if got := c.Get("traceparent"); got != "new" {
		t.Fatalf("traceparent = %q, want new", got)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092 ")
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers: %v", got)
	}
}
