package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebhookSender_PostsMessage(t *testing.T) {
	var got webhookPayload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, "tok-1")
	if err := s.Send(context.Background(), "+639171234567", "your appointment is tomorrow"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.To != "+639171234567" {
		t.Fatalf("to = %q", got.To)
	}
	if got.Body != "your appointment is tomorrow" {
		t.Fatalf("body = %q", got.Body)
	}
	if auth != "Bearer tok-1" {
		t.Fatalf("authorization = %q", auth)
	}
}

func TestWebhookSender_GatewayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, "")
	if err := s.Send(context.Background(), "+639171234567", "hi"); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestWebhookSender_MissingEndpoint(t *testing.T) {
	s := NewWebhookSender("", "")
	if err := s.Send(context.Background(), "+639171234567", "hi"); err == nil {
		t.Fatal("expected error when endpoint is unset")
	}
}
