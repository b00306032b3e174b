package handlers

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v79"
)

func newTestHandler() *Handler {
	return New(nil, nil, slog.Default(), Config{})
}

func TestCallerMayAccess(t *testing.T) {
	cases := []struct {
		role     string
		caller   string
		provider string
		want     bool
	}{
		{"admin", "prov-2", "prov-1", true},
		{"provider", "prov-1", "prov-1", true},
		{"provider", "prov-2", "prov-1", false},
		{"provider", "", "prov-1", true},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
		r.Header.Set("X-Role", tc.role)
		if tc.caller != "" {
			r.Header.Set("X-Provider-Id", tc.caller)
		}
		if got := callerMayAccess(r, tc.provider); got != tc.want {
			t.Fatalf("callerMayAccess(role=%s caller=%s provider=%s) = %v, want %v", tc.role, tc.caller, tc.provider, got, tc.want)
		}
	}
}

func TestGetSubscriptionValidation(t *testing.T) {
	h := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "http://example.com/api/v1/billing/subscription", nil)
	rw := httptest.NewRecorder()
	h.GetSubscription(rw, req)
	if rw.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rw.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "http://example.com/api/v1/billing/subscription", nil)
	rw = httptest.NewRecorder()
	h.GetSubscription(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing provider_id, got %d", rw.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "http://example.com/api/v1/billing/subscription?provider_id=prov-1", nil)
	req.Header.Set("X-Role", "provider")
	req.Header.Set("X-Provider-Id", "prov-2")
	rw = httptest.NewRecorder()
	h.GetSubscription(rw, req)
	if rw.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cross-provider access, got %d", rw.Code)
	}
}

func TestLocalWebhookValidation(t *testing.T) {
	h := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "http://example.com/api/v1/billing/webhooks/local", strings.NewReader("not json"))
	rw := httptest.NewRecorder()
	h.LocalWebhook(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid json, got %d", rw.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "http://example.com/api/v1/billing/webhooks/local",
		strings.NewReader(`{"event_id":"e1","type":"subscription.activated","provider_id":"prov-1","tier":"pro","occurred_at":"not-a-time"}`))
	rw = httptest.NewRecorder()
	h.LocalWebhook(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid occurred_at, got %d", rw.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "http://example.com/api/v1/billing/webhooks/local",
		strings.NewReader(`{"event_id":"e1","type":"subscription.activated","provider_id":"prov-1","tier":"pro","occurred_at":"2026-02-02T09:00:00Z"}`))
	req.Header.Set("X-Role", "provider")
	req.Header.Set("X-Provider-Id", "prov-2")
	rw = httptest.NewRecorder()
	h.LocalWebhook(rw, req)
	if rw.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cross-provider webhook, got %d", rw.Code)
	}
}

func TestWithQueryParam(t *testing.T) {
	if got := withQueryParam("https://x.test/return", "state", "a b"); got != "https://x.test/return?state=a+b" {
		t.Fatalf("withQueryParam = %q", got)
	}
	if got := withQueryParam("https://x.test/return?y=1", "state", "tok"); got != "https://x.test/return?y=1&state=tok" {
		t.Fatalf("withQueryParam = %q", got)
	}
}

func TestSessionMetadata(t *testing.T) {
	providerID, tier, ok := sessionMetadata(map[string]string{"provider_id": " prov-1 ", "tier": "PRO"})
	if !ok || providerID != "prov-1" || tier != "pro" {
		t.Fatalf("sessionMetadata = %q %q %v", providerID, tier, ok)
	}
	if _, _, ok := sessionMetadata(map[string]string{"provider_id": "prov-1"}); ok {
		t.Fatal("expected missing tier to fail")
	}
}

func TestPeriodBounds(t *testing.T) {
	sub := &stripe.Subscription{CurrentPeriodStart: 1767225600, CurrentPeriodEnd: 0}
	start, end := periodBounds(sub)
	if start == nil || !start.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("start = %v", start)
	}
	if end != nil {
		t.Fatalf("end = %v, want nil", end)
	}
}
