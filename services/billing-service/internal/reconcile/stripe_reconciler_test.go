package reconcile

import (
	"testing"
	"time"
)

func TestNewStripeReconcilerDefaults(t *testing.T) {
	r := NewStripeReconciler(nil, nil, nil, nil, StripeReconcilerConfig{
		StripeSecretKey: "  sk_test_abc  ",
	})
	if r.stripeKey != "sk_test_abc" {
		t.Fatalf("stripeKey = %q", r.stripeKey)
	}
	if r.batchSize != 50 {
		t.Fatalf("batchSize = %d", r.batchSize)
	}
	if r.advisoryKey != defaultAdvisoryKey {
		t.Fatalf("advisoryKey = %d", r.advisoryKey)
	}
}

func TestUnixTime(t *testing.T) {
	if got := unixTime(0); got != nil {
		t.Fatalf("unixTime(0) = %v, want nil", got)
	}
	got := unixTime(1767225600)
	if got == nil {
		t.Fatal("unixTime returned nil for a valid timestamp")
	}
	if !got.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unixTime = %v", got)
	}
}
