// Command stripe-webhook-sim posts a signed synthetic Stripe event at a
// running gateway so the billing webhook path can be exercised without a
// Stripe account. Flags fall back to the matching environment variables.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/digos-health/himsog/libs/config"
	"github.com/stripe/stripe-go/v79/webhook"
)

const webhookPath = "/api/v1/billing/webhooks/stripe"

type simEvent struct {
	id         string
	kind       string
	created    time.Time
	providerID string
	tier       string
}

func main() {
	var (
		baseURL  = flag.String("base-url", config.String("BASE_URL", "http://localhost:8080"), "gateway base url")
		kind     = flag.String("type", config.String("STRIPE_EVENT_TYPE", "checkout.session.completed"), "stripe event type")
		provider = flag.String("provider-id", config.String("PROVIDER_ID", ""), "provider_id metadata")
		tier     = flag.String("tier", config.String("TIER", "starter"), "tier metadata")
		secret   = flag.String("secret", config.String("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("STRIPE_WEBHOOK_SECRET is required")
	}
	if strings.TrimSpace(*provider) == "" {
		fatal("PROVIDER_ID is required")
	}

	now := time.Now().UTC()
	evt := simEvent{
		id:         fmt.Sprintf("evt_test_%d", now.UnixNano()),
		kind:       *kind,
		created:    now,
		providerID: *provider,
		tier:       *tier,
	}
	payload, err := evt.marshal()
	if err != nil {
		fatal(err.Error())
	}

	status, err := post(*baseURL, payload, *secret, now)
	if err != nil {
		fatal(err.Error())
	}
	fmt.Printf("status=%d\n", status)
	if status >= 300 {
		os.Exit(1)
	}
}

func (e simEvent) marshal() ([]byte, error) {
	var object map[string]any
	switch e.kind {
	case "checkout.session.completed":
		object = map[string]any{
			"id":     "cs_test_123",
			"object": "checkout.session",
		}
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		object = map[string]any{
			"id":     "sub_test_123",
			"object": "subscription",
			"status": "active",
		}
	default:
		return nil, fmt.Errorf("unsupported event type: %s", e.kind)
	}
	// The webhook handler reads provider and tier from metadata only.
	object["metadata"] = map[string]any{
		"provider_id": e.providerID,
		"tier":        e.tier,
	}
	return json.Marshal(map[string]any{
		"id":          e.id,
		"object":      "event",
		"created":     e.created.Unix(),
		"type":        e.kind,
		"api_version": "2020-08-27",
		"data":        map[string]any{"object": object},
	})
}

func post(baseURL string, payload []byte, secret string, at time.Time) (int, error) {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: at,
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(baseURL, "/")+webhookPath, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
