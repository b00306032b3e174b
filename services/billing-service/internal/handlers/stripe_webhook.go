package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/digos-health/himsog/services/billing-service/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// StripeWebhook receives Stripe events. The endpoint carries no JWT;
// the signed Stripe-Signature header is the authentication.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.stripeWebhookSecret == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}
	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.stripeWebhookSecret, h.stripeWebhookTolerance)
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	occurredAt := time.Unix(evt.Created, 0).UTC()
	evtType := string(evt.Type)
	h.logger.Info("billing provider event received",
		"gateway", "stripe",
		"provider_event_id", evt.ID,
		"event_type", evtType,
		"occurred_at", occurredAt.Format(time.RFC3339),
	)

	tx, err := h.repo.Begin(r.Context())
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(r.Context()) }()

	dup, err := h.insertGatewayEvent(r.Context(), tx, storage.GatewayEvent{
		Gateway:        "stripe",
		GatewayEventID: evt.ID,
		EventType:      evtType,
		Payload:        body,
	})
	if err != nil {
		http.Error(w, "failed to record provider event", http.StatusInternalServerError)
		return
	}
	if dup {
		h.logger.Info("billing gateway event duplicate ignored", "gateway", "stripe", "gateway_event_id", evt.ID, "event_type", evtType)
		_ = tx.Commit(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
		return
	}

	if err := h.recordAudit(r.Context(), tx, r, "billing.gateway.stripe.webhook", "provider", "", map[string]any{
		"gateway":           "stripe",
		"provider_event_id": evt.ID,
		"event_type":        evtType,
		"occurred_at":       occurredAt.Format(time.RFC3339),
	}); err != nil {
		http.Error(w, "failed to record audit event", http.StatusInternalServerError)
		return
	}

	if err := h.applyStripeEvent(r.Context(), tx, evtType, evt.Data.Raw, occurredAt); err != nil {
		http.Error(w, "failed to apply event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(r.Context()); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// applyStripeEvent maps a Stripe event onto local subscription state.
// Malformed or incomplete payloads are logged and skipped; the event
// stays recorded so Stripe does not retry it forever.
func (h *Handler) applyStripeEvent(ctx context.Context, tx pgx.Tx, evtType string, raw json.RawMessage, occurredAt time.Time) error {
	switch evtType {
	case "checkout.session.completed":
		session, ok := h.decodeCheckoutSession(raw)
		if !ok {
			return nil
		}
		providerID, tier, ok := sessionMetadata(session.Metadata)
		if !ok {
			h.logger.Warn("stripe: missing metadata on checkout session (provider_id/tier)")
			return nil
		}
		customerID := stripeCustomerID(session.Customer)
		subscriptionID := ""
		if session.Subscription != nil {
			subscriptionID = session.Subscription.ID
		}
		_ = h.repo.MarkCheckoutSessionCompleted(ctx, tx, session.ID, occurredAt, customerID, subscriptionID)
		return h.subSvc.ApplyActivated(ctx, tx, providerID, tier, occurredAt, "stripe", customerID, subscriptionID, nil, nil)

	case "checkout.session.expired":
		session, ok := h.decodeCheckoutSession(raw)
		if !ok {
			return nil
		}
		_ = h.repo.MarkCheckoutSessionExpired(ctx, tx, session.ID, occurredAt)
		return nil

	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			h.logger.Error("stripe: invalid subscription payload", "err", err)
			return nil
		}
		// Only active and trialing count as entitled.
		if sub.Status != stripe.SubscriptionStatusActive && sub.Status != stripe.SubscriptionStatusTrialing {
			return nil
		}
		providerID, tier, ok := sessionMetadata(sub.Metadata)
		if !ok {
			h.logger.Warn("stripe: missing metadata on subscription (provider_id/tier)")
			return nil
		}
		cps, cpe := periodBounds(&sub)
		return h.subSvc.ApplyActivated(ctx, tx, providerID, tier, occurredAt, "stripe", stripeCustomerID(sub.Customer), sub.ID, cps, cpe)

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			h.logger.Error("stripe: invalid subscription payload", "err", err)
			return nil
		}
		providerID := strings.TrimSpace(sub.Metadata["provider_id"])
		if providerID == "" {
			h.logger.Warn("stripe: missing metadata on subscription (provider_id)")
			return nil
		}
		cps, cpe := periodBounds(&sub)
		return h.subSvc.ApplyCanceled(ctx, tx, providerID, occurredAt, "stripe", stripeCustomerID(sub.Customer), sub.ID, cps, cpe)
	}
	return nil
}

func (h *Handler) decodeCheckoutSession(raw json.RawMessage) (*stripe.CheckoutSession, bool) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		h.logger.Error("stripe: invalid checkout session payload", "err", err)
		return nil, false
	}
	return &session, true
}

func sessionMetadata(meta map[string]string) (providerID, tier string, ok bool) {
	providerID = strings.TrimSpace(meta["provider_id"])
	tier = strings.TrimSpace(strings.ToLower(meta["tier"]))
	return providerID, tier, providerID != "" && tier != ""
}

func stripeCustomerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func periodBounds(sub *stripe.Subscription) (start, end *time.Time) {
	if sub.CurrentPeriodStart > 0 {
		t := time.Unix(sub.CurrentPeriodStart, 0).UTC()
		start = &t
	}
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		end = &t
	}
	return start, end
}
