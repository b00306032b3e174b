package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/digos-health/himsog/libs/events"
	"github.com/digos-health/himsog/services/billing-service/internal/entitlements"
	"github.com/digos-health/himsog/services/billing-service/internal/storage"
	"github.com/digos-health/himsog/services/billing-service/internal/subscriptions"
	"github.com/jackc/pgx/v5"
)

type Handler struct {
	repo                   *storage.Repository
	outboxRepo             *events.Outbox
	subSvc                 *subscriptions.Service
	logger                 *slog.Logger
	stripeWebhookSecret    string
	stripeWebhookTolerance time.Duration
	stripeSecretKey        string
	stripePriceStarter     string
	stripePricePro         string
	checkoutSuccessURL     string
	checkoutCancelURL      string
}

type Config struct {
	StripeWebhookSecret           string
	StripeWebhookToleranceSeconds int
	StripeSecretKey               string
	StripePriceStarter            string
	StripePricePro                string
	CheckoutSuccessURL            string
	CheckoutCancelURL             string
}

func New(repo *storage.Repository, outboxRepo *events.Outbox, logger *slog.Logger, cfg Config) *Handler {
	tolSeconds := cfg.StripeWebhookToleranceSeconds
	if tolSeconds <= 0 {
		tolSeconds = 300
	}
	return &Handler{
		repo:                   repo,
		outboxRepo:             outboxRepo,
		subSvc:                 subscriptions.New(repo, outboxRepo),
		logger:                 logger,
		stripeWebhookSecret:    strings.TrimSpace(cfg.StripeWebhookSecret),
		stripeWebhookTolerance: time.Duration(tolSeconds) * time.Second,
		stripeSecretKey:        strings.TrimSpace(cfg.StripeSecretKey),
		stripePriceStarter:     strings.TrimSpace(cfg.StripePriceStarter),
		stripePricePro:         strings.TrimSpace(cfg.StripePricePro),
		checkoutSuccessURL:     strings.TrimSpace(cfg.CheckoutSuccessURL),
		checkoutCancelURL:      strings.TrimSpace(cfg.CheckoutCancelURL),
	}
}

// callerMayAccess reports whether the request may act on providerID.
// Admins may act on any provider; a provider token is bound to its own
// provider id.
func callerMayAccess(r *http.Request, providerID string) bool {
	if r.Header.Get("X-Role") == "admin" {
		return true
	}
	caller := strings.TrimSpace(r.Header.Get("X-Provider-Id"))
	return caller == "" || caller == providerID
}

func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))
	if providerID == "" {
		providerID = strings.TrimSpace(r.Header.Get("X-Provider-Id"))
	}
	if providerID == "" {
		http.Error(w, "provider_id is required", http.StatusBadRequest)
		return
	}
	if !callerMayAccess(r, providerID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	sub, err := h.repo.GetSubscription(r.Context(), providerID)
	if errors.Is(err, pgx.ErrNoRows) {
		// Providers without a row are on the free tier.
		writeJSON(w, http.StatusOK, subscriptionBody(providerID, "free", "none", nil))
		return
	}
	if err != nil {
		http.Error(w, "failed to load subscription", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionBody(providerID, sub.Tier, sub.Status, &sub.UpdatedAt))
}

func subscriptionBody(providerID, tier, status string, updatedAt *time.Time) map[string]any {
	body := map[string]any{
		"provider_id":  providerID,
		"tier":         tier,
		"status":       status,
		"entitlements": entitlements.LimitsForTier(tier),
	}
	if updatedAt != nil {
		body["updated_at"] = updatedAt.UTC().Format(time.RFC3339)
	}
	return body
}

// insertGatewayEvent records an external gateway event for dedup.
// The bool result is true when this event id was already processed.
func (h *Handler) insertGatewayEvent(ctx context.Context, tx pgx.Tx, evt storage.GatewayEvent) (bool, error) {
	err := h.repo.InsertGatewayEvent(ctx, tx, evt)
	if errors.Is(err, storage.ErrDuplicateGatewayEvent) {
		return true, nil
	}
	return false, err
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) recordAudit(ctx context.Context, tx pgx.Tx, r *http.Request, eventType string, actorType string, providerID string, metadata map[string]any) error {
	if actorType == "" {
		actorType = strings.TrimSpace(r.Header.Get("X-Role"))
	}
	if actorType == "" {
		actorType = "system"
	}
	actorID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if actorID == "" {
		actorID = strings.TrimSpace(r.Header.Get("X-Provider-Id"))
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	if reqID := strings.TrimSpace(r.Header.Get("X-Request-Id")); reqID != "" {
		metadata["request_id"] = reqID
	}
	raw, _ := json.Marshal(metadata)
	return h.repo.InsertAuditEvent(ctx, tx, storage.AuditEvent{
		EventType:  eventType,
		ActorType:  actorType,
		ActorID:    actorID,
		ProviderID: providerID,
		Metadata:   raw,
	})
}
