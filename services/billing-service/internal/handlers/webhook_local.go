package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/digos-health/himsog/services/billing-service/internal/storage"
)

// localWebhookRequest is the payload of the development gateway. It
// mirrors the subset of lifecycle transitions Stripe would deliver.
type localWebhookRequest struct {
	EventID    string `json:"event_id"`
	Type       string `json:"type"` // subscription.activated | subscription.canceled
	ProviderID string `json:"provider_id"`
	Tier       string `json:"tier"`
	OccurredAt string `json:"occurred_at"`
}

func (req *localWebhookRequest) normalize() {
	req.EventID = strings.TrimSpace(req.EventID)
	req.Type = strings.TrimSpace(req.Type)
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.Tier = strings.TrimSpace(strings.ToLower(req.Tier))
	req.OccurredAt = strings.TrimSpace(req.OccurredAt)
}

func (h *Handler) LocalWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req localWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.normalize()
	if req.EventID == "" || req.Type == "" || req.ProviderID == "" || req.OccurredAt == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}
	occurredAt, err := time.Parse(time.RFC3339, req.OccurredAt)
	if err != nil {
		http.Error(w, "invalid occurred_at", http.StatusBadRequest)
		return
	}
	if !callerMayAccess(r, req.ProviderID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	h.logger.Info("billing gateway event received",
		"gateway", "local",
		"gateway_event_id", req.EventID,
		"event_type", req.Type,
		"provider_id", req.ProviderID,
		"tier", req.Tier,
		"occurred_at", occurredAt.UTC().Format(time.RFC3339),
	)

	tx, err := h.repo.Begin(r.Context())
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(r.Context()) }()

	payloadRaw, _ := json.Marshal(req)
	dup, err := h.insertGatewayEvent(r.Context(), tx, storage.GatewayEvent{
		Gateway:        "local",
		GatewayEventID: req.EventID,
		EventType:      req.Type,
		Payload:        payloadRaw,
	})
	if err != nil {
		http.Error(w, "failed to record gateway event", http.StatusInternalServerError)
		return
	}
	if dup {
		h.logger.Info("billing gateway event duplicate ignored", "gateway", "local", "gateway_event_id", req.EventID, "event_type", req.Type)
		_ = tx.Commit(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
		return
	}

	if err := h.recordAudit(r.Context(), tx, r, "billing.gateway.local.webhook", "provider", req.ProviderID, map[string]any{
		"gateway":          "local",
		"gateway_event_id": req.EventID,
		"event_type":       req.Type,
		"tier":             req.Tier,
		"occurred_at":      occurredAt.UTC().Format(time.RFC3339),
	}); err != nil {
		http.Error(w, "failed to record audit event", http.StatusInternalServerError)
		return
	}

	switch req.Type {
	case "subscription.activated":
		if req.Tier == "" {
			http.Error(w, "tier is required for subscription.activated", http.StatusBadRequest)
			return
		}
		if err := h.subSvc.ApplyActivated(r.Context(), tx, req.ProviderID, req.Tier, occurredAt, "local", "", "", nil, nil); err != nil {
			http.Error(w, "failed to apply activation", http.StatusInternalServerError)
			return
		}
	case "subscription.canceled":
		if err := h.subSvc.ApplyCanceled(r.Context(), tx, req.ProviderID, occurredAt, "local", "", "", nil, nil); err != nil {
			http.Error(w, "failed to apply cancellation", http.StatusInternalServerError)
			return
		}
	default:
		http.Error(w, "unsupported type", http.StatusBadRequest)
		return
	}

	if err := tx.Commit(r.Context()); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
