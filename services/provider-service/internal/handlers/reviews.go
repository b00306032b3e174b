package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/digos-health/himsog/libs/events"
	"github.com/digos-health/himsog/services/provider-service/internal/storage"
	"github.com/jackc/pgx/v5"
)

func (h *Handler) CreateReview(w http.ResponseWriter, r *http.Request) {
	patientID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if patientID == "" {
		http.Error(w, "missing X-User-Id", http.StatusBadRequest)
		return
	}

	var req struct {
		ProviderID    string `json:"provider_id"`
		AppointmentID string `json:"appointment_id"`
		PatientName   string `json:"patient_name"`
		Rating        int    `json:"rating"`
		Comment       string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.ProviderID == "" {
		http.Error(w, "provider_id is required", http.StatusBadRequest)
		return
	}
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		http.Error(w, "rating must be between 1 and 5", http.StatusBadRequest)
		return
	}

	id, err := h.repo.CreateReview(r.Context(), storage.Review{
		ProviderID:    req.ProviderID,
		PatientID:     patientID,
		AppointmentID: req.AppointmentID,
		PatientName:   strings.TrimSpace(req.PatientName),
		Rating:        req.Rating,
		Comment:       strings.TrimSpace(req.Comment),
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateReview) {
			http.Error(w, "appointment already reviewed", http.StatusConflict)
			return
		}
		http.Error(w, "failed to create review", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *Handler) ListPublicReviews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))
	if providerID == "" {
		http.Error(w, "provider_id is required", http.StatusBadRequest)
		return
	}

	reviews, err := h.repo.ListReviews(r.Context(), providerID, 50)
	if err != nil {
		http.Error(w, "failed to list reviews", http.StatusInternalServerError)
		return
	}
	avg, count, err := h.repo.AverageRating(r.Context(), providerID)
	if err != nil {
		http.Error(w, "failed to load rating summary", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"average_rating": avg,
		"review_count":   count,
		"reviews":        reviews,
	})
}

func (h *Handler) AdminListProviders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	providers, err := h.repo.ListProviders(r.Context(), false, 200)
	if err != nil {
		http.Error(w, "failed to list providers", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, providers)
}

func (h *Handler) AdminSetVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProviderID string `json:"provider_id"`
		Status     string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.Status = strings.TrimSpace(req.Status)
	if req.ProviderID == "" {
		http.Error(w, "provider_id is required", http.StatusBadRequest)
		return
	}
	switch req.Status {
	case storage.VerificationVerified, storage.VerificationRejected, storage.VerificationPending:
	default:
		http.Error(w, "status must be pending, verified, or rejected", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "failed to update verification", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback(ctx)

	if err := h.repo.SetVerification(ctx, tx, req.ProviderID, req.Status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "provider not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to update verification", http.StatusInternalServerError)
		return
	}

	evtPayload, err := json.Marshal(map[string]any{
		"provider_id":         req.ProviderID,
		"verification_status": req.Status,
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Stage(ctx, tx, events.Event{
		AggregateType: "provider",
		AggregateID:   req.ProviderID,
		EventType:     "provider.verified.v1",
		Payload:       evtPayload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to update verification", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
