package metrics

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

func parseRange(r *http.Request) (string, time.Time, time.Time, bool) {
	providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)
	if v := strings.TrimSpace(r.URL.Query().Get("from")); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return "", time.Time{}, time.Time{}, false
		}
		from = t
	}
	if v := strings.TrimSpace(r.URL.Query().Get("to")); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return "", time.Time{}, time.Time{}, false
		}
		to = t
	}
	if to.Before(from) {
		return "", time.Time{}, time.Time{}, false
	}
	return providerID, from, to, true
}

func (h *Handler) Appointments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID, from, to, ok := parseRange(r)
	if !ok {
		http.Error(w, "invalid from/to range (YYYY-MM-DD)", http.StatusBadRequest)
		return
	}

	items, err := h.repo.ListAppointmentMetrics(r.Context(), providerID, from, to)
	if err != nil {
		http.Error(w, "failed to load appointment metrics", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(items)
}

func (h *Handler) Notifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID, from, to, ok := parseRange(r)
	if !ok {
		http.Error(w, "invalid from/to range (YYYY-MM-DD)", http.StatusBadRequest)
		return
	}

	items, err := h.repo.ListNotificationMetrics(r.Context(), providerID, from, to)
	if err != nil {
		http.Error(w, "failed to load notification metrics", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(items)
}
