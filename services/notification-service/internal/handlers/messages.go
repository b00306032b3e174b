package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/digos-health/himsog/services/notification-service/internal/storage"
	"github.com/jackc/pgx/v5"
)

// MessageStore is the persistence surface the thread handlers need.
// *storage.MessageRepository implements it.
type MessageStore interface {
	CreateThread(ctx context.Context, providerID, patientID, subject string) (string, error)
	GetThread(ctx context.Context, threadID string) (storage.Thread, error)
	ListThreadsForProvider(ctx context.Context, providerID string, limit int) ([]storage.Thread, error)
	ListThreadsForPatient(ctx context.Context, patientID string, limit int) ([]storage.Thread, error)
	CreateMessage(ctx context.Context, m storage.Message) (string, error)
	ListMessages(ctx context.Context, threadID string, limit int) ([]storage.Message, error)
}

// MessageHandler serves patient to provider message threads. Identity headers
// are injected by the gateway after JWT verification.
type MessageHandler struct {
	repo MessageStore
}

func NewMessageHandler(repo MessageStore) *MessageHandler {
	return &MessageHandler{repo: repo}
}

type caller struct {
	userID     string
	providerID string
	role       string
}

func callerFromRequest(r *http.Request) (caller, bool) {
	c := caller{
		userID:     strings.TrimSpace(r.Header.Get("X-User-Id")),
		providerID: strings.TrimSpace(r.Header.Get("X-Provider-Id")),
		role:       strings.TrimSpace(r.Header.Get("X-Role")),
	}
	return c, c.userID != ""
}

func (c caller) canAccess(t storage.Thread) bool {
	if c.role == "admin" {
		return true
	}
	if c.providerID != "" && c.providerID == t.ProviderID {
		return true
	}
	return c.userID == t.PatientID
}

func (h *MessageHandler) Threads(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createThread(w, r)
	case http.MethodGet:
		h.listThreads(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *MessageHandler) createThread(w http.ResponseWriter, r *http.Request) {
	c, ok := callerFromRequest(r)
	if !ok {
		http.Error(w, "missing X-User-Id", http.StatusBadRequest)
		return
	}

	var req struct {
		ProviderID string `json:"provider_id"`
		Subject    string `json:"subject"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.Subject = strings.TrimSpace(req.Subject)
	if req.ProviderID == "" {
		http.Error(w, "provider_id is required", http.StatusBadRequest)
		return
	}
	if req.Subject == "" {
		req.Subject = "Appointment question"
	}

	id, err := h.repo.CreateThread(r.Context(), req.ProviderID, c.userID, req.Subject)
	if err != nil {
		http.Error(w, "failed to create thread", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{"id": id})
}

func (h *MessageHandler) listThreads(w http.ResponseWriter, r *http.Request) {
	c, ok := callerFromRequest(r)
	if !ok {
		http.Error(w, "missing X-User-Id", http.StatusBadRequest)
		return
	}

	var (
		threads []storage.Thread
		err     error
	)
	if c.providerID != "" {
		threads, err = h.repo.ListThreadsForProvider(r.Context(), c.providerID, 100)
	} else {
		threads, err = h.repo.ListThreadsForPatient(r.Context(), c.userID, 100)
	}
	if err != nil {
		http.Error(w, "failed to list threads", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(threads)
}

func (h *MessageHandler) Messages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.postMessage(w, r)
	case http.MethodGet:
		h.listMessages(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *MessageHandler) postMessage(w http.ResponseWriter, r *http.Request) {
	c, ok := callerFromRequest(r)
	if !ok {
		http.Error(w, "missing X-User-Id", http.StatusBadRequest)
		return
	}

	var req struct {
		ThreadID string `json:"thread_id"`
		Body     string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ThreadID = strings.TrimSpace(req.ThreadID)
	req.Body = strings.TrimSpace(req.Body)
	if req.ThreadID == "" || req.Body == "" {
		http.Error(w, "thread_id and body required", http.StatusBadRequest)
		return
	}

	thread, err := h.repo.GetThread(r.Context(), req.ThreadID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "thread not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load thread", http.StatusInternalServerError)
		return
	}
	if !c.canAccess(thread) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	role := c.role
	if role == "" {
		role = "patient"
	}
	id, err := h.repo.CreateMessage(r.Context(), storage.Message{
		ThreadID:   thread.ID,
		SenderID:   c.userID,
		SenderRole: role,
		Body:       req.Body,
	})
	if err != nil {
		http.Error(w, "failed to post message", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{"id": id})
}

func (h *MessageHandler) listMessages(w http.ResponseWriter, r *http.Request) {
	c, ok := callerFromRequest(r)
	if !ok {
		http.Error(w, "missing X-User-Id", http.StatusBadRequest)
		return
	}
	threadID := strings.TrimSpace(r.URL.Query().Get("thread_id"))
	if threadID == "" {
		http.Error(w, "thread_id is required", http.StatusBadRequest)
		return
	}

	thread, err := h.repo.GetThread(r.Context(), threadID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "thread not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load thread", http.StatusInternalServerError)
		return
	}
	if !c.canAccess(thread) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	messages, err := h.repo.ListMessages(r.Context(), threadID, 200)
	if err != nil {
		http.Error(w, "failed to list messages", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(messages)
}
