package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/digos-health/himsog/services/notification-service/internal/storage"
	"github.com/jackc/pgx/v5"
)

func TestCallerCanAccess(t *testing.T) {
	thread := storage.Thread{ProviderID: "prov-1", PatientID: "user-1"}

	cases := []struct {
		name string
		c    caller
		want bool
	}{
		{"patient owns thread", caller{userID: "user-1", role: "patient"}, true},
		{"other patient", caller{userID: "user-2", role: "patient"}, false},
		{"provider owns thread", caller{userID: "user-9", providerID: "prov-1", role: "provider"}, true},
		{"other provider", caller{userID: "user-9", providerID: "prov-2", role: "provider"}, false},
		{"admin", caller{userID: "user-3", role: "admin"}, true},
	}
	for _, tc := range cases {
		if got := tc.c.canAccess(thread); got != tc.want {
			t.Fatalf("%s: canAccess = %v, want %v", tc.name, got, tc.want)
		}
	}
}

type fakeMessageStore struct {
	threads  map[string]storage.Thread
	messages []storage.Message
	nextID   int
	fail     bool
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{threads: map[string]storage.Thread{}, nextID: 1}
}

func (s *fakeMessageStore) CreateThread(_ context.Context, providerID, patientID, subject string) (string, error) {
	if s.fail {
		return "", errors.New("store unavailable")
	}
	id := fmt.Sprintf("thread-%d", s.nextID)
	s.nextID++
	s.threads[id] = storage.Thread{ID: id, ProviderID: providerID, PatientID: patientID, Subject: subject}
	return id, nil
}

func (s *fakeMessageStore) GetThread(_ context.Context, threadID string) (storage.Thread, error) {
	t, ok := s.threads[threadID]
	if !ok {
		return storage.Thread{}, pgx.ErrNoRows
	}
	return t, nil
}

func (s *fakeMessageStore) ListThreadsForProvider(_ context.Context, providerID string, _ int) ([]storage.Thread, error) {
	var out []storage.Thread
	for _, t := range s.threads {
		if t.ProviderID == providerID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeMessageStore) ListThreadsForPatient(_ context.Context, patientID string, _ int) ([]storage.Thread, error) {
	var out []storage.Thread
	for _, t := range s.threads {
		if t.PatientID == patientID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeMessageStore) CreateMessage(_ context.Context, m storage.Message) (string, error) {
	m.ID = fmt.Sprintf("msg-%d", s.nextID)
	s.nextID++
	s.messages = append(s.messages, m)
	return m.ID, nil
}

func (s *fakeMessageStore) ListMessages(_ context.Context, threadID string, _ int) ([]storage.Message, error) {
	var out []storage.Message
	for _, m := range s.messages {
		if m.ThreadID == threadID {
			out = append(out, m)
		}
	}
	return out, nil
}

func TestCreateThread(t *testing.T) {
	store := newFakeMessageStore()
	h := NewMessageHandler(store)

	req := httptest.NewRequest(http.MethodPost, "http://example.com/api/v1/messages/threads",
		strings.NewReader(`{"provider_id":"prov-1","subject":"Follow up"}`))
	req.Header.Set("X-User-Id", "user-1")
	req.Header.Set("X-Role", "patient")
	rw := httptest.NewRecorder()
	h.Threads(rw, req)
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	thread, err := store.GetThread(context.Background(), resp.ID)
	if err != nil {
		t.Fatalf("thread not stored: %v", err)
	}
	if thread.PatientID != "user-1" || thread.ProviderID != "prov-1" || thread.Subject != "Follow up" {
		t.Fatalf("thread = %+v", thread)
	}
}

func TestCreateThreadValidation(t *testing.T) {
	h := NewMessageHandler(newFakeMessageStore())

	req := httptest.NewRequest(http.MethodPost, "http://example.com/api/v1/messages/threads",
		strings.NewReader(`{"provider_id":"prov-1"}`))
	rw := httptest.NewRecorder()
	h.Threads(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without X-User-Id, got %d", rw.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "http://example.com/api/v1/messages/threads",
		strings.NewReader(`{"subject":"hi"}`))
	req.Header.Set("X-User-Id", "user-1")
	rw = httptest.NewRecorder()
	h.Threads(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without provider_id, got %d", rw.Code)
	}
}

func TestListThreadsByCaller(t *testing.T) {
	store := newFakeMessageStore()
	_, _ = store.CreateThread(context.Background(), "prov-1", "user-1", "a")
	_, _ = store.CreateThread(context.Background(), "prov-2", "user-2", "b")
	h := NewMessageHandler(store)

	req := httptest.NewRequest(http.MethodGet, "http://example.com/api/v1/messages/threads", nil)
	req.Header.Set("X-User-Id", "user-9")
	req.Header.Set("X-Provider-Id", "prov-1")
	req.Header.Set("X-Role", "provider")
	rw := httptest.NewRecorder()
	h.Threads(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	var threads []storage.Thread
	if err := json.Unmarshal(rw.Body.Bytes(), &threads); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(threads) != 1 || threads[0].ProviderID != "prov-1" {
		t.Fatalf("threads = %+v", threads)
	}
}

func TestPostAndListMessages(t *testing.T) {
	store := newFakeMessageStore()
	threadID, _ := store.CreateThread(context.Background(), "prov-1", "user-1", "a")
	h := NewMessageHandler(store)

	req := httptest.NewRequest(http.MethodPost, "http://example.com/api/v1/messages",
		strings.NewReader(`{"thread_id":"`+threadID+`","body":"hello doc"}`))
	req.Header.Set("X-User-Id", "user-1")
	req.Header.Set("X-Role", "patient")
	rw := httptest.NewRecorder()
	h.Messages(rw, req)
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "http://example.com/api/v1/messages?thread_id="+threadID, nil)
	req.Header.Set("X-User-Id", "user-1")
	req.Header.Set("X-Role", "patient")
	rw = httptest.NewRecorder()
	h.Messages(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	var msgs []storage.Message
	if err := json.Unmarshal(rw.Body.Bytes(), &msgs); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Body != "hello doc" || msgs[0].SenderRole != "patient" {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestPostMessageAccess(t *testing.T) {
	store := newFakeMessageStore()
	threadID, _ := store.CreateThread(context.Background(), "prov-1", "user-1", "a")
	h := NewMessageHandler(store)

	req := httptest.NewRequest(http.MethodPost, "http://example.com/api/v1/messages",
		strings.NewReader(`{"thread_id":"`+threadID+`","body":"hi"}`))
	req.Header.Set("X-User-Id", "user-2")
	req.Header.Set("X-Role", "patient")
	rw := httptest.NewRecorder()
	h.Messages(rw, req)
	if rw.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another patient, got %d", rw.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "http://example.com/api/v1/messages",
		strings.NewReader(`{"thread_id":"missing","body":"hi"}`))
	req.Header.Set("X-User-Id", "user-1")
	rw = httptest.NewRecorder()
	h.Messages(rw, req)
	if rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown thread, got %d", rw.Code)
	}
}
