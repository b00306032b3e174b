package storage

import (
	"context"
	"time"

	"github.com/digos-health/himsog/libs/db"
	"github.com/jackc/pgx/v5"
)

type Thread struct {
	ID         string    `json:"id"`
	ProviderID string    `json:"provider_id"`
	PatientID  string    `json:"patient_id"`
	Subject    string    `json:"subject"`
	CreatedAt  time.Time `json:"created_at"`
}

type Message struct {
	ID         string    `json:"id"`
	ThreadID   string    `json:"thread_id"`
	SenderID   string    `json:"sender_id"`
	SenderRole string    `json:"sender_role"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

type MessageRepository struct {
	pool *db.Pool
}

func NewMessageRepository(pool *db.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func (r *MessageRepository) CreateThread(ctx context.Context, providerID, patientID, subject string) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO message_threads (provider_id, patient_id, subject)
		VALUES ($1, $2, $3)
		RETURNING id
	`, providerID, patientID, subject).Scan(&id)
	return id, err
}

func (r *MessageRepository) GetThread(ctx context.Context, threadID string) (Thread, error) {
	var t Thread
	err := r.pool.QueryRow(ctx, `
		SELECT id, provider_id, patient_id, subject, created_at
		FROM message_threads
		WHERE id = $1
	`, threadID).Scan(&t.ID, &t.ProviderID, &t.PatientID, &t.Subject, &t.CreatedAt)
	if err != nil {
		return Thread{}, err
	}
	return t, nil
}

func (r *MessageRepository) ListThreadsForProvider(ctx context.Context, providerID string, limit int) ([]Thread, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, provider_id, patient_id, subject, created_at
		FROM message_threads
		WHERE provider_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, providerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectThreads(rows)
}

func (r *MessageRepository) ListThreadsForPatient(ctx context.Context, patientID string, limit int) ([]Thread, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, provider_id, patient_id, subject, created_at
		FROM message_threads
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, patientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectThreads(rows)
}

func collectThreads(rows pgx.Rows) ([]Thread, error) {
	var out []Thread
	for rows.Next() {
		var t Thread
		if err := rows.Scan(&t.ID, &t.ProviderID, &t.PatientID, &t.Subject, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *MessageRepository) CreateMessage(ctx context.Context, m Message) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO messages (thread_id, sender_id, sender_role, body)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, m.ThreadID, m.SenderID, m.SenderRole, m.Body).Scan(&id)
	return id, err
}

func (r *MessageRepository) ListMessages(ctx context.Context, threadID string, limit int) ([]Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, thread_id, sender_id, sender_role, body, created_at
		FROM messages
		WHERE thread_id = $1
		ORDER BY created_at
		LIMIT $2
	`, threadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.SenderID, &m.SenderRole, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
