package jobs

import (
	"context"
	"encoding/json"
	"time"

	otelx "github.com/digos-health/himsog/libs/otel"
	"github.com/jackc/pgx/v5"
)

// Job statuses as stored in scheduler_jobs.status.
const (
	statusPending   = "pending"
	statusProcessed = "processed"
	statusFailed    = "failed"
)

type Job struct {
	ID             int64
	IdempotencyKey string
	AppointmentID  string
	ProviderID     string
	Channel        string
	Recipient      string
	RemindAt       time.Time
	TemplateData   map[string]any
	Traceparent    string
	Tracestate     string
	Attempts       int
	MaxAttempts    int
	NextRunAt      time.Time
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Insert schedules a reminder job. The idempotency key makes replayed
// appointment events a no-op.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, job Job) error {
	payload, err := json.Marshal(job.TemplateData)
	if err != nil {
		return err
	}
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err = tx.Exec(ctx, `
		INSERT INTO scheduler_jobs (idempotency_key, appointment_id, provider_id, channel, recipient, remind_at, template_data, next_run_at, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $6, $8, $9)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, job.IdempotencyKey, job.AppointmentID, job.ProviderID, job.Channel, job.Recipient, job.RemindAt, payload, traceparent, tracestate)
	return err
}

// FetchDue claims up to limit due jobs. SKIP LOCKED lets concurrent
// workers drain the queue without contending on the same rows.
func (r *Repository) FetchDue(ctx context.Context, tx pgx.Tx, limit int) ([]Job, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, idempotency_key, appointment_id, provider_id, channel, recipient, remind_at, template_data, traceparent, tracestate, attempts, max_attempts, next_run_at
		FROM scheduler_jobs
		WHERE status = 'pending' AND next_run_at <= now()
		ORDER BY next_run_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (Job, error) {
	var j Job
	var raw []byte
	if err := row.Scan(&j.ID, &j.IdempotencyKey, &j.AppointmentID, &j.ProviderID, &j.Channel, &j.Recipient, &j.RemindAt, &raw, &j.Traceparent, &j.Tracestate, &j.Attempts, &j.MaxAttempts, &j.NextRunAt); err != nil {
		return Job{}, err
	}
	j.TemplateData = map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &j.TemplateData); err != nil {
			return Job{}, err
		}
	}
	return j, nil
}

func (r *Repository) MarkProcessed(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE scheduler_jobs
		SET status = $2, updated_at = now()
		WHERE id = ANY($1)
	`, ids, statusProcessed)
	return err
}

// MarkFailed bumps the attempt counter and either reschedules the job
// or parks it as failed once attempts are exhausted.
func (r *Repository) MarkFailed(ctx context.Context, tx pgx.Tx, id int64, attempts int, maxAttempts int, nextRunAt time.Time, lastError string) error {
	status := statusPending
	if attempts >= maxAttempts {
		status = statusFailed
	}
	_, err := tx.Exec(ctx, `
		UPDATE scheduler_jobs
		SET attempts = $2,
		    status = $3,
		    next_run_at = $4,
		    last_error = $5,
		    updated_at = now()
		WHERE id = $1
	`, id, attempts, status, nextRunAt, lastError)
	return err
}
