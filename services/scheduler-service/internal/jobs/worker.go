package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/digos-health/himsog/libs/db"
	"github.com/digos-health/himsog/libs/events"
	otelx "github.com/digos-health/himsog/libs/otel"
	"github.com/jackc/pgx/v5"
)

// Worker drains due reminder jobs and stages a reminder event for each
// one in the same transaction that marks the job processed. A job whose
// event cannot be staged is retried after a delay, and once attempts
// reach max_attempts it is routed to the dead letter topic instead.
type Worker struct {
	pool       *db.Pool
	repo       *Repository
	outbox     *events.Outbox
	logger     *slog.Logger
	interval   time.Duration
	batchSize  int
	retryDelay time.Duration
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
	Backoff   time.Duration
}

// reminderPayload is the body of scheduler.reminder.due.v1 and, with
// the failure fields set, scheduler.reminder.dlq.v1.
type reminderPayload struct {
	AppointmentID string         `json:"appointment_id"`
	ProviderID    string         `json:"provider_id"`
	Channel       string         `json:"channel"`
	Recipient     string         `json:"recipient"`
	RemindAt      string         `json:"remind_at"`
	TemplateData  map[string]any `json:"template_data"`
	ErrorReason   string         `json:"error_reason,omitempty"`
	FailedAt      string         `json:"failed_at,omitempty"`
}

func payloadFor(job Job) reminderPayload {
	return reminderPayload{
		AppointmentID: job.AppointmentID,
		ProviderID:    job.ProviderID,
		Channel:       job.Channel,
		Recipient:     job.Recipient,
		RemindAt:      job.RemindAt.UTC().Format(time.RFC3339),
		TemplateData:  job.TemplateData,
	}
}

func NewWorker(pool *db.Pool, repo *Repository, outboxRepo *events.Outbox, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 1 * time.Minute
	}
	return &Worker{
		pool:       pool,
		repo:       repo,
		outbox:     outboxRepo,
		logger:     logger,
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
		retryDelay: cfg.Backoff,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.drainDue(ctx); err != nil {
				w.logger.Error("scheduler batch failed", "err", err)
			}
		}
	}
}

func (w *Worker) drainDue(ctx context.Context) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	jobs, err := w.repo.FetchDue(ctx, tx, w.batchSize)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return tx.Commit(ctx)
	}

	var done []int64
	var retries []Job
	for _, job := range jobs {
		if err := w.dispatch(ctx, tx, job); err != nil {
			retries = append(retries, job)
			continue
		}
		done = append(done, job.ID)
	}

	if err := w.repo.MarkProcessed(ctx, tx, done); err != nil {
		return err
	}
	for _, job := range retries {
		if err := w.retry(ctx, tx, job); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (w *Worker) dispatch(ctx context.Context, tx pgx.Tx, job Job) error {
	jobCtx := otelx.ContextWithTraceContext(ctx, job.Traceparent, job.Tracestate)
	payload, err := json.Marshal(payloadFor(job))
	if err != nil {
		return err
	}
	return w.outbox.Stage(jobCtx, tx, events.Event{
		AggregateType: "scheduler_job",
		AggregateID:   job.AppointmentID,
		EventType:     "scheduler.reminder.due.v1",
		Payload:       payload,
	})
}

func (w *Worker) retry(ctx context.Context, tx pgx.Tx, job Job) error {
	attempts := job.Attempts + 1
	nextRunAt := time.Now().UTC().Add(w.retryDelay)
	if err := w.repo.MarkFailed(ctx, tx, job.ID, attempts, job.MaxAttempts, nextRunAt, "outbox enqueue failed"); err != nil {
		return err
	}
	if attempts < job.MaxAttempts {
		return nil
	}

	jobCtx := otelx.ContextWithTraceContext(ctx, job.Traceparent, job.Tracestate)
	body := payloadFor(job)
	body.ErrorReason = "max attempts reached"
	body.FailedAt = time.Now().UTC().Format(time.RFC3339)
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return w.outbox.Stage(jobCtx, tx, events.Event{
		AggregateType: "scheduler_job",
		AggregateID:   job.AppointmentID,
		EventType:     "scheduler.reminder.dlq.v1",
		Payload:       payload,
	})
}
