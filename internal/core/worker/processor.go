package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/melkiimultic/primitiveBank/internal/core/notifications"
)

const (
	pollInterval = 5 * time.Second
	maxAttempts  = 5
)

// StartWebhookWorker drains the transfer-event outbox in the background.
// Outbox rows are written in the same transaction as the balance mutation,
// so every delivered event corresponds to a committed transfer.
func StartWebhookWorker(ctx context.Context, db *pgxpool.Pool, secret string) {
	go func() {
		slog.Info("webhook worker started")
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.Info("webhook worker stopped")
				return
			case <-ticker.C:
				processJobs(ctx, db, secret)
			}
		}
	}()
}

func processJobs(ctx context.Context, db *pgxpool.Pool, secret string) {
	// The claim and the status update share one transaction, so the row
	// lock from FOR UPDATE is held until the job's outcome is recorded
	// and SKIP LOCKED keeps concurrent instances off the same job.
	tx, err := db.Begin(ctx)
	if err != nil {
		return
	}
	defer tx.Rollback(ctx)

	query := `
		SELECT id, url, payload, attempts
		FROM webhook_jobs
		WHERE status = 'PENDING' AND next_run_at <= NOW()
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`

	var id string
	var url string
	var payloadBytes []byte
	var attempts int

	if err := tx.QueryRow(ctx, query).Scan(&id, &url, &payloadBytes, &attempts); err != nil {
		return
	}

	var payload any
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		slog.Error("worker: failed to parse payload", "error", err, "job_id", id)
		tx.Exec(ctx, "UPDATE webhook_jobs SET status = 'FAILED' WHERE id = $1", id)
		tx.Commit(ctx)
		return
	}

	sendErr := notifications.SendWebhook(url, payload, secret)
	if sendErr != nil {
		slog.Error("worker: webhook failed", "error", sendErr, "attempts", attempts, "job_id", id)

		status, nextRun := nextState(attempts, time.Now())
		if status == statusFailed {
			tx.Exec(ctx, "UPDATE webhook_jobs SET status = 'FAILED' WHERE id = $1", id)
			slog.Error("worker: job failed permanently", "job_id", id)
		} else {
			tx.Exec(ctx, "UPDATE webhook_jobs SET status = 'PENDING', attempts = attempts + 1, next_run_at = $2 WHERE id = $1", id, nextRun)
		}
		tx.Commit(ctx)
		return
	}

	tx.Exec(ctx, "UPDATE webhook_jobs SET status = 'COMPLETED' WHERE id = $1", id)
	tx.Commit(ctx)
	slog.Info("worker: webhook delivered", "job_id", id)
}

const (
	statusPending = "PENDING"
	statusFailed  = "FAILED"
)

// nextState decides a failed job's fate: retry with a linearly growing
// backoff, or give up once attempts reach maxAttempts.
func nextState(attempts int, now time.Time) (string, time.Time) {
	if attempts >= maxAttempts {
		return statusFailed, now
	}
	return statusPending, now.Add(time.Duration(attempts*10+10) * time.Second)
}
