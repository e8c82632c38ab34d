package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ebanking/payment-service/internal/domain"
)

// ClaimPendingOutboxEvents selects a bounded batch of PENDING events ordered
// by creation time and increments their retry count in the same statement.
// SKIP LOCKED keeps concurrent sweeps from claiming the same rows.
func (r *PostgresRepository) ClaimPendingOutboxEvents(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		WITH candidates AS (
			SELECT id
			FROM outbox_events
			WHERE status = 'PENDING'
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE outbox_events AS o
		SET retry_count = o.retry_count + 1
		FROM candidates
		WHERE o.id = candidates.id
		RETURNING o.id, o.aggregate_type, o.aggregate_id, o.event_type,
		          o.payload::text, o.correlation_id, o.status, o.retry_count,
		          o.created_at, o.published_at, o.last_error
	`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.OutboxEvent, 0, limit)
	for rows.Next() {
		var (
			event       domain.OutboxEvent
			payloadText string
		)
		if err := rows.Scan(
			&event.ID,
			&event.AggregateType,
			&event.AggregateID,
			&event.EventType,
			&payloadText,
			&event.CorrelationID,
			&event.Status,
			&event.RetryCount,
			&event.CreatedAt,
			&event.PublishedAt,
			&event.LastError,
		); err != nil {
			return nil, err
		}
		event.Payload = []byte(payloadText)
		events = append(events, event)
	}
	return events, rows.Err()
}

// MarkOutboxPublished records a successful publication.
func (r *PostgresRepository) MarkOutboxPublished(ctx context.Context, eventID int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE outbox_events
		SET status = 'PUBLISHED',
			published_at = NOW(),
			last_error = NULL
		WHERE id = $1
	`, eventID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOutboxEventNotFound
	}
	return nil
}

// MarkOutboxFailed records a publish failure. The event stays PENDING for the
// next sweep until its retry count exceeds maxRetries, after which it becomes
// terminal FAILED and requires manual follow-up.
func (r *PostgresRepository) MarkOutboxFailed(ctx context.Context, eventID int64, reason string, maxRetries int) error {
	if len(reason) > 2000 {
		reason = reason[:2000]
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE outbox_events
		SET status = CASE WHEN retry_count > $2 THEN 'FAILED' ELSE 'PENDING' END,
			last_error = $3
		WHERE id = $1
	`, eventID, maxRetries, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOutboxEventNotFound
	}
	return nil
}

// EnqueueOutboxEvents inserts standalone audit events in one transaction.
func (r *PostgresRepository) EnqueueOutboxEvents(ctx context.Context, events ...OutboxInsert) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, event := range events {
		if err := enqueueOutboxEventTx(ctx, tx, event); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func enqueueOutboxEventTx(ctx context.Context, tx pgx.Tx, event OutboxInsert) error {
	blob, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, correlation_id, status)
		VALUES ($1, $2, $3, $4::jsonb, $5, 'PENDING')
	`,
		strings.TrimSpace(event.AggregateType),
		strings.TrimSpace(event.AggregateID),
		strings.TrimSpace(event.EventType),
		string(blob),
		strings.TrimSpace(event.CorrelationID),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox event: %w", err)
	}
	return nil
}
