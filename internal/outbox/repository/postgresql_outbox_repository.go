// Package repository provides data persistence implementations for outbox entities.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/payouts/internal/database"
	"github.com/allisson/payouts/internal/outbox/domain"
)

const postgresEventColumns = `id, event_type, idempotency_key, payload, status, attempt_count, next_attempt_at,
			  claimed_at, last_error, created_at, updated_at`

// PostgreSQLOutboxEventRepository handles outbox event persistence for PostgreSQL
type PostgreSQLOutboxEventRepository struct {
	db *sql.DB
}

// NewPostgreSQLOutboxEventRepository creates a new PostgreSQLOutboxEventRepository
func NewPostgreSQLOutboxEventRepository(db *sql.DB) *PostgreSQLOutboxEventRepository {
	return &PostgreSQLOutboxEventRepository{
		db: db,
	}
}

// Create inserts a new outbox event
func (r *PostgreSQLOutboxEventRepository) Create(ctx context.Context, event *domain.OutboxEvent) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO outbox_events (id, event_type, idempotency_key, payload, status, attempt_count,
			  next_attempt_at, claimed_at, last_error, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())`

	_, err := querier.ExecContext(ctx, query, event.ID, event.EventType, event.IdempotencyKey, event.Payload,
		event.Status, event.AttemptCount, event.NextAttemptAt, event.ClaimedAt, event.LastError)

	return err
}

// GetDueEvents locks up to limit pending events whose next attempt is due.
// Rows locked by another worker are skipped, so it must run inside a transaction.
func (r *PostgreSQLOutboxEventRepository) GetDueEvents(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*domain.OutboxEvent, error) {
	query := `SELECT ` + postgresEventColumns + `
			  FROM outbox_events
			  WHERE status = $1 AND next_attempt_at <= $2
			  ORDER BY next_attempt_at ASC
			  LIMIT $3
			  FOR UPDATE SKIP LOCKED`

	return r.lockEvents(ctx, query, domain.OutboxEventStatusPending, now, limit)
}

// GetStaleEvents locks up to limit events that have been processing since before claimedBefore.
// Like GetDueEvents it skips locked rows and must run inside a transaction.
func (r *PostgreSQLOutboxEventRepository) GetStaleEvents(
	ctx context.Context,
	claimedBefore time.Time,
	limit int,
) ([]*domain.OutboxEvent, error) {
	query := `SELECT ` + postgresEventColumns + `
			  FROM outbox_events
			  WHERE status = $1 AND claimed_at < $2
			  ORDER BY claimed_at ASC
			  LIMIT $3
			  FOR UPDATE SKIP LOCKED`

	return r.lockEvents(ctx, query, domain.OutboxEventStatusProcessing, claimedBefore, limit)
}

func (r *PostgreSQLOutboxEventRepository) lockEvents(
	ctx context.Context,
	query string,
	args ...any,
) ([]*domain.OutboxEvent, error) {
	querier := database.GetTx(ctx, r.db)

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var events []*domain.OutboxEvent
	for rows.Next() {
		var event domain.OutboxEvent

		err := rows.Scan(&event.ID, &event.EventType, &event.IdempotencyKey, &event.Payload, &event.Status,
			&event.AttemptCount, &event.NextAttemptAt, &event.ClaimedAt, &event.LastError,
			&event.CreatedAt, &event.UpdatedAt)
		if err != nil {
			return nil, err
		}

		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// GetByIdempotencyKey retrieves the event carrying the given idempotency key
func (r *PostgreSQLOutboxEventRepository) GetByIdempotencyKey(
	ctx context.Context,
	key string,
) (*domain.OutboxEvent, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + postgresEventColumns + `
			  FROM outbox_events
			  WHERE idempotency_key = $1
			  ORDER BY created_at DESC
			  LIMIT 1`

	var event domain.OutboxEvent
	err := querier.QueryRowContext(ctx, query, key).Scan(&event.ID, &event.EventType, &event.IdempotencyKey,
		&event.Payload, &event.Status, &event.AttemptCount, &event.NextAttemptAt, &event.ClaimedAt,
		&event.LastError, &event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOutboxEventNotFound
		}
		return nil, err
	}

	return &event, nil
}

// Claim moves a pending event to processing. It returns false if another worker got there first.
func (r *PostgreSQLOutboxEventRepository) Claim(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_events
			  SET status = $1, claimed_at = $2, updated_at = NOW()
			  WHERE id = $3 AND status = $4`

	result, err := querier.ExecContext(ctx, query, domain.OutboxEventStatusProcessing, now, id,
		domain.OutboxEventStatusPending)

	return affected(result, err)
}

// Complete marks a live event completed
func (r *PostgreSQLOutboxEventRepository) Complete(ctx context.Context, id uuid.UUID) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_events
			  SET status = $1, claimed_at = NULL, last_error = NULL, updated_at = NOW()
			  WHERE id = $2 AND status IN ($3, $4)`

	result, err := querier.ExecContext(ctx, query, domain.OutboxEventStatusCompleted, id,
		domain.OutboxEventStatusPending, domain.OutboxEventStatusProcessing)

	return affected(result, err)
}

// Reschedule returns a processing event to pending with a new due time
func (r *PostgreSQLOutboxEventRepository) Reschedule(
	ctx context.Context,
	id uuid.UUID,
	attemptCount int,
	nextAttemptAt time.Time,
	lastError string,
) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_events
			  SET status = $1, attempt_count = $2, next_attempt_at = $3, last_error = $4,
			      claimed_at = NULL, updated_at = NOW()
			  WHERE id = $5 AND status = $6`

	result, err := querier.ExecContext(ctx, query, domain.OutboxEventStatusPending, attemptCount, nextAttemptAt,
		lastError, id, domain.OutboxEventStatusProcessing)

	return affected(result, err)
}

// MarkDead moves a live event to dead; dead events are never picked up again
func (r *PostgreSQLOutboxEventRepository) MarkDead(
	ctx context.Context,
	id uuid.UUID,
	attemptCount int,
	lastError string,
) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_events
			  SET status = $1, attempt_count = $2, last_error = $3, claimed_at = NULL, updated_at = NOW()
			  WHERE id = $4 AND status IN ($5, $6)`

	result, err := querier.ExecContext(ctx, query, domain.OutboxEventStatusDead, attemptCount, lastError, id,
		domain.OutboxEventStatusPending, domain.OutboxEventStatusProcessing)

	return affected(result, err)
}

func affected(result sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
