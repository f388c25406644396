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

const mysqlEventColumns = `id, event_type, idempotency_key, payload, status, attempt_count, next_attempt_at,
			  claimed_at, last_error, created_at, updated_at`

// MySQLOutboxEventRepository handles outbox event persistence for MySQL
type MySQLOutboxEventRepository struct {
	db *sql.DB
}

// NewMySQLOutboxEventRepository creates a new MySQLOutboxEventRepository
func NewMySQLOutboxEventRepository(db *sql.DB) *MySQLOutboxEventRepository {
	return &MySQLOutboxEventRepository{
		db: db,
	}
}

// Create inserts a new outbox event
func (r *MySQLOutboxEventRepository) Create(ctx context.Context, event *domain.OutboxEvent) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO outbox_events (id, event_type, idempotency_key, payload, status, attempt_count,
			  next_attempt_at, claimed_at, last_error, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())`

	// Convert UUID to bytes for MySQL BINARY(16)
	idBytes, err := event.ID.MarshalBinary()
	if err != nil {
		return err
	}

	_, err = querier.ExecContext(ctx, query, idBytes, event.EventType, event.IdempotencyKey, event.Payload,
		event.Status, event.AttemptCount, event.NextAttemptAt, event.ClaimedAt, event.LastError)

	return err
}

// GetDueEvents locks up to limit pending events whose next attempt is due
func (r *MySQLOutboxEventRepository) GetDueEvents(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*domain.OutboxEvent, error) {
	query := `SELECT ` + mysqlEventColumns + `
			  FROM outbox_events
			  WHERE status = ? AND next_attempt_at <= ?
			  ORDER BY next_attempt_at ASC
			  LIMIT ?
			  FOR UPDATE SKIP LOCKED`

	return r.lockEvents(ctx, query, domain.OutboxEventStatusPending, now, limit)
}

// GetStaleEvents locks up to limit events processing since before claimedBefore
func (r *MySQLOutboxEventRepository) GetStaleEvents(
	ctx context.Context,
	claimedBefore time.Time,
	limit int,
) ([]*domain.OutboxEvent, error) {
	query := `SELECT ` + mysqlEventColumns + `
			  FROM outbox_events
			  WHERE status = ? AND claimed_at < ?
			  ORDER BY claimed_at ASC
			  LIMIT ?
			  FOR UPDATE SKIP LOCKED`

	return r.lockEvents(ctx, query, domain.OutboxEventStatusProcessing, claimedBefore, limit)
}

func (r *MySQLOutboxEventRepository) lockEvents(
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
		event, err := scanMySQLEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// GetByIdempotencyKey retrieves the event carrying the given idempotency key
func (r *MySQLOutboxEventRepository) GetByIdempotencyKey(
	ctx context.Context,
	key string,
) (*domain.OutboxEvent, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + mysqlEventColumns + `
			  FROM outbox_events
			  WHERE idempotency_key = ?
			  ORDER BY created_at DESC
			  LIMIT 1`

	event, err := scanMySQLEvent(querier.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOutboxEventNotFound
		}
		return nil, err
	}

	return event, nil
}

// Claim moves a pending event to processing
func (r *MySQLOutboxEventRepository) Claim(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return false, err
	}

	query := `UPDATE outbox_events
			  SET status = ?, claimed_at = ?, updated_at = NOW()
			  WHERE id = ? AND status = ?`

	result, err := querier.ExecContext(ctx, query, domain.OutboxEventStatusProcessing, now, idBytes,
		domain.OutboxEventStatusPending)

	return affected(result, err)
}

// Complete marks a live event completed
func (r *MySQLOutboxEventRepository) Complete(ctx context.Context, id uuid.UUID) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return false, err
	}

	query := `UPDATE outbox_events
			  SET status = ?, claimed_at = NULL, last_error = NULL, updated_at = NOW()
			  WHERE id = ? AND status IN (?, ?)`

	result, err := querier.ExecContext(ctx, query, domain.OutboxEventStatusCompleted, idBytes,
		domain.OutboxEventStatusPending, domain.OutboxEventStatusProcessing)

	return affected(result, err)
}

// Reschedule returns a processing event to pending with a new due time
func (r *MySQLOutboxEventRepository) Reschedule(
	ctx context.Context,
	id uuid.UUID,
	attemptCount int,
	nextAttemptAt time.Time,
	lastError string,
) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return false, err
	}

	query := `UPDATE outbox_events
			  SET status = ?, attempt_count = ?, next_attempt_at = ?, last_error = ?,
			      claimed_at = NULL, updated_at = NOW()
			  WHERE id = ? AND status = ?`

	result, err := querier.ExecContext(ctx, query, domain.OutboxEventStatusPending, attemptCount, nextAttemptAt,
		lastError, idBytes, domain.OutboxEventStatusProcessing)

	return affected(result, err)
}

// MarkDead moves a live event to dead
func (r *MySQLOutboxEventRepository) MarkDead(
	ctx context.Context,
	id uuid.UUID,
	attemptCount int,
	lastError string,
) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return false, err
	}

	query := `UPDATE outbox_events
			  SET status = ?, attempt_count = ?, last_error = ?, claimed_at = NULL, updated_at = NOW()
			  WHERE id = ? AND status IN (?, ?)`

	result, err := querier.ExecContext(ctx, query, domain.OutboxEventStatusDead, attemptCount, lastError, idBytes,
		domain.OutboxEventStatusPending, domain.OutboxEventStatusProcessing)

	return affected(result, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMySQLEvent(row rowScanner) (*domain.OutboxEvent, error) {
	var event domain.OutboxEvent
	var idBytes []byte

	err := row.Scan(&idBytes, &event.EventType, &event.IdempotencyKey, &event.Payload, &event.Status,
		&event.AttemptCount, &event.NextAttemptAt, &event.ClaimedAt, &event.LastError,
		&event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		return nil, err
	}

	// Convert bytes back to UUID
	if err := event.ID.UnmarshalBinary(idBytes); err != nil {
		return nil, err
	}

	return &event, nil
}
