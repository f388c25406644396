// Package domain defines the core outbox domain entities and types.
package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/payouts/internal/errors"
)

// OutboxEventStatus represents the status of an outbox event
type OutboxEventStatus string

const (
	OutboxEventStatusPending    OutboxEventStatus = "pending"
	OutboxEventStatusProcessing OutboxEventStatus = "processing"
	OutboxEventStatusCompleted  OutboxEventStatus = "completed"
	OutboxEventStatusDead       OutboxEventStatus = "dead"
)

// IsTerminal reports whether the event will never be attempted again.
func (s OutboxEventStatus) IsTerminal() bool {
	return s == OutboxEventStatusCompleted || s == OutboxEventStatusDead
}

// OutboxEvent is a durable record of a side effect that still has to reach an external system.
// AttemptCount includes the synchronous attempt made before the event was enqueued.
type OutboxEvent struct {
	ID             uuid.UUID
	EventType      string
	IdempotencyKey string
	Payload        string
	Status         OutboxEventStatus
	AttemptCount   int
	NextAttemptAt  time.Time
	ClaimedAt      *time.Time
	LastError      *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Outbox-specific error definitions.
var (
	ErrOutboxEventNotFound = apperrors.Wrap(apperrors.ErrNotFound, "outbox event not found")

	ErrUnknownEventType = apperrors.Wrap(apperrors.ErrInvalidInput, "unknown outbox event type")

	ErrInvalidPayload = apperrors.Wrap(apperrors.ErrInvalidInput, "invalid outbox event payload")

	// ErrPermanentFailure marks a processing error that no retry can fix.
	ErrPermanentFailure = errors.New("permanent failure")

	// ErrAbandoned is recorded when a worker held an event past the stale threshold.
	ErrAbandoned = errors.New("processing abandoned by worker")
)
