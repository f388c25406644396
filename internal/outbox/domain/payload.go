package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventTypeReleaseTransfer is the event type of a deferred hunter payout.
const EventTypeReleaseTransfer = "release_transfer"

// Payload is the decoded body of an outbox event. Each event type has exactly one payload type.
type Payload interface {
	EventType() string
}

// ReleaseTransferPayload carries everything needed to re-issue a payout transfer.
type ReleaseTransferPayload struct {
	BountyID       string `json:"bounty_id"`
	HunterID       string `json:"hunter_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	DestinationRef string `json:"destination_ref"`
	IdempotencyKey string `json:"idempotency_key"`
}

// EventType implements Payload.
func (p *ReleaseTransferPayload) EventType() string {
	return EventTypeReleaseTransfer
}

func (p *ReleaseTransferPayload) validate() error {
	if p.BountyID == "" || p.IdempotencyKey == "" || p.DestinationRef == "" || p.Amount <= 0 {
		return ErrInvalidPayload
	}
	return nil
}

// NewEvent builds a pending event for payload, due at nextAttemptAt.
func NewEvent(payload Payload, attemptCount int, nextAttemptAt time.Time) (*OutboxEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var key string
	if p, ok := payload.(*ReleaseTransferPayload); ok {
		key = p.IdempotencyKey
	}

	now := time.Now().UTC()
	return &OutboxEvent{
		ID:             uuid.Must(uuid.NewV7()),
		EventType:      payload.EventType(),
		IdempotencyKey: key,
		Payload:        string(raw),
		Status:         OutboxEventStatusPending,
		AttemptCount:   attemptCount,
		NextAttemptAt:  nextAttemptAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// DecodePayload decodes the event body into the typed payload for its event type.
func DecodePayload(event *OutboxEvent) (Payload, error) {
	switch event.EventType {
	case EventTypeReleaseTransfer:
		var p ReleaseTransferPayload
		if err := json.Unmarshal([]byte(event.Payload), &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if err := p.validate(); err != nil {
			return nil, err
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, event.EventType)
	}
}
