package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	outboxDomain "github.com/allisson/payouts/internal/outbox/domain"
)

func newID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// Outbox is an in-memory outbox_events table.
type Outbox struct {
	mu     sync.Mutex
	events []*outboxDomain.OutboxEvent
}

// NewOutbox creates an empty outbox.
func NewOutbox() *Outbox {
	return &Outbox{}
}

// Create stores a copy of event.
func (o *Outbox) Create(_ context.Context, event *outboxDomain.OutboxEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	cp := *event
	o.events = append(o.events, &cp)
	return nil
}

// GetDueEvents returns copies of pending events due at now, earliest first.
func (o *Outbox) GetDueEvents(_ context.Context, now time.Time, limit int) ([]*outboxDomain.OutboxEvent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var due []*outboxDomain.OutboxEvent
	for _, e := range o.events {
		if e.Status == outboxDomain.OutboxEventStatusPending && !e.NextAttemptAt.After(now) {
			cp := *e
			due = append(due, &cp)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].NextAttemptAt.Before(due[j].NextAttemptAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// GetByIdempotencyKey returns a copy of the newest event with key.
func (o *Outbox) GetByIdempotencyKey(_ context.Context, key string) (*outboxDomain.OutboxEvent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i := len(o.events) - 1; i >= 0; i-- {
		if o.events[i].IdempotencyKey == key {
			cp := *o.events[i]
			return &cp, nil
		}
	}
	return nil, outboxDomain.ErrOutboxEventNotFound
}

func (o *Outbox) update(id uuid.UUID, from []outboxDomain.OutboxEventStatus, fn func(e *outboxDomain.OutboxEvent)) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, e := range o.events {
		if e.ID != id {
			continue
		}
		for _, s := range from {
			if e.Status == s {
				fn(e)
				e.UpdatedAt = time.Now().UTC()
				return true
			}
		}
		return false
	}
	return false
}

var live = []outboxDomain.OutboxEventStatus{
	outboxDomain.OutboxEventStatusPending,
	outboxDomain.OutboxEventStatusProcessing,
}

// Claim moves a pending event to processing.
func (o *Outbox) Claim(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	return o.update(id, []outboxDomain.OutboxEventStatus{outboxDomain.OutboxEventStatusPending},
		func(e *outboxDomain.OutboxEvent) {
			e.Status = outboxDomain.OutboxEventStatusProcessing
			claimedAt := now
			e.ClaimedAt = &claimedAt
		}), nil
}

// Complete marks a live event completed.
func (o *Outbox) Complete(_ context.Context, id uuid.UUID) (bool, error) {
	return o.update(id, live, func(e *outboxDomain.OutboxEvent) {
		e.Status = outboxDomain.OutboxEventStatusCompleted
		e.ClaimedAt = nil
		e.LastError = nil
	}), nil
}

// Reschedule returns a processing event to pending.
func (o *Outbox) Reschedule(
	_ context.Context,
	id uuid.UUID,
	attemptCount int,
	nextAttemptAt time.Time,
	lastError string,
) (bool, error) {
	return o.update(id, []outboxDomain.OutboxEventStatus{outboxDomain.OutboxEventStatusProcessing},
		func(e *outboxDomain.OutboxEvent) {
			e.Status = outboxDomain.OutboxEventStatusPending
			e.AttemptCount = attemptCount
			e.NextAttemptAt = nextAttemptAt
			e.LastError = &lastError
			e.ClaimedAt = nil
		}), nil
}

// MarkDead moves a live event to dead.
func (o *Outbox) MarkDead(_ context.Context, id uuid.UUID, attemptCount int, lastError string) (bool, error) {
	return o.update(id, live, func(e *outboxDomain.OutboxEvent) {
		e.Status = outboxDomain.OutboxEventStatusDead
		e.AttemptCount = attemptCount
		e.LastError = &lastError
		e.ClaimedAt = nil
	}), nil
}

// GetStaleEvents returns copies of events processing since before claimedBefore, oldest claim first.
func (o *Outbox) GetStaleEvents(_ context.Context, claimedBefore time.Time, limit int) ([]*outboxDomain.OutboxEvent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var stale []*outboxDomain.OutboxEvent
	for _, e := range o.events {
		if e.Status == outboxDomain.OutboxEventStatusProcessing && e.ClaimedAt != nil &&
			e.ClaimedAt.Before(claimedBefore) {
			cp := *e
			stale = append(stale, &cp)
		}
	}
	sort.SliceStable(stale, func(i, j int) bool { return stale[i].ClaimedAt.Before(*stale[j].ClaimedAt) })
	if len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

// Events returns copies of every event.
func (o *Outbox) Events() []outboxDomain.OutboxEvent {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]outboxDomain.OutboxEvent, 0, len(o.events))
	for _, e := range o.events {
		out = append(out, *e)
	}
	return out
}
