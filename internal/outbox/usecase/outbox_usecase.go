// Package usecase implements the outbox business logic and orchestrates outbox domain operations.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/payouts/internal/alert"
	"github.com/allisson/payouts/internal/database"
	"github.com/allisson/payouts/internal/metrics"
	"github.com/allisson/payouts/internal/outbox/domain"
)

// Config holds outbox use case configuration
type Config struct {
	Interval  time.Duration
	BatchSize int
	// MaxAttempts counts every attempt, including the synchronous one made before enqueueing.
	MaxAttempts int
	Backoff     domain.BackoffPolicy
	// StaleAfter is how long an event may stay processing before it is handed back; zero disables it.
	StaleAfter time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// OutboxEventRepository defines outbox event repository operations
type OutboxEventRepository interface {
	GetDueEvents(ctx context.Context, now time.Time, limit int) ([]*domain.OutboxEvent, error)
	Claim(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	Complete(ctx context.Context, id uuid.UUID) (bool, error)
	Reschedule(ctx context.Context, id uuid.UUID, attemptCount int, nextAttemptAt time.Time, lastError string) (bool, error)
	MarkDead(ctx context.Context, id uuid.UUID, attemptCount int, lastError string) (bool, error)
	GetStaleEvents(ctx context.Context, claimedBefore time.Time, limit int) ([]*domain.OutboxEvent, error)
}

// EventProcessor performs the side effect of one event type.
// Returning an error wrapping domain.ErrPermanentFailure kills the event; any other error retries it.
type EventProcessor interface {
	Process(ctx context.Context, event *domain.OutboxEvent, payload domain.Payload) error
}

// UseCase defines the interface for outbox use cases
type UseCase interface {
	Start(ctx context.Context) error
	ProcessEvents(ctx context.Context) error
}

// OutboxUseCase implements business logic for processing outbox events.
// Several instances may run against the same store; claims never block each other.
type OutboxUseCase struct {
	config     Config
	txManager  database.TxManager
	outboxRepo OutboxEventRepository
	processors map[string]EventProcessor
	alerter    alert.Alerter
	metrics    metrics.BusinessMetrics
	logger     *slog.Logger
}

// NewOutboxUseCase creates a new OutboxUseCase
func NewOutboxUseCase(
	config Config,
	txManager database.TxManager,
	outboxRepo OutboxEventRepository,
	processors map[string]EventProcessor,
	alerter alert.Alerter,
	businessMetrics metrics.BusinessMetrics,
	logger *slog.Logger,
) *OutboxUseCase {
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 1
	}
	if config.Interval <= 0 {
		config.Interval = time.Second
	}
	if businessMetrics == nil {
		businessMetrics = metrics.NewNoOpBusinessMetrics()
	}
	return &OutboxUseCase{
		config:     config,
		txManager:  txManager,
		outboxRepo: outboxRepo,
		processors: processors,
		alerter:    alerter,
		metrics:    businessMetrics,
		logger:     logger,
	}
}

// Start starts the outbox event processing loop
func (uc *OutboxUseCase) Start(ctx context.Context) error {
	if uc.logger != nil {
		uc.logger.Info("starting outbox event processor",
			slog.Duration("interval", uc.config.Interval),
			slog.Int("batch_size", uc.config.BatchSize),
			slog.Int("max_attempts", uc.config.MaxAttempts),
		)
	}

	ticker := time.NewTicker(uc.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if uc.logger != nil {
				uc.logger.Info("stopping outbox event processor")
			}
			return ctx.Err()
		case <-ticker.C:
			if err := uc.ProcessEvents(ctx); err != nil {
				if uc.logger != nil {
					uc.logger.Error("failed to process events", slog.Any("error", err))
				}
			}
		}
	}
}

// ProcessEvents reclaims stale events, claims due events in a transaction and processes them
// outside of it. Claimed events are finished even if ctx is cancelled meanwhile.
func (uc *OutboxUseCase) ProcessEvents(ctx context.Context) error {
	now := uc.config.Now().UTC()

	if uc.config.StaleAfter > 0 {
		if err := uc.reclaimStale(ctx, now); err != nil {
			return err
		}
	}

	var claimed []*domain.OutboxEvent
	err := uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		events, err := uc.outboxRepo.GetDueEvents(ctx, now, uc.config.BatchSize)
		if err != nil {
			return err
		}

		for _, event := range events {
			ok, err := uc.outboxRepo.Claim(ctx, event.ID, now)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			event.Status = domain.OutboxEventStatusProcessing
			claimedAt := now
			event.ClaimedAt = &claimedAt
			claimed = append(claimed, event)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(claimed) == 0 {
		return nil
	}

	if uc.logger != nil {
		uc.logger.Info("processing events", slog.Int("count", len(claimed)))
	}

	workCtx := context.WithoutCancel(ctx)
	var errs []error
	for _, event := range claimed {
		if err := uc.processEvent(workCtx, event); err != nil {
			if uc.logger != nil {
				uc.logger.Error("failed to record event outcome",
					slog.String("event_id", event.ID.String()),
					slog.String("event_type", event.EventType),
					slog.Any("error", err),
				)
			}
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// processEvent dispatches a single claimed event and records the outcome.
func (uc *OutboxUseCase) processEvent(ctx context.Context, event *domain.OutboxEvent) error {
	payload, err := domain.DecodePayload(event)
	if err != nil {
		return uc.markDead(ctx, event, event.AttemptCount, err)
	}

	processor, ok := uc.processors[event.EventType]
	if !ok {
		return uc.markDead(ctx, event, event.AttemptCount,
			fmt.Errorf("%w: no processor registered for %q", domain.ErrUnknownEventType, event.EventType))
	}

	if uc.logger != nil {
		uc.logger.Info("processing event",
			slog.String("event_id", event.ID.String()),
			slog.String("event_type", event.EventType),
			slog.Int("attempt", event.AttemptCount+1),
		)
	}

	processErr := processor.Process(ctx, event, payload)
	attempts := event.AttemptCount + 1

	switch {
	case processErr == nil:
		if _, err := uc.outboxRepo.Complete(ctx, event.ID); err != nil {
			return err
		}
		uc.metrics.RecordOperation(ctx, "outbox", event.EventType, "completed")
		return nil
	case errors.Is(processErr, domain.ErrPermanentFailure):
		return uc.markDead(ctx, event, attempts, processErr)
	case attempts >= uc.config.MaxAttempts:
		return uc.markDead(ctx, event, attempts, processErr)
	}

	next := uc.config.Now().UTC().Add(uc.config.Backoff.Delay(attempts))
	if _, err := uc.outboxRepo.Reschedule(ctx, event.ID, attempts, next, processErr.Error()); err != nil {
		return err
	}
	uc.metrics.RecordOperation(ctx, "outbox", event.EventType, "retry")

	if uc.logger != nil {
		uc.logger.Warn("event processing failed, retry scheduled",
			slog.String("event_id", event.ID.String()),
			slog.Int("attempt_count", attempts),
			slog.Time("next_attempt_at", next),
			slog.Any("error", processErr),
		)
	}
	return nil
}

// reclaimStale hands events abandoned by a crashed or stuck worker back to the queue. The lost
// run counts as an attempt, so an event that kills its worker every time still ends up dead.
func (uc *OutboxUseCase) reclaimStale(ctx context.Context, now time.Time) error {
	var requeued, killed []*domain.OutboxEvent

	err := uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		requeued, killed = nil, nil

		events, err := uc.outboxRepo.GetStaleEvents(ctx, now.Add(-uc.config.StaleAfter), uc.config.BatchSize)
		if err != nil {
			return err
		}

		for _, event := range events {
			event.AttemptCount++
			if event.AttemptCount >= uc.config.MaxAttempts {
				changed, err := uc.outboxRepo.MarkDead(ctx, event.ID, event.AttemptCount, domain.ErrAbandoned.Error())
				if err != nil {
					return err
				}
				if changed {
					killed = append(killed, event)
				}
				continue
			}

			changed, err := uc.outboxRepo.Reschedule(ctx, event.ID, event.AttemptCount, now, domain.ErrAbandoned.Error())
			if err != nil {
				return err
			}
			if changed {
				requeued = append(requeued, event)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(requeued) > 0 && uc.logger != nil {
		uc.logger.Warn("requeued stale outbox events", slog.Int("count", len(requeued)))
	}
	for _, event := range killed {
		uc.raiseDead(ctx, event, event.AttemptCount, domain.ErrAbandoned)
	}
	return nil
}

func (uc *OutboxUseCase) markDead(ctx context.Context, event *domain.OutboxEvent, attempts int, cause error) error {
	changed, err := uc.outboxRepo.MarkDead(ctx, event.ID, attempts, cause.Error())
	if err != nil {
		return err
	}
	if changed {
		uc.raiseDead(ctx, event, attempts, cause)
	}
	return nil
}

func (uc *OutboxUseCase) raiseDead(ctx context.Context, event *domain.OutboxEvent, attempts int, cause error) {
	uc.metrics.RecordOperation(ctx, "outbox", event.EventType, "dead")
	if uc.alerter != nil {
		uc.alerter.Alert(ctx, alert.Alert{
			Kind:    alert.KindOutboxDead,
			Message: "outbox event is dead and needs manual intervention",
			Attrs: []slog.Attr{
				slog.String("event_id", event.ID.String()),
				slog.String("event_type", event.EventType),
				slog.String("idempotency_key", event.IdempotencyKey),
				slog.Int("attempt_count", attempts),
				slog.String("error", cause.Error()),
			},
		})
	}
}
