package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/payouts/internal/alert"
	bountyDomain "github.com/allisson/payouts/internal/bounty/domain"
	"github.com/allisson/payouts/internal/gateway"
	ledgerDomain "github.com/allisson/payouts/internal/ledger/domain"
	outboxDomain "github.com/allisson/payouts/internal/outbox/domain"
	outboxUsecase "github.com/allisson/payouts/internal/outbox/usecase"
	"github.com/allisson/payouts/internal/testutil/memory"
)

func newWorker(f *fixture, maxAttempts int) *outboxUsecase.OutboxUseCase {
	processor := NewTransferProcessor(f.ledger, f.gateway, f.finalizer, nil)
	return outboxUsecase.NewOutboxUseCase(
		outboxUsecase.Config{
			Interval:    time.Second,
			BatchSize:   10,
			MaxAttempts: maxAttempts,
			Backoff:     outboxDomain.BackoffPolicy{Base: time.Second, Cap: time.Minute},
			StaleAfter:  time.Minute,
			Now:         f.clock.Now,
		},
		memory.TxManager{},
		f.outbox,
		map[string]outboxUsecase.EventProcessor{outboxDomain.EventTypeReleaseTransfer: processor},
		f.alerts,
		nil,
		nil,
	)
}

func (f *fixture) event(t *testing.T) outboxDomain.OutboxEvent {
	t.Helper()
	events := f.outbox.Events()
	require.Len(t, events, 1)
	return events[0]
}

func TestOutboxRetries_BackoffThenSuccess(t *testing.T) {
	f := newFixture(t, memory.NewGateway(timeoutErr(), timeoutErr(), timeoutErr()))
	worker := newWorker(f, 5)
	ctx := context.Background()

	result, err := f.useCase.ReleaseFunds(ctx, releaseInput("5"))
	require.NoError(t, err)
	require.True(t, result.Pending)

	var delays []time.Duration
	failedAt := f.clock.Now()
	for i := 0; i < 10; i++ {
		event := f.event(t)
		if event.Status == outboxDomain.OutboxEventStatusCompleted {
			break
		}
		require.Equal(t, outboxDomain.OutboxEventStatusPending, event.Status)
		delays = append(delays, event.NextAttemptAt.Sub(failedAt))

		// Nothing happens before the event is due.
		f.clock.Set(event.NextAttemptAt.Add(-time.Millisecond))
		calls := len(f.gateway.Calls())
		require.NoError(t, worker.ProcessEvents(ctx))
		require.Len(t, f.gateway.Calls(), calls)

		f.clock.Set(event.NextAttemptAt)
		failedAt = f.clock.Now()
		require.NoError(t, worker.ProcessEvents(ctx))
	}

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, delays)

	event := f.event(t)
	assert.Equal(t, outboxDomain.OutboxEventStatusCompleted, event.Status)

	calls := f.gateway.Calls()
	require.Len(t, calls, 4)
	for _, call := range calls {
		assert.Equal(t, result.IdempotencyKey, call.IdempotencyKey)
	}

	assert.Equal(t, ledgerDomain.StatusCompleted, f.row(t, ledgerDomain.KindRelease).Status)
	assert.Equal(t, ledgerDomain.StatusCompleted, f.row(t, ledgerDomain.KindFee).Status)
	assert.Equal(t, bountyDomain.StatusPaid, f.bountyStatus(t))
	assert.Empty(t, f.alerts.Alerts())
}

func TestOutboxRetries_ExhaustedEventIsDeadAndNeverRetried(t *testing.T) {
	f := newFixture(t, memory.NewGateway(timeoutErr(), timeoutErr(), timeoutErr(), timeoutErr()))
	worker := newWorker(f, 3)
	ctx := context.Background()

	_, err := f.useCase.ReleaseFunds(ctx, releaseInput("5"))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		f.clock.Set(f.event(t).NextAttemptAt)
		require.NoError(t, worker.ProcessEvents(ctx))
	}

	event := f.event(t)
	assert.Equal(t, outboxDomain.OutboxEventStatusDead, event.Status)
	assert.Equal(t, 3, event.AttemptCount)
	assert.Equal(t, 1, f.alerts.Count(alert.KindOutboxDead))

	// Rows stay pending until an operator acts.
	assert.Equal(t, ledgerDomain.StatusPending, f.row(t, ledgerDomain.KindRelease).Status)

	f.clock.Set(f.clock.Now().Add(time.Hour))
	require.NoError(t, worker.ProcessEvents(ctx))
	assert.Len(t, f.gateway.Calls(), 3)
}

// abandonClaim claims the event the way a worker would and then never finishes it.
func (f *fixture) abandonClaim(t *testing.T) {
	t.Helper()
	event := f.event(t)
	f.clock.Set(event.NextAttemptAt)
	claimed, err := f.outbox.Claim(context.Background(), event.ID, f.clock.Now())
	require.NoError(t, err)
	require.True(t, claimed)
	f.clock.Set(f.clock.Now().Add(2 * time.Minute))
}

func TestOutboxRetries_AbandonedClaimCountsAsAttempt(t *testing.T) {
	f := newFixture(t, memory.NewGateway(timeoutErr()))
	worker := newWorker(f, 5)
	ctx := context.Background()

	_, err := f.useCase.ReleaseFunds(ctx, releaseInput("5"))
	require.NoError(t, err)

	f.abandonClaim(t)
	require.NoError(t, worker.ProcessEvents(ctx))

	event := f.event(t)
	assert.Equal(t, outboxDomain.OutboxEventStatusCompleted, event.Status)
	assert.Equal(t, 2, event.AttemptCount)
	assert.Len(t, f.gateway.Calls(), 2)
	assert.Equal(t, bountyDomain.StatusPaid, f.bountyStatus(t))
}

func TestOutboxRetries_AbandonedLastAttemptGoesDead(t *testing.T) {
	f := newFixture(t, memory.NewGateway(timeoutErr()))
	worker := newWorker(f, 2)
	ctx := context.Background()

	_, err := f.useCase.ReleaseFunds(ctx, releaseInput("5"))
	require.NoError(t, err)

	f.abandonClaim(t)
	require.NoError(t, worker.ProcessEvents(ctx))

	event := f.event(t)
	assert.Equal(t, outboxDomain.OutboxEventStatusDead, event.Status)
	assert.Equal(t, 2, event.AttemptCount)
	require.NotNil(t, event.LastError)
	assert.Equal(t, outboxDomain.ErrAbandoned.Error(), *event.LastError)
	assert.Equal(t, 1, f.alerts.Count(alert.KindOutboxDead))
	assert.Equal(t, ledgerDomain.StatusPending, f.row(t, ledgerDomain.KindRelease).Status)

	// Dead means dead: later ticks never reach the gateway again.
	f.clock.Set(f.clock.Now().Add(time.Hour))
	require.NoError(t, worker.ProcessEvents(ctx))
	assert.Len(t, f.gateway.Calls(), 1)
}

func TestOutboxRetries_PermanentFailureFailsRows(t *testing.T) {
	f := newFixture(t, memory.NewGateway(
		timeoutErr(),
		gateway.NewPermanentError("compliance_block", "blocked"),
	))
	worker := newWorker(f, 5)
	ctx := context.Background()

	_, err := f.useCase.ReleaseFunds(ctx, releaseInput("5"))
	require.NoError(t, err)

	f.clock.Set(f.event(t).NextAttemptAt)
	require.NoError(t, worker.ProcessEvents(ctx))

	assert.Equal(t, outboxDomain.OutboxEventStatusDead, f.event(t).Status)
	assert.Equal(t, ledgerDomain.StatusFailed, f.row(t, ledgerDomain.KindRelease).Status)
	assert.Equal(t, ledgerDomain.StatusFailed, f.row(t, ledgerDomain.KindFee).Status)
	assert.Equal(t, 1, f.alerts.Count(alert.KindOutboxDead))
}

func TestTransferProcessor_SkipsSettledRelease(t *testing.T) {
	f := newFixture(t, memory.NewGateway(timeoutErr()))
	worker := newWorker(f, 5)
	ctx := context.Background()

	_, err := f.useCase.ReleaseFunds(ctx, releaseInput("5"))
	require.NoError(t, err)

	changed, err := f.finalizer.Complete(ctx, testBountyID, "tr_from_webhook")
	require.NoError(t, err)
	require.True(t, changed)

	f.clock.Set(f.event(t).NextAttemptAt)
	require.NoError(t, worker.ProcessEvents(ctx))

	assert.Equal(t, outboxDomain.OutboxEventStatusCompleted, f.event(t).Status)
	assert.Len(t, f.gateway.Calls(), 1)
	release := f.row(t, ledgerDomain.KindRelease)
	assert.Equal(t, "tr_from_webhook", *release.ExternalTransferRef)
}

func TestTransferProcessor_RejectsForeignPayload(t *testing.T) {
	f := newFixture(t, memory.NewGateway())
	processor := NewTransferProcessor(f.ledger, f.gateway, f.finalizer, nil)

	err := processor.Process(context.Background(), &outboxDomain.OutboxEvent{}, nil)
	assert.ErrorIs(t, err, outboxDomain.ErrPermanentFailure)
}

func TestFinalizer_IsIdempotent(t *testing.T) {
	f := newFixture(t, memory.NewGateway(timeoutErr()))
	ctx := context.Background()

	_, err := f.useCase.ReleaseFunds(ctx, releaseInput("5"))
	require.NoError(t, err)

	changed, err := f.finalizer.Complete(ctx, testBountyID, "tr_1")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = f.finalizer.Complete(ctx, testBountyID, "tr_2")
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = f.finalizer.Fail(ctx, testBountyID, "late failure")
	require.NoError(t, err)
	assert.False(t, changed)

	release := f.row(t, ledgerDomain.KindRelease)
	assert.Equal(t, ledgerDomain.StatusCompleted, release.Status)
	assert.Equal(t, "tr_1", *release.ExternalTransferRef)
}
