package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/allisson/payouts/internal/alert"
	ledgerDomain "github.com/allisson/payouts/internal/ledger/domain"
	"github.com/allisson/payouts/internal/metrics"
	outboxDomain "github.com/allisson/payouts/internal/outbox/domain"
	webhookDedupe "github.com/allisson/payouts/internal/webhook/dedupe"
	webhookDomain "github.com/allisson/payouts/internal/webhook/domain"
)

type webhookUseCase struct {
	walletRepo WalletTransactionRepository
	outboxRepo OutboxEventRepository
	finalizer  Finalizer
	dedupe     Deduplicator
	alerter    alert.Alerter
	metrics    metrics.BusinessMetrics
	logger     *slog.Logger
}

// NewWebhookUseCase creates a WebhookUseCase. A nil dedupe processes every delivery.
func NewWebhookUseCase(
	walletRepo WalletTransactionRepository,
	outboxRepo OutboxEventRepository,
	finalizer Finalizer,
	dedupe Deduplicator,
	alerter alert.Alerter,
	businessMetrics metrics.BusinessMetrics,
	logger *slog.Logger,
) WebhookUseCase {
	if dedupe == nil {
		dedupe = webhookDedupe.NoopDeduplicator{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if businessMetrics == nil {
		businessMetrics = metrics.NewNoOpBusinessMetrics()
	}
	return &webhookUseCase{
		walletRepo: walletRepo,
		outboxRepo: outboxRepo,
		finalizer:  finalizer,
		dedupe:     dedupe,
		alerter:    alerter,
		metrics:    businessMetrics,
		logger:     logger,
	}
}

// Ingest applies a notification. Replays, unknown keys and already settled releases are
// reported as outcomes, not errors; an error means the delivery should be retried.
func (uc *webhookUseCase) Ingest(
	ctx context.Context,
	n *webhookDomain.Notification,
) (webhookDomain.Outcome, error) {
	if err := n.Validate(); err != nil {
		return "", err
	}

	first, err := uc.dedupe.Claim(ctx, n.ID)
	if err != nil {
		uc.logger.Warn("webhook dedupe unavailable", slog.String("delivery_id", n.ID), slog.Any("error", err))
		first = true
	}
	if !first {
		uc.record(ctx, n, webhookDomain.OutcomeReplayed)
		return webhookDomain.OutcomeReplayed, nil
	}

	outcome, err := uc.apply(ctx, n)
	if err != nil {
		if rerr := uc.dedupe.Release(ctx, n.ID); rerr != nil {
			uc.logger.Warn("failed to release webhook delivery", slog.String("delivery_id", n.ID), slog.Any("error", rerr))
		}
		return "", err
	}

	uc.record(ctx, n, outcome)
	return outcome, nil
}

func (uc *webhookUseCase) apply(ctx context.Context, n *webhookDomain.Notification) (webhookDomain.Outcome, error) {
	row, err := uc.walletRepo.GetByIdempotencyKey(ctx, n.IdempotencyKey)
	if errors.Is(err, ledgerDomain.ErrTransactionNotFound) || (err == nil && row.Kind != ledgerDomain.KindRelease) {
		uc.logger.Warn("webhook does not match any release",
			slog.String("delivery_id", n.ID),
			slog.String("idempotency_key", n.IdempotencyKey),
		)
		if uc.alerter != nil {
			uc.alerter.Alert(ctx, alert.Alert{
				Kind:    alert.KindWebhookUnmatched,
				Message: "gateway notification does not match any release",
				Attrs: []slog.Attr{
					slog.String("delivery_id", n.ID),
					slog.String("idempotency_key", n.IdempotencyKey),
					slog.String("transfer_id", n.TransferID),
				},
			})
		}
		return webhookDomain.OutcomeUnmatched, nil
	}
	if err != nil {
		return "", err
	}

	if row.Status.IsTerminal() {
		return webhookDomain.OutcomeAlreadyFinal, nil
	}

	if n.Type == webhookDomain.NotificationTypeTransferPaid {
		return uc.paid(ctx, n, row)
	}
	return uc.failed(ctx, n, row)
}

func (uc *webhookUseCase) paid(
	ctx context.Context,
	n *webhookDomain.Notification,
	row *ledgerDomain.WalletTransaction,
) (webhookDomain.Outcome, error) {
	changed, err := uc.finalizer.Complete(ctx, row.BountyID, n.TransferID)
	if err != nil {
		return "", err
	}
	if !changed {
		return webhookDomain.OutcomeAlreadyFinal, nil
	}

	event, err := uc.liveEvent(ctx, row.IdempotencyKey)
	if err != nil {
		return "", err
	}
	if event != nil {
		if _, err := uc.outboxRepo.Complete(ctx, event.ID); err != nil {
			return "", err
		}
	}
	return webhookDomain.OutcomeCompleted, nil
}

func (uc *webhookUseCase) failed(
	ctx context.Context,
	n *webhookDomain.Notification,
	row *ledgerDomain.WalletTransaction,
) (webhookDomain.Outcome, error) {
	reason := n.FailureReason()
	changed, err := uc.finalizer.Fail(ctx, row.BountyID, reason)
	if err != nil {
		return "", err
	}
	if !changed {
		return webhookDomain.OutcomeAlreadyFinal, nil
	}

	event, err := uc.liveEvent(ctx, row.IdempotencyKey)
	if err != nil {
		return "", err
	}
	if event != nil {
		if _, err := uc.outboxRepo.MarkDead(ctx, event.ID, event.AttemptCount, reason); err != nil {
			return "", err
		}
	}

	if uc.alerter != nil {
		uc.alerter.Alert(ctx, alert.Alert{
			Kind:     alert.KindTransferFailed,
			BountyID: row.BountyID,
			Message:  "gateway reported hunter transfer failed",
			Attrs: []slog.Attr{
				slog.String("transfer_id", n.TransferID),
				slog.String("reason", reason),
			},
		})
	}
	return webhookDomain.OutcomeFailed, nil
}

// liveEvent returns the pending or processing outbox event for key, or nil.
func (uc *webhookUseCase) liveEvent(ctx context.Context, key string) (*outboxDomain.OutboxEvent, error) {
	event, err := uc.outboxRepo.GetByIdempotencyKey(ctx, key)
	if errors.Is(err, outboxDomain.ErrOutboxEventNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if event.Status.IsTerminal() {
		return nil, nil
	}
	return event, nil
}

func (uc *webhookUseCase) record(ctx context.Context, n *webhookDomain.Notification, outcome webhookDomain.Outcome) {
	uc.metrics.RecordOperation(ctx, "webhook", string(n.Type), string(outcome))
	uc.logger.Info("webhook ingested",
		slog.String("delivery_id", n.ID),
		slog.String("type", string(n.Type)),
		slog.String("outcome", string(outcome)),
	)
}
