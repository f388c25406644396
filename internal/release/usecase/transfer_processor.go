package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/allisson/payouts/internal/gateway"
	ledgerDomain "github.com/allisson/payouts/internal/ledger/domain"
	outboxDomain "github.com/allisson/payouts/internal/outbox/domain"
)

// TransferProcessor re-issues deferred hunter transfers for the outbox worker.
type TransferProcessor struct {
	walletRepo WalletTransactionRepository
	gateway    gateway.Adapter
	finalizer  *Finalizer
	logger     *slog.Logger
}

// NewTransferProcessor creates a TransferProcessor.
func NewTransferProcessor(
	walletRepo WalletTransactionRepository,
	gw gateway.Adapter,
	finalizer *Finalizer,
	logger *slog.Logger,
) *TransferProcessor {
	return &TransferProcessor{
		walletRepo: walletRepo,
		gateway:    gw,
		finalizer:  finalizer,
		logger:     logger,
	}
}

// Process retries the transfer with the original idempotency key. A release already settled
// by a webhook is acknowledged without calling the gateway.
func (p *TransferProcessor) Process(
	ctx context.Context,
	event *outboxDomain.OutboxEvent,
	payload outboxDomain.Payload,
) error {
	transfer, ok := payload.(*outboxDomain.ReleaseTransferPayload)
	if !ok {
		return fmt.Errorf("%w: unexpected payload %T", outboxDomain.ErrPermanentFailure, payload)
	}

	row, err := p.walletRepo.GetByIdempotencyKey(ctx, transfer.IdempotencyKey)
	if err != nil {
		if errors.Is(err, ledgerDomain.ErrTransactionNotFound) {
			return fmt.Errorf("%w: %w", outboxDomain.ErrPermanentFailure, err)
		}
		return err
	}
	if row.Status.IsTerminal() {
		if p.logger != nil {
			p.logger.Info("release already settled, skipping transfer",
				slog.String("event_id", event.ID.String()),
				slog.String("bounty_id", transfer.BountyID),
				slog.String("status", string(row.Status)),
			)
		}
		return nil
	}

	result, err := p.gateway.CreateTransfer(ctx, gateway.TransferRequest{
		Amount:         transfer.Amount,
		Currency:       transfer.Currency,
		DestinationRef: transfer.DestinationRef,
		IdempotencyKey: transfer.IdempotencyKey,
		Metadata:       map[string]string{"bounty_id": transfer.BountyID},
	})
	if err != nil {
		if gateway.IsPermanent(err) {
			if _, ferr := p.finalizer.Fail(ctx, transfer.BountyID, err.Error()); ferr != nil {
				return ferr
			}
			return fmt.Errorf("%w: %w", outboxDomain.ErrPermanentFailure, err)
		}
		return err
	}

	_, err = p.finalizer.Complete(ctx, transfer.BountyID, result.ID)
	return err
}
