package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/payouts/internal/alert"
	bountyDomain "github.com/allisson/payouts/internal/bounty/domain"
	"github.com/allisson/payouts/internal/database"
	apperrors "github.com/allisson/payouts/internal/errors"
	"github.com/allisson/payouts/internal/gateway"
	ledgerDomain "github.com/allisson/payouts/internal/ledger/domain"
	outboxDomain "github.com/allisson/payouts/internal/outbox/domain"
	releaseDomain "github.com/allisson/payouts/internal/release/domain"
)

// Config holds release use case configuration.
type Config struct {
	DefaultFeeRate    ledgerDomain.FeeRate
	PlatformAccountID string
	DefaultCurrency   string
	// Backoff schedules the first outbox retry after a retryable synchronous failure.
	Backoff outboxDomain.BackoffPolicy
	// Now defaults to time.Now.
	Now func() time.Time
}

// releaseUseCase implements ReleaseUseCase.
type releaseUseCase struct {
	config     Config
	txManager  database.TxManager
	walletRepo WalletTransactionRepository
	bountyRepo BountyRepository
	outboxRepo OutboxEventRepository
	gateway    gateway.Adapter
	finalizer  *Finalizer
	alerter    alert.Alerter
	logger     *slog.Logger
}

// NewReleaseUseCase creates a new ReleaseUseCase.
func NewReleaseUseCase(
	config Config,
	txManager database.TxManager,
	walletRepo WalletTransactionRepository,
	bountyRepo BountyRepository,
	outboxRepo OutboxEventRepository,
	gw gateway.Adapter,
	finalizer *Finalizer,
	alerter alert.Alerter,
	logger *slog.Logger,
) ReleaseUseCase {
	if config.Now == nil {
		config.Now = time.Now
	}
	return &releaseUseCase{
		config:     config,
		txManager:  txManager,
		walletRepo: walletRepo,
		bountyRepo: bountyRepo,
		outboxRepo: outboxRepo,
		gateway:    gw,
		finalizer:  finalizer,
		alerter:    alerter,
		logger:     logger,
	}
}

// ReleaseFunds inserts pending release and fee rows, then transfers the hunter's share.
// The (bounty_id, kind) constraint on the insert is the only guard against paying twice.
func (uc *releaseUseCase) ReleaseFunds(
	ctx context.Context,
	input *releaseDomain.ReleaseInput,
) (*releaseDomain.ReleaseResult, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	rate := uc.config.DefaultFeeRate
	if input.PlatformFeePercent != "" {
		parsed, err := ledgerDomain.ParseFeePercent(input.PlatformFeePercent)
		if err != nil {
			return nil, err
		}
		rate = parsed
	}

	bounty, err := uc.bountyRepo.Get(ctx, input.BountyID)
	if err != nil {
		if errors.Is(err, bountyDomain.ErrBountyNotFound) {
			return nil, releaseDomain.ErrUnknownBounty
		}
		return nil, err
	}

	if !bounty.IsReleasable() {
		// A paid bounty usually means this is a replay of an accepted release.
		if _, err := uc.walletRepo.GetByBountyAndKind(ctx, bounty.ID, ledgerDomain.KindRelease); err == nil {
			return nil, releaseDomain.ErrDuplicateRelease
		}
		return nil, bountyDomain.ErrBountyNotReleasable
	}

	if bounty.HunterID != input.HunterID {
		return nil, bountyDomain.ErrHunterMismatch
	}

	escrow, err := uc.walletRepo.GetByBountyAndKind(ctx, bounty.ID, ledgerDomain.KindEscrow)
	if err != nil {
		if errors.Is(err, ledgerDomain.ErrTransactionNotFound) {
			return nil, releaseDomain.ErrEscrowNotFound
		}
		return nil, err
	}
	if escrow.Status != ledgerDomain.StatusCompleted {
		return nil, releaseDomain.ErrEscrowNotFound
	}
	if escrow.ExternalTransferRef != nil && *escrow.ExternalTransferRef != "" &&
		*escrow.ExternalTransferRef != input.ConfirmationRef {
		return nil, releaseDomain.ErrConfirmationMismatch
	}

	destination, err := uc.bountyRepo.GetPayoutDestination(ctx, bounty.HunterID)
	if err != nil {
		return nil, err
	}

	split, err := ledgerDomain.SplitEscrow(escrow.Amount, rate)
	if err != nil {
		return nil, err
	}

	currency := escrow.Currency
	if currency == "" {
		currency = bounty.Currency
	}
	if currency == "" {
		currency = uc.config.DefaultCurrency
	}

	now := uc.config.Now().UTC()
	releaseRow := &ledgerDomain.WalletTransaction{
		ID:             uuid.Must(uuid.NewV7()),
		BountyID:       bounty.ID,
		UserID:         bounty.HunterID,
		Kind:           ledgerDomain.KindRelease,
		Amount:         split.Release,
		Currency:       currency,
		Status:         ledgerDomain.StatusPending,
		IdempotencyKey: ledgerDomain.IdempotencyKey(bounty.ID, ledgerDomain.KindRelease),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	feeRow := &ledgerDomain.WalletTransaction{
		ID:             uuid.Must(uuid.NewV7()),
		BountyID:       bounty.ID,
		UserID:         uc.config.PlatformAccountID,
		Kind:           ledgerDomain.KindFee,
		Amount:         split.Fee,
		Currency:       currency,
		Status:         ledgerDomain.StatusPending,
		IdempotencyKey: ledgerDomain.IdempotencyKey(bounty.ID, ledgerDomain.KindFee),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := uc.walletRepo.Create(ctx, releaseRow); err != nil {
			return err
		}
		return uc.walletRepo.Create(ctx, feeRow)
	})
	if err != nil {
		if errors.Is(err, ledgerDomain.ErrDuplicateTransaction) {
			return nil, releaseDomain.ErrDuplicateRelease
		}
		return nil, err
	}

	result := &releaseDomain.ReleaseResult{
		BountyID:       bounty.ID,
		Accepted:       true,
		ReleaseAmount:  split.Release,
		FeeAmount:      split.Fee,
		Currency:       currency,
		IdempotencyKey: releaseRow.IdempotencyKey,
	}

	// The rows are committed; bookkeeping below must not be abandoned with the request.
	ctx = context.WithoutCancel(ctx)

	if split.Release == 0 {
		if _, err := uc.finalizer.Complete(ctx, bounty.ID, ""); err != nil {
			return nil, err
		}
		return result, nil
	}

	transfer, err := uc.gateway.CreateTransfer(ctx, gateway.TransferRequest{
		Amount:         split.Release,
		Currency:       currency,
		DestinationRef: destination,
		IdempotencyKey: releaseRow.IdempotencyKey,
		Metadata:       map[string]string{"bounty_id": bounty.ID},
	})
	if err == nil {
		if _, err := uc.finalizer.Complete(ctx, bounty.ID, transfer.ID); err != nil {
			return nil, err
		}
		result.TransferRef = transfer.ID
		return result, nil
	}

	if gateway.IsPermanent(err) {
		if _, ferr := uc.finalizer.Fail(ctx, bounty.ID, err.Error()); ferr != nil {
			return nil, ferr
		}
		if uc.alerter != nil {
			uc.alerter.Alert(ctx, alert.Alert{
				Kind:     alert.KindTransferFailed,
				BountyID: bounty.ID,
				Message:  "hunter transfer permanently rejected",
				Attrs:    []slog.Attr{slog.String("error", err.Error())},
			})
		}
		return nil, err
	}

	if err := uc.enqueueTransfer(ctx, releaseRow, destination, now, err); err != nil {
		return nil, err
	}
	result.Pending = true
	return result, nil
}

// enqueueTransfer defers the transfer to the outbox worker; the first sync attempt counts.
func (uc *releaseUseCase) enqueueTransfer(
	ctx context.Context,
	releaseRow *ledgerDomain.WalletTransaction,
	destination string,
	now time.Time,
	cause error,
) error {
	payload := &outboxDomain.ReleaseTransferPayload{
		BountyID:       releaseRow.BountyID,
		HunterID:       releaseRow.UserID,
		Amount:         releaseRow.Amount,
		Currency:       releaseRow.Currency,
		DestinationRef: destination,
		IdempotencyKey: releaseRow.IdempotencyKey,
	}

	event, err := outboxDomain.NewEvent(payload, 1, now.Add(uc.config.Backoff.Delay(1)))
	if err != nil {
		return err
	}
	lastError := cause.Error()
	event.LastError = &lastError

	if err := uc.outboxRepo.Create(ctx, event); err != nil {
		return apperrors.Wrap(err, "failed to enqueue release transfer")
	}

	if uc.logger != nil {
		uc.logger.Warn("release transfer deferred",
			slog.String("bounty_id", releaseRow.BountyID),
			slog.String("event_id", event.ID.String()),
			slog.Time("next_attempt_at", event.NextAttemptAt),
			slog.Any("error", cause),
		)
	}
	return nil
}

// GetStatus summarizes the ledger rows and outbox state of a bounty.
func (uc *releaseUseCase) GetStatus(ctx context.Context, bountyID string) (*releaseDomain.ReleaseStatus, error) {
	txns, err := uc.walletRepo.ListByBounty(ctx, bountyID)
	if err != nil {
		return nil, err
	}
	if len(txns) == 0 {
		return nil, releaseDomain.ErrNoLedgerActivity
	}

	status := &releaseDomain.ReleaseStatus{
		BountyID: bountyID,
		Drift:    ledgerDomain.BalanceOf(txns).Drift(),
	}

	for _, txn := range txns {
		entry := toEntry(txn)
		switch txn.Kind {
		case ledgerDomain.KindEscrow:
			status.Escrow = &entry
		case ledgerDomain.KindRelease:
			status.Release = &entry
			status.Settled = txn.Status == ledgerDomain.StatusCompleted
		case ledgerDomain.KindFee:
			status.Fee = &entry
		case ledgerDomain.KindRefund:
			status.Refunds = append(status.Refunds, entry)
		}
	}

	if status.Release != nil {
		key := ledgerDomain.IdempotencyKey(bountyID, ledgerDomain.KindRelease)
		event, err := uc.outboxRepo.GetByIdempotencyKey(ctx, key)
		switch {
		case err == nil:
			summary := &releaseDomain.OutboxSummary{
				Status:        string(event.Status),
				AttemptCount:  event.AttemptCount,
				NextAttemptAt: event.NextAttemptAt,
			}
			if event.LastError != nil {
				summary.LastError = *event.LastError
			}
			status.Outbox = summary
		case !errors.Is(err, outboxDomain.ErrOutboxEventNotFound):
			return nil, err
		}
	}

	return status, nil
}

func toEntry(txn *ledgerDomain.WalletTransaction) releaseDomain.Entry {
	entry := releaseDomain.Entry{
		Kind:      string(txn.Kind),
		UserID:    txn.UserID,
		Amount:    txn.Amount,
		Currency:  txn.Currency,
		Status:    string(txn.Status),
		UpdatedAt: txn.UpdatedAt,
	}
	if txn.ExternalTransferRef != nil {
		entry.TransferRef = *txn.ExternalTransferRef
	}
	return entry
}
