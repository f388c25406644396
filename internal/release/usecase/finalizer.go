package usecase

import (
	"context"
	"log/slog"

	"github.com/allisson/payouts/internal/database"
	ledgerDomain "github.com/allisson/payouts/internal/ledger/domain"
)

// Finalizer applies the terminal outcome of a hunter transfer to the ledger.
// Every transition is conditional on the rows still being pending, so the synchronous path,
// the outbox worker and the webhook can race and exactly one of them settles the bounty.
type Finalizer struct {
	txManager  database.TxManager
	walletRepo WalletTransactionRepository
	bountyRepo BountyRepository
	logger     *slog.Logger
}

// NewFinalizer creates a Finalizer.
func NewFinalizer(
	txManager database.TxManager,
	walletRepo WalletTransactionRepository,
	bountyRepo BountyRepository,
	logger *slog.Logger,
) *Finalizer {
	return &Finalizer{
		txManager:  txManager,
		walletRepo: walletRepo,
		bountyRepo: bountyRepo,
		logger:     logger,
	}
}

// Complete marks the release and fee rows completed and flips the bounty to paid.
// It returns false when the release row had already left pending.
func (f *Finalizer) Complete(ctx context.Context, bountyID, transferRef string) (bool, error) {
	var ref *string
	if transferRef != "" {
		ref = &transferRef
	}

	var changed bool
	err := f.txManager.WithTx(ctx, func(ctx context.Context) error {
		ok, err := f.walletRepo.Transition(ctx, bountyID, ledgerDomain.KindRelease, ledgerDomain.StatusCompleted, ref)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		changed = true

		if _, err := f.walletRepo.Transition(
			ctx, bountyID, ledgerDomain.KindFee, ledgerDomain.StatusCompleted, ref,
		); err != nil {
			return err
		}

		paid, err := f.bountyRepo.MarkPaid(ctx, bountyID)
		if err != nil {
			return err
		}
		if !paid && f.logger != nil {
			f.logger.Warn("bounty was not awaiting release when settled", slog.String("bounty_id", bountyID))
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	if changed && f.logger != nil {
		f.logger.Info("release completed",
			slog.String("bounty_id", bountyID),
			slog.String("transfer_ref", transferRef),
		)
	}
	return changed, nil
}

// Fail marks the release and fee rows failed. It returns false when the release row had
// already left pending.
func (f *Finalizer) Fail(ctx context.Context, bountyID, reason string) (bool, error) {
	var changed bool
	err := f.txManager.WithTx(ctx, func(ctx context.Context) error {
		ok, err := f.walletRepo.Transition(ctx, bountyID, ledgerDomain.KindRelease, ledgerDomain.StatusFailed, nil)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		changed = true

		_, err = f.walletRepo.Transition(ctx, bountyID, ledgerDomain.KindFee, ledgerDomain.StatusFailed, nil)
		return err
	})
	if err != nil {
		return false, err
	}

	if changed && f.logger != nil {
		f.logger.Warn("release failed",
			slog.String("bounty_id", bountyID),
			slog.String("reason", reason),
		)
	}
	return changed, nil
}
