// Package usecase implements the completion release flow: it records the hunter payout and the
// platform fee, moves the money through the payment gateway, and settles the ledger once the
// gateway confirms the transfer, either synchronously, from the outbox worker or from a webhook.
package usecase

import (
	"context"

	bountyDomain "github.com/allisson/payouts/internal/bounty/domain"
	ledgerDomain "github.com/allisson/payouts/internal/ledger/domain"
	outboxDomain "github.com/allisson/payouts/internal/outbox/domain"
	releaseDomain "github.com/allisson/payouts/internal/release/domain"
)

// WalletTransactionRepository defines the ledger operations the release flow needs.
type WalletTransactionRepository interface {
	Create(ctx context.Context, txn *ledgerDomain.WalletTransaction) error
	GetByBountyAndKind(
		ctx context.Context,
		bountyID string,
		kind ledgerDomain.Kind,
	) (*ledgerDomain.WalletTransaction, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*ledgerDomain.WalletTransaction, error)
	ListByBounty(ctx context.Context, bountyID string) ([]*ledgerDomain.WalletTransaction, error)
	Transition(
		ctx context.Context,
		bountyID string,
		kind ledgerDomain.Kind,
		to ledgerDomain.Status,
		externalRef *string,
	) (bool, error)
}

// BountyRepository defines access to marketplace bounties and payout accounts.
type BountyRepository interface {
	Get(ctx context.Context, id string) (*bountyDomain.Bounty, error)
	GetPayoutDestination(ctx context.Context, userID string) (string, error)
	MarkPaid(ctx context.Context, id string) (bool, error)
}

// OutboxEventRepository defines the outbox operations used when a transfer is deferred.
type OutboxEventRepository interface {
	Create(ctx context.Context, event *outboxDomain.OutboxEvent) error
	GetByIdempotencyKey(ctx context.Context, key string) (*outboxDomain.OutboxEvent, error)
}

// ReleaseUseCase defines the completion release business logic.
type ReleaseUseCase interface {
	// ReleaseFunds records and executes the payout of a bounty's escrow.
	// A second call for the same bounty returns releaseDomain.ErrDuplicateRelease.
	ReleaseFunds(ctx context.Context, input *releaseDomain.ReleaseInput) (*releaseDomain.ReleaseResult, error)
	GetStatus(ctx context.Context, bountyID string) (*releaseDomain.ReleaseStatus, error)
}
