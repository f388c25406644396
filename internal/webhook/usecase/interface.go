// Package usecase applies gateway webhook notifications to the ledger and the outbox.
package usecase

import (
	"context"

	"github.com/google/uuid"

	ledgerDomain "github.com/allisson/payouts/internal/ledger/domain"
	outboxDomain "github.com/allisson/payouts/internal/outbox/domain"
	webhookDomain "github.com/allisson/payouts/internal/webhook/domain"
)

// WalletTransactionRepository finds the ledger row a notification refers to.
type WalletTransactionRepository interface {
	GetByIdempotencyKey(ctx context.Context, key string) (*ledgerDomain.WalletTransaction, error)
}

// OutboxEventRepository closes the deferred transfer once the gateway reports its outcome.
type OutboxEventRepository interface {
	GetByIdempotencyKey(ctx context.Context, key string) (*outboxDomain.OutboxEvent, error)
	Complete(ctx context.Context, id uuid.UUID) (bool, error)
	MarkDead(ctx context.Context, id uuid.UUID, attemptCount int, lastError string) (bool, error)
}

// Finalizer settles a release. Both methods are no-ops once the release left pending.
type Finalizer interface {
	Complete(ctx context.Context, bountyID, transferRef string) (bool, error)
	Fail(ctx context.Context, bountyID, reason string) (bool, error)
}

// Deduplicator remembers delivery IDs that were already applied.
type Deduplicator interface {
	Claim(ctx context.Context, deliveryID string) (bool, error)
	Release(ctx context.Context, deliveryID string) error
}

// WebhookUseCase ingests authenticated gateway notifications.
type WebhookUseCase interface {
	Ingest(ctx context.Context, notification *webhookDomain.Notification) (webhookDomain.Outcome, error)
}
