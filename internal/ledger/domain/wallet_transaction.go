// Package domain defines the ledger entities: one wallet transaction row per money movement.
// Rows are append-only; amounts are never rewritten and corrections are new refund rows.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies a money movement.
type Kind string

const (
	KindEscrow  Kind = "escrow"
	KindRelease Kind = "release"
	KindFee     Kind = "fee"
	KindRefund  Kind = "refund"
)

// Status is the settlement state of a wallet transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// WalletTransaction is a single ledger row. At most one release and one fee row exist per
// bounty; the storage layer enforces this with a unique (bounty_id, kind) constraint.
// Amount is expressed in minor currency units.
type WalletTransaction struct {
	ID                  uuid.UUID
	BountyID            string
	UserID              string
	Kind                Kind
	Amount              int64
	Currency            string
	Status              Status
	ExternalTransferRef *string
	IdempotencyKey      string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
