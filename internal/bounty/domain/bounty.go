// Package domain defines the bounty view used by the release engine.
// Bounties are owned by the marketplace; the engine only reads them and flips the status to paid.
package domain

import (
	"github.com/allisson/payouts/internal/errors"
)

// Status is the marketplace lifecycle state of a bounty.
type Status string

const (
	StatusCompletedPendingRelease Status = "completed_pending_release"
	StatusPaid                    Status = "paid"
)

// Bounty is the subset of a marketplace bounty needed to release its escrow.
type Bounty struct {
	ID       string
	Status   Status
	HunterID string
	Amount   int64
	Currency string
}

// IsReleasable reports whether the escrow of b may be released.
func (b *Bounty) IsReleasable() bool {
	return b.Status == StatusCompletedPendingRelease
}

// Bounty-specific error definitions.
var (
	ErrBountyNotFound = errors.Wrap(errors.ErrNotFound, "bounty not found")

	ErrBountyNotReleasable = errors.Wrap(errors.ErrInvalidInput, "bounty is not awaiting release")

	ErrHunterMismatch = errors.Wrap(errors.ErrInvalidInput, "hunter does not match bounty")

	ErrPayoutDestinationNotFound = errors.Wrap(errors.ErrInvalidInput, "hunter has no payout destination")
)
