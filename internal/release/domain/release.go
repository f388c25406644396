// Package domain defines the completion release request, its outcome and the per-bounty status view.
package domain

import (
	"time"

	validation "github.com/jellydator/validation"

	"github.com/allisson/payouts/internal/errors"
	customValidation "github.com/allisson/payouts/internal/validation"
)

// ReleaseInput asks to pay a bounty's escrow out to its hunter.
// An empty PlatformFeePercent selects the configured default.
type ReleaseInput struct {
	BountyID           string
	HunterID           string
	PlatformFeePercent string
	ConfirmationRef    string
}

// Validate checks the input shape; business preconditions are checked by the use case.
func (i *ReleaseInput) Validate() error {
	err := validation.ValidateStruct(i,
		validation.Field(&i.BountyID, validation.Required, customValidation.Identifier),
		validation.Field(&i.HunterID, validation.Required, customValidation.Identifier),
		validation.Field(&i.PlatformFeePercent, customValidation.FeePercent),
		validation.Field(&i.ConfirmationRef, validation.Required, customValidation.NotBlank,
			customValidation.Reference, validation.Length(1, 255)),
	)
	return customValidation.WrapValidationError(err)
}

// ReleaseResult is the outcome of an accepted release.
// Pending is true when the transfer was deferred to the outbox.
type ReleaseResult struct {
	BountyID       string
	Accepted       bool
	Pending        bool
	TransferRef    string
	ReleaseAmount  int64
	FeeAmount      int64
	Currency       string
	IdempotencyKey string
}

// Entry is one ledger row as reported by the status view.
type Entry struct {
	Kind        string
	UserID      string
	Amount      int64
	Currency    string
	Status      string
	TransferRef string
	UpdatedAt   time.Time
}

// OutboxSummary reports the deferred transfer for a bounty, if any.
type OutboxSummary struct {
	Status        string
	AttemptCount  int
	NextAttemptAt time.Time
	LastError     string
}

// ReleaseStatus summarizes a bounty's ledger.
type ReleaseStatus struct {
	BountyID string
	Escrow   *Entry
	Release  *Entry
	Fee      *Entry
	Refunds  []Entry
	Outbox   *OutboxSummary
	Drift    int64
	Settled  bool
}

// Release-specific error definitions.
var (
	// ErrDuplicateRelease is returned when a release for the bounty was already recorded.
	ErrDuplicateRelease = errors.Wrap(errors.ErrConflict, "release already recorded for bounty")

	ErrUnknownBounty = errors.Wrap(errors.ErrInvalidInput, "bounty does not exist")

	ErrEscrowNotFound = errors.Wrap(errors.ErrInvalidInput, "bounty has no completed escrow")

	ErrConfirmationMismatch = errors.Wrap(errors.ErrInvalidInput, "payment confirmation does not match escrow")

	ErrNoLedgerActivity = errors.Wrap(errors.ErrNotFound, "no ledger activity for bounty")
)
