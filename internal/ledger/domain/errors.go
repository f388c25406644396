package domain

import (
	"github.com/allisson/payouts/internal/errors"
)

// Ledger-specific error definitions.
var (
	// ErrTransactionNotFound indicates no wallet transaction matched the lookup.
	ErrTransactionNotFound = errors.Wrap(errors.ErrNotFound, "wallet transaction not found")

	// ErrDuplicateTransaction indicates a row of the same kind already exists for the bounty.
	ErrDuplicateTransaction = errors.Wrap(errors.ErrConflict, "wallet transaction already exists")

	// ErrInvalidFeePercent indicates the fee percentage is malformed or out of range.
	ErrInvalidFeePercent = errors.Wrap(errors.ErrInvalidInput, "fee percent must be between 0 and 100 with at most two decimals")

	// ErrInvalidAmount indicates a non-positive escrow amount.
	ErrInvalidAmount = errors.Wrap(errors.ErrInvalidInput, "escrow amount must be positive")
)
