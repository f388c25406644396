// Package domain defines the reconciliation report: ledger drift and releases stuck without a transfer.
package domain

import (
	"time"

	ledgerDomain "github.com/allisson/payouts/internal/ledger/domain"
)

// BountyBalance is the aggregated ledger of one bounty.
type BountyBalance struct {
	BountyID string
	ledgerDomain.Balance
}

// Drift is a bounty whose escrow does not equal what was paid out of it.
// Amount is escrow minus settled; negative means more left the escrow than entered it.
type Drift struct {
	BountyID string `json:"bounty_id"`
	Escrow   int64  `json:"escrow"`
	Settled  int64  `json:"settled"`
	Amount   int64  `json:"amount"`
}

// StuckRelease is a pending release row with no live outbox event to move it forward.
type StuckRelease struct {
	BountyID       string    `json:"bounty_id"`
	IdempotencyKey string    `json:"idempotency_key"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	CreatedAt      time.Time `json:"created_at"`
}

// Report is the outcome of one reconciliation pass.
type Report struct {
	StartedAt time.Time      `json:"started_at"`
	Checked   int            `json:"checked"`
	Drifts    []Drift        `json:"drifts"`
	Stuck     []StuckRelease `json:"stuck"`
}

// Clean reports whether the pass found nothing to alert on.
func (r *Report) Clean() bool {
	return len(r.Drifts) == 0 && len(r.Stuck) == 0
}

// DriftOf returns the drift of b, or false when b balances or was not checked.
func DriftOf(b BountyBalance) (Drift, bool) {
	amount := b.Drift()
	if amount == 0 {
		return Drift{}, false
	}
	return Drift{BountyID: b.BountyID, Escrow: b.Escrow, Settled: b.Settled, Amount: amount}, true
}
