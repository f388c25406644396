package memory

import (
	"context"
	"time"

	ledgerDomain "github.com/allisson/payouts/internal/ledger/domain"
	reconciliationDomain "github.com/allisson/payouts/internal/reconciliation/domain"
)

// Reconciliation answers reconciliation queries from an in-memory ledger and outbox.
type Reconciliation struct {
	Ledger *Ledger
	Outbox *Outbox
}

// ListBalances aggregates every bounty with payout activity.
func (r Reconciliation) ListBalances(ctx context.Context) ([]reconciliationDomain.BountyBalance, error) {
	var balances []reconciliationDomain.BountyBalance
	for _, id := range r.Ledger.BountyIDs() {
		rows, err := r.Ledger.ListByBounty(ctx, id)
		if err != nil {
			return nil, err
		}
		b := ledgerDomain.BalanceOf(rows)
		if b.Checked {
			balances = append(balances, reconciliationDomain.BountyBalance{BountyID: id, Balance: b})
		}
	}
	return balances, nil
}

// ListStuckReleases returns pending releases older than createdBefore with no live outbox event.
func (r Reconciliation) ListStuckReleases(
	_ context.Context,
	createdBefore time.Time,
) ([]reconciliationDomain.StuckRelease, error) {
	live := map[string]bool{}
	if r.Outbox != nil {
		for _, e := range r.Outbox.Events() {
			if !e.Status.IsTerminal() {
				live[e.IdempotencyKey] = true
			}
		}
	}

	var stuck []reconciliationDomain.StuckRelease
	for _, row := range r.Ledger.Rows() {
		if row.Kind != ledgerDomain.KindRelease || row.Status != ledgerDomain.StatusPending {
			continue
		}
		if !row.CreatedAt.Before(createdBefore) || live[row.IdempotencyKey] {
			continue
		}
		stuck = append(stuck, reconciliationDomain.StuckRelease{
			BountyID:       row.BountyID,
			IdempotencyKey: row.IdempotencyKey,
			Amount:         row.Amount,
			Currency:       row.Currency,
			CreatedAt:      row.CreatedAt,
		})
	}
	return stuck, nil
}

