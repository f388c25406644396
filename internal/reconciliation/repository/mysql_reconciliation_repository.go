package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/allisson/payouts/internal/database"
	"github.com/allisson/payouts/internal/reconciliation/domain"
)

// MySQLReconciliationRepository runs reconciliation queries against MySQL.
type MySQLReconciliationRepository struct {
	db *sql.DB
}

// NewMySQLReconciliationRepository creates a new MySQL reconciliation repository.
func NewMySQLReconciliationRepository(db *sql.DB) *MySQLReconciliationRepository {
	return &MySQLReconciliationRepository{db: db}
}

// ListBalances returns the aggregated ledger of every bounty with payout activity.
func (r *MySQLReconciliationRepository) ListBalances(ctx context.Context) ([]domain.BountyBalance, error) {
	return listBalances(ctx, database.GetTx(ctx, r.db))
}

// ListStuckReleases returns pending release rows created before createdBefore that no live
// outbox event will move forward.
func (r *MySQLReconciliationRepository) ListStuckReleases(
	ctx context.Context,
	createdBefore time.Time,
) ([]domain.StuckRelease, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT w.bounty_id, w.idempotency_key, w.amount, w.currency, w.created_at
			  FROM wallet_transactions w
			  WHERE w.kind = 'release' AND w.status = 'pending' AND w.created_at < ?
			  AND NOT EXISTS (
			    SELECT 1 FROM outbox_events o
			    WHERE o.idempotency_key = w.idempotency_key AND o.status IN ('pending', 'processing')
			  )
			  ORDER BY w.created_at ASC`

	return listStuck(ctx, querier, query, createdBefore)
}
