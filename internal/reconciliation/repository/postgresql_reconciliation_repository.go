// Package repository implements the read-only reconciliation queries for PostgreSQL and MySQL.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/allisson/payouts/internal/database"
	apperrors "github.com/allisson/payouts/internal/errors"
	"github.com/allisson/payouts/internal/reconciliation/domain"
)

// balancesQuery aggregates completed escrow against non-failed payouts per bounty, for bounties
// with at least one non-failed release, fee or refund row.
const balancesQuery = `SELECT bounty_id,
			  COALESCE(SUM(CASE WHEN kind = 'escrow' AND status = 'completed' THEN amount ELSE 0 END), 0),
			  COALESCE(SUM(CASE WHEN kind IN ('release', 'fee', 'refund') AND status <> 'failed' THEN amount ELSE 0 END), 0)
			  FROM wallet_transactions
			  GROUP BY bounty_id
			  HAVING SUM(CASE WHEN kind IN ('release', 'fee', 'refund') AND status <> 'failed' THEN 1 ELSE 0 END) > 0
			  ORDER BY bounty_id`

// PostgreSQLReconciliationRepository runs reconciliation queries against PostgreSQL.
type PostgreSQLReconciliationRepository struct {
	db *sql.DB
}

// NewPostgreSQLReconciliationRepository creates a new PostgreSQL reconciliation repository.
func NewPostgreSQLReconciliationRepository(db *sql.DB) *PostgreSQLReconciliationRepository {
	return &PostgreSQLReconciliationRepository{db: db}
}

// ListBalances returns the aggregated ledger of every bounty with payout activity.
func (r *PostgreSQLReconciliationRepository) ListBalances(ctx context.Context) ([]domain.BountyBalance, error) {
	return listBalances(ctx, database.GetTx(ctx, r.db))
}

// ListStuckReleases returns pending release rows created before createdBefore that no live
// outbox event will move forward.
func (r *PostgreSQLReconciliationRepository) ListStuckReleases(
	ctx context.Context,
	createdBefore time.Time,
) ([]domain.StuckRelease, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT w.bounty_id, w.idempotency_key, w.amount, w.currency, w.created_at
			  FROM wallet_transactions w
			  WHERE w.kind = 'release' AND w.status = 'pending' AND w.created_at < $1
			  AND NOT EXISTS (
			    SELECT 1 FROM outbox_events o
			    WHERE o.idempotency_key = w.idempotency_key AND o.status IN ('pending', 'processing')
			  )
			  ORDER BY w.created_at ASC`

	return listStuck(ctx, querier, query, createdBefore)
}

func listBalances(ctx context.Context, querier database.Querier) ([]domain.BountyBalance, error) {
	rows, err := querier.QueryContext(ctx, balancesQuery)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to aggregate ledger balances")
	}
	defer rows.Close() //nolint:errcheck

	var balances []domain.BountyBalance
	for rows.Next() {
		b := domain.BountyBalance{}
		if err := rows.Scan(&b.BountyID, &b.Escrow, &b.Settled); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan ledger balance")
		}
		b.Checked = true
		balances = append(balances, b)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate ledger balances")
	}
	return balances, nil
}

func listStuck(
	ctx context.Context,
	querier database.Querier,
	query string,
	createdBefore time.Time,
) ([]domain.StuckRelease, error) {
	rows, err := querier.QueryContext(ctx, query, createdBefore)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list stuck releases")
	}
	defer rows.Close() //nolint:errcheck

	var stuck []domain.StuckRelease
	for rows.Next() {
		var s domain.StuckRelease
		if err := rows.Scan(&s.BountyID, &s.IdempotencyKey, &s.Amount, &s.Currency, &s.CreatedAt); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan stuck release")
		}
		stuck = append(stuck, s)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate stuck releases")
	}
	return stuck, nil
}
