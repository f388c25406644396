// Package repository reads bounties and payout accounts and records the paid transition.
package repository

import (
	"context"
	"database/sql"
	"errors"

	bountyDomain "github.com/allisson/payouts/internal/bounty/domain"
	"github.com/allisson/payouts/internal/database"
	apperrors "github.com/allisson/payouts/internal/errors"
)

// PostgreSQLBountyRepository implements bounty access for PostgreSQL.
type PostgreSQLBountyRepository struct {
	db *sql.DB
}

// NewPostgreSQLBountyRepository creates a new PostgreSQL bounty repository.
func NewPostgreSQLBountyRepository(db *sql.DB) *PostgreSQLBountyRepository {
	return &PostgreSQLBountyRepository{db: db}
}

// Get retrieves a bounty by its ID.
func (r *PostgreSQLBountyRepository) Get(ctx context.Context, id string) (*bountyDomain.Bounty, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, status, hunter_id, amount, currency FROM bounties WHERE id = $1`

	var b bountyDomain.Bounty
	var hunterID sql.NullString
	err := querier.QueryRowContext(ctx, query, id).Scan(&b.ID, &b.Status, &hunterID, &b.Amount, &b.Currency)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, bountyDomain.ErrBountyNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get bounty")
	}
	b.HunterID = hunterID.String
	return &b, nil
}

// GetPayoutDestination returns the gateway destination reference registered for a user.
func (r *PostgreSQLBountyRepository) GetPayoutDestination(ctx context.Context, userID string) (string, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT destination_ref FROM payout_accounts WHERE user_id = $1`

	var destination string
	if err := querier.QueryRowContext(ctx, query, userID).Scan(&destination); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", bountyDomain.ErrPayoutDestinationNotFound
		}
		return "", apperrors.Wrap(err, "failed to get payout destination")
	}
	return destination, nil
}

// MarkPaid flips a releasable bounty to paid. It returns false when the bounty was not releasable.
func (r *PostgreSQLBountyRepository) MarkPaid(ctx context.Context, id string) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE bounties SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`

	result, err := querier.ExecContext(ctx, query, bountyDomain.StatusPaid, id,
		bountyDomain.StatusCompletedPendingRelease)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to mark bounty paid")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to read affected rows")
	}
	return affected > 0, nil
}
