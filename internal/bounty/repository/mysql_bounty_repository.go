package repository

import (
	"context"
	"database/sql"
	"errors"

	bountyDomain "github.com/allisson/payouts/internal/bounty/domain"
	"github.com/allisson/payouts/internal/database"
	apperrors "github.com/allisson/payouts/internal/errors"
)

// MySQLBountyRepository implements bounty access for MySQL.
type MySQLBountyRepository struct {
	db *sql.DB
}

// NewMySQLBountyRepository creates a new MySQL bounty repository.
func NewMySQLBountyRepository(db *sql.DB) *MySQLBountyRepository {
	return &MySQLBountyRepository{db: db}
}

// Get retrieves a bounty by its ID.
func (r *MySQLBountyRepository) Get(ctx context.Context, id string) (*bountyDomain.Bounty, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, status, hunter_id, amount, currency FROM bounties WHERE id = ?`

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
func (r *MySQLBountyRepository) GetPayoutDestination(ctx context.Context, userID string) (string, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT destination_ref FROM payout_accounts WHERE user_id = ?`

	var destination string
	if err := querier.QueryRowContext(ctx, query, userID).Scan(&destination); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", bountyDomain.ErrPayoutDestinationNotFound
		}
		return "", apperrors.Wrap(err, "failed to get payout destination")
	}
	return destination, nil
}

// MarkPaid flips a releasable bounty to paid.
func (r *MySQLBountyRepository) MarkPaid(ctx context.Context, id string) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE bounties SET status = ?, updated_at = NOW() WHERE id = ? AND status = ?`

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
