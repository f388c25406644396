// Package repository implements wallet transaction persistence for PostgreSQL and MySQL.
// The (bounty_id, kind) unique constraint declared in the migrations is what rejects a second
// release or fee row for the same bounty; these repositories translate that violation into
// ledgerDomain.ErrDuplicateTransaction.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/allisson/payouts/internal/database"
	apperrors "github.com/allisson/payouts/internal/errors"
	ledgerDomain "github.com/allisson/payouts/internal/ledger/domain"
)

const postgresSelectColumns = `id, bounty_id, user_id, kind, amount, currency, status, external_transfer_ref,
			  idempotency_key, created_at, updated_at`

// PostgreSQLWalletTransactionRepository implements WalletTransaction persistence for PostgreSQL.
type PostgreSQLWalletTransactionRepository struct {
	db *sql.DB
}

// NewPostgreSQLWalletTransactionRepository creates a new PostgreSQL wallet transaction repository.
func NewPostgreSQLWalletTransactionRepository(db *sql.DB) *PostgreSQLWalletTransactionRepository {
	return &PostgreSQLWalletTransactionRepository{db: db}
}

// Create inserts a new wallet transaction.
func (r *PostgreSQLWalletTransactionRepository) Create(
	ctx context.Context,
	txn *ledgerDomain.WalletTransaction,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO wallet_transactions (id, bounty_id, user_id, kind, amount, currency, status,
			  external_transfer_ref, idempotency_key, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := querier.ExecContext(ctx, query, txn.ID, txn.BountyID, txn.UserID, txn.Kind, txn.Amount,
		txn.Currency, txn.Status, txn.ExternalTransferRef, txn.IdempotencyKey, txn.CreatedAt, txn.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ledgerDomain.ErrDuplicateTransaction
		}
		return apperrors.Wrap(err, "failed to create wallet transaction")
	}
	return nil
}

// GetByBountyAndKind retrieves the row of the given kind for a bounty. Escrow, release and fee
// rows are unique per bounty; the ordering keeps the pick stable for rows written before that.
func (r *PostgreSQLWalletTransactionRepository) GetByBountyAndKind(
	ctx context.Context,
	bountyID string,
	kind ledgerDomain.Kind,
) (*ledgerDomain.WalletTransaction, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + postgresSelectColumns + `
			  FROM wallet_transactions
			  WHERE bounty_id = $1 AND kind = $2
			  ORDER BY created_at ASC, id ASC
			  LIMIT 1`

	txn, err := scanPostgresTransaction(querier.QueryRowContext(ctx, query, bountyID, kind))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get wallet transaction by bounty and kind")
	}
	return txn, nil
}

// GetByIdempotencyKey retrieves a row by its idempotency key.
func (r *PostgreSQLWalletTransactionRepository) GetByIdempotencyKey(
	ctx context.Context,
	key string,
) (*ledgerDomain.WalletTransaction, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + postgresSelectColumns + `
			  FROM wallet_transactions
			  WHERE idempotency_key = $1`

	txn, err := scanPostgresTransaction(querier.QueryRowContext(ctx, query, key))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get wallet transaction by idempotency key")
	}
	return txn, nil
}

// ListByBounty returns every row recorded for a bounty, oldest first.
func (r *PostgreSQLWalletTransactionRepository) ListByBounty(
	ctx context.Context,
	bountyID string,
) ([]*ledgerDomain.WalletTransaction, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + postgresSelectColumns + `
			  FROM wallet_transactions
			  WHERE bounty_id = $1
			  ORDER BY created_at ASC, kind ASC`

	rows, err := querier.QueryContext(ctx, query, bountyID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list wallet transactions")
	}
	defer rows.Close() //nolint:errcheck

	var txns []*ledgerDomain.WalletTransaction
	for rows.Next() {
		txn, err := scanPostgresTransaction(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan wallet transaction")
		}
		txns = append(txns, txn)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate wallet transactions")
	}

	return txns, nil
}

// Transition moves a pending row of the given kind to a terminal status.
// It returns false when the row was no longer pending, which callers treat as already settled.
func (r *PostgreSQLWalletTransactionRepository) Transition(
	ctx context.Context,
	bountyID string,
	kind ledgerDomain.Kind,
	to ledgerDomain.Status,
	externalRef *string,
) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE wallet_transactions
			  SET status = $1, external_transfer_ref = COALESCE($2, external_transfer_ref), updated_at = NOW()
			  WHERE bounty_id = $3 AND kind = $4 AND status = $5`

	result, err := querier.ExecContext(ctx, query, to, externalRef, bountyID, kind, ledgerDomain.StatusPending)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to transition wallet transaction")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to read affected rows")
	}

	return affected > 0, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPostgresTransaction(row rowScanner) (*ledgerDomain.WalletTransaction, error) {
	var txn ledgerDomain.WalletTransaction
	err := row.Scan(
		&txn.ID,
		&txn.BountyID,
		&txn.UserID,
		&txn.Kind,
		&txn.Amount,
		&txn.Currency,
		&txn.Status,
		&txn.ExternalTransferRef,
		&txn.IdempotencyKey,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledgerDomain.ErrTransactionNotFound
		}
		return nil, err
	}
	return &txn, nil
}
