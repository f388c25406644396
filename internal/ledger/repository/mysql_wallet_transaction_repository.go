package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/allisson/payouts/internal/database"
	apperrors "github.com/allisson/payouts/internal/errors"
	ledgerDomain "github.com/allisson/payouts/internal/ledger/domain"
)

const mysqlSelectColumns = `id, bounty_id, user_id, kind, amount, currency, status, external_transfer_ref,
			  idempotency_key, created_at, updated_at`

// MySQLWalletTransactionRepository implements WalletTransaction persistence for MySQL.
type MySQLWalletTransactionRepository struct {
	db *sql.DB
}

// NewMySQLWalletTransactionRepository creates a new MySQL wallet transaction repository.
func NewMySQLWalletTransactionRepository(db *sql.DB) *MySQLWalletTransactionRepository {
	return &MySQLWalletTransactionRepository{db: db}
}

// Create inserts a new wallet transaction.
func (r *MySQLWalletTransactionRepository) Create(
	ctx context.Context,
	txn *ledgerDomain.WalletTransaction,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO wallet_transactions (id, bounty_id, user_id, kind, amount, currency, status,
			  external_transfer_ref, idempotency_key, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	// Convert UUID to bytes for MySQL BINARY(16)
	idBytes, err := txn.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal wallet transaction id")
	}

	_, err = querier.ExecContext(ctx, query, idBytes, txn.BountyID, txn.UserID, txn.Kind, txn.Amount,
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
func (r *MySQLWalletTransactionRepository) GetByBountyAndKind(
	ctx context.Context,
	bountyID string,
	kind ledgerDomain.Kind,
) (*ledgerDomain.WalletTransaction, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + mysqlSelectColumns + `
			  FROM wallet_transactions
			  WHERE bounty_id = ? AND kind = ?
			  ORDER BY created_at ASC, id ASC
			  LIMIT 1`

	txn, err := scanMySQLTransaction(querier.QueryRowContext(ctx, query, bountyID, kind))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get wallet transaction by bounty and kind")
	}
	return txn, nil
}

// GetByIdempotencyKey retrieves a row by its idempotency key.
func (r *MySQLWalletTransactionRepository) GetByIdempotencyKey(
	ctx context.Context,
	key string,
) (*ledgerDomain.WalletTransaction, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + mysqlSelectColumns + `
			  FROM wallet_transactions
			  WHERE idempotency_key = ?`

	txn, err := scanMySQLTransaction(querier.QueryRowContext(ctx, query, key))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get wallet transaction by idempotency key")
	}
	return txn, nil
}

// ListByBounty returns every row recorded for a bounty, oldest first.
func (r *MySQLWalletTransactionRepository) ListByBounty(
	ctx context.Context,
	bountyID string,
) ([]*ledgerDomain.WalletTransaction, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + mysqlSelectColumns + `
			  FROM wallet_transactions
			  WHERE bounty_id = ?
			  ORDER BY created_at ASC, kind ASC`

	rows, err := querier.QueryContext(ctx, query, bountyID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list wallet transactions")
	}
	defer rows.Close() //nolint:errcheck

	var txns []*ledgerDomain.WalletTransaction
	for rows.Next() {
		txn, err := scanMySQLTransaction(rows)
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
func (r *MySQLWalletTransactionRepository) Transition(
	ctx context.Context,
	bountyID string,
	kind ledgerDomain.Kind,
	to ledgerDomain.Status,
	externalRef *string,
) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE wallet_transactions
			  SET status = ?, external_transfer_ref = COALESCE(?, external_transfer_ref), updated_at = NOW()
			  WHERE bounty_id = ? AND kind = ? AND status = ?`

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

func scanMySQLTransaction(row rowScanner) (*ledgerDomain.WalletTransaction, error) {
	var txn ledgerDomain.WalletTransaction
	var idBytes []byte
	err := row.Scan(
		&idBytes,
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

	// Convert bytes back to UUID
	if err := txn.ID.UnmarshalBinary(idBytes); err != nil {
		return nil, err
	}
	return &txn, nil
}
