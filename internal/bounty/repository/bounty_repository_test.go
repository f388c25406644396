package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bountyDomain "github.com/allisson/payouts/internal/bounty/domain"
	apperrors "github.com/allisson/payouts/internal/errors"
)

func TestPostgreSQLBountyRepository_Get(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close() //nolint:errcheck

		repo := NewPostgreSQLBountyRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta("FROM bounties WHERE id = $1")).
			WithArgs("bounty-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "status", "hunter_id", "amount", "currency"}).
				AddRow("bounty-1", "completed_pending_release", "hunter-1", int64(10000), "USD"))

		b, err := repo.Get(context.Background(), "bounty-1")
		require.NoError(t, err)
		assert.Equal(t, "hunter-1", b.HunterID)
		assert.Equal(t, int64(10000), b.Amount)
		assert.True(t, b.IsReleasable())
	})

	t.Run("Error_NotFound", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close() //nolint:errcheck

		repo := NewPostgreSQLBountyRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta("FROM bounties")).
			WillReturnRows(sqlmock.NewRows([]string{"id", "status", "hunter_id", "amount", "currency"}))

		b, err := repo.Get(context.Background(), "missing")
		assert.Nil(t, b)
		assert.ErrorIs(t, err, bountyDomain.ErrBountyNotFound)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestPostgreSQLBountyRepository_GetPayoutDestination(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close() //nolint:errcheck

		repo := NewPostgreSQLBountyRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta("FROM payout_accounts")).
			WithArgs("hunter-1").
			WillReturnRows(sqlmock.NewRows([]string{"destination_ref"}).AddRow("acct_42"))

		dest, err := repo.GetPayoutDestination(context.Background(), "hunter-1")
		assert.NoError(t, err)
		assert.Equal(t, "acct_42", dest)
	})

	t.Run("Error_Missing", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close() //nolint:errcheck

		repo := NewPostgreSQLBountyRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta("FROM payout_accounts")).
			WillReturnRows(sqlmock.NewRows([]string{"destination_ref"}))

		_, err = repo.GetPayoutDestination(context.Background(), "hunter-1")
		assert.ErrorIs(t, err, bountyDomain.ErrPayoutDestinationNotFound)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}

func TestMySQLBountyRepository_MarkPaid(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close() //nolint:errcheck

		repo := NewMySQLBountyRepository(db)

		mock.ExpectExec(regexp.QuoteMeta("UPDATE bounties SET status = ?")).
			WithArgs("paid", "bounty-1", "completed_pending_release").
			WillReturnResult(sqlmock.NewResult(0, 1))

		changed, err := repo.MarkPaid(context.Background(), "bounty-1")
		assert.NoError(t, err)
		assert.True(t, changed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Success_AlreadyPaid", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close() //nolint:errcheck

		repo := NewMySQLBountyRepository(db)

		mock.ExpectExec(regexp.QuoteMeta("UPDATE bounties")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		changed, err := repo.MarkPaid(context.Background(), "bounty-1")
		assert.NoError(t, err)
		assert.False(t, changed)
	})
}
