package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/payouts/internal/reconciliation/domain"
)

type reconciliationRepository interface {
	ListBalances(ctx context.Context) ([]domain.BountyBalance, error)
	ListStuckReleases(ctx context.Context, createdBefore time.Time) ([]domain.StuckRelease, error)
}

func forEachDriver(t *testing.T, fn func(t *testing.T, repo reconciliationRepository, mock sqlmock.Sqlmock)) {
	drivers := map[string]func(*testing.T) (reconciliationRepository, sqlmock.Sqlmock){
		"PostgreSQL": func(t *testing.T) (reconciliationRepository, sqlmock.Sqlmock) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })
			return NewPostgreSQLReconciliationRepository(db), mock
		},
		"MySQL": func(t *testing.T) (reconciliationRepository, sqlmock.Sqlmock) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })
			return NewMySQLReconciliationRepository(db), mock
		},
	}

	for name, open := range drivers {
		t.Run(name, func(t *testing.T) {
			repo, mock := open(t)
			fn(t, repo, mock)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestReconciliationRepository_ListBalances(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		forEachDriver(t, func(t *testing.T, repo reconciliationRepository, mock sqlmock.Sqlmock) {
			rows := sqlmock.NewRows([]string{"bounty_id", "escrow", "settled"}).
				AddRow("bounty-1", int64(10000), int64(10000)).
				AddRow("bounty-2", int64(5000), int64(4000))
			mock.ExpectQuery(regexp.QuoteMeta("FROM wallet_transactions")).WillReturnRows(rows)

			balances, err := repo.ListBalances(context.Background())
			require.NoError(t, err)
			require.Len(t, balances, 2)
			assert.Equal(t, "bounty-2", balances[1].BountyID)
			assert.Equal(t, int64(5000), balances[1].Escrow)
			assert.Equal(t, int64(4000), balances[1].Settled)
			assert.True(t, balances[1].Checked)
			assert.Equal(t, int64(1000), balances[1].Drift())
		})
	})

	t.Run("Error_Query", func(t *testing.T) {
		forEachDriver(t, func(t *testing.T, repo reconciliationRepository, mock sqlmock.Sqlmock) {
			mock.ExpectQuery(regexp.QuoteMeta("FROM wallet_transactions")).
				WillReturnError(errors.New("connection refused"))

			_, err := repo.ListBalances(context.Background())
			assert.ErrorContains(t, err, "failed to aggregate ledger balances")
		})
	})
}

func TestReconciliationRepository_ListStuckReleases(t *testing.T) {
	before := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		forEachDriver(t, func(t *testing.T, repo reconciliationRepository, mock sqlmock.Sqlmock) {
			created := before.Add(-time.Hour)
			rows := sqlmock.NewRows([]string{"bounty_id", "idempotency_key", "amount", "currency", "created_at"}).
				AddRow("bounty-3", "key-3", int64(9000), "USD", created)
			mock.ExpectQuery(regexp.QuoteMeta("NOT EXISTS")).
				WithArgs(before).
				WillReturnRows(rows)

			stuck, err := repo.ListStuckReleases(context.Background(), before)
			require.NoError(t, err)
			assert.Equal(t, []domain.StuckRelease{{
				BountyID:       "bounty-3",
				IdempotencyKey: "key-3",
				Amount:         9000,
				Currency:       "USD",
				CreatedAt:      created,
			}}, stuck)
		})
	})

	t.Run("Empty", func(t *testing.T) {
		forEachDriver(t, func(t *testing.T, repo reconciliationRepository, mock sqlmock.Sqlmock) {
			mock.ExpectQuery(regexp.QuoteMeta("NOT EXISTS")).
				WithArgs(before).
				WillReturnRows(sqlmock.NewRows([]string{"bounty_id", "idempotency_key", "amount", "currency", "created_at"}))

			stuck, err := repo.ListStuckReleases(context.Background(), before)
			require.NoError(t, err)
			assert.Empty(t, stuck)
		})
	})

	t.Run("Error_Scan", func(t *testing.T) {
		forEachDriver(t, func(t *testing.T, repo reconciliationRepository, mock sqlmock.Sqlmock) {
			rows := sqlmock.NewRows([]string{"bounty_id", "idempotency_key", "amount", "currency", "created_at"}).
				AddRow("bounty-3", "key-3", "not-a-number", "USD", before)
			mock.ExpectQuery(regexp.QuoteMeta("NOT EXISTS")).WithArgs(before).WillReturnRows(rows)

			_, err := repo.ListStuckReleases(context.Background(), before)
			assert.ErrorContains(t, err, "failed to scan stuck release")
		})
	})
}
