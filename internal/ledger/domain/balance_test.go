package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBalanceOf(t *testing.T) {
	t.Run("Balanced", func(t *testing.T) {
		b := BalanceOf([]*WalletTransaction{
			{Kind: KindEscrow, Status: StatusCompleted, Amount: 10000},
			{Kind: KindRelease, Status: StatusPending, Amount: 9500},
			{Kind: KindFee, Status: StatusCompleted, Amount: 500},
		})
		assert.True(t, b.Checked)
		assert.Equal(t, int64(0), b.Drift())
	})

	t.Run("Drift", func(t *testing.T) {
		b := BalanceOf([]*WalletTransaction{
			{Kind: KindEscrow, Status: StatusCompleted, Amount: 5000},
			{Kind: KindRelease, Status: StatusCompleted, Amount: 4000},
		})
		assert.Equal(t, int64(1000), b.Drift())
	})

	t.Run("FailedRowsIgnored", func(t *testing.T) {
		b := BalanceOf([]*WalletTransaction{
			{Kind: KindEscrow, Status: StatusCompleted, Amount: 10000},
			{Kind: KindRelease, Status: StatusFailed, Amount: 9500},
			{Kind: KindFee, Status: StatusFailed, Amount: 500},
		})
		assert.False(t, b.Checked)
		assert.Equal(t, int64(0), b.Drift())
	})

	t.Run("PendingEscrowNotCounted", func(t *testing.T) {
		b := BalanceOf([]*WalletTransaction{
			{Kind: KindEscrow, Status: StatusPending, Amount: 10000},
			{Kind: KindRelease, Status: StatusPending, Amount: 9500},
		})
		assert.Equal(t, int64(-9500), b.Drift())
	})
}
