package domain

// Balance aggregates one bounty's ledger rows.
type Balance struct {
	Escrow  int64
	Settled int64
	// Checked is false when the bounty has no live release, fee or refund row yet.
	Checked bool
}

// Drift is escrow minus everything paid out of it. Zero means the ledger balances.
func (b Balance) Drift() int64 {
	if !b.Checked {
		return 0
	}
	return b.Escrow - b.Settled
}

// BalanceOf sums completed escrow rows against non-failed release, fee and refund rows.
func BalanceOf(txns []*WalletTransaction) Balance {
	var b Balance
	for _, txn := range txns {
		switch txn.Kind {
		case KindEscrow:
			if txn.Status == StatusCompleted {
				b.Escrow += txn.Amount
			}
		case KindRelease, KindFee, KindRefund:
			if txn.Status != StatusFailed {
				b.Settled += txn.Amount
				b.Checked = true
			}
		}
	}
	return b
}
