// Package memory provides in-memory stores that honor the same uniqueness and conditional-update
// rules as the SQL repositories. They back use case tests that exercise several components together.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	bountyDomain "github.com/allisson/payouts/internal/bounty/domain"
	ledgerDomain "github.com/allisson/payouts/internal/ledger/domain"
)

// TxManager runs fn without a transaction.
type TxManager struct{}

// WithTx calls fn.
func (TxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Ledger is an in-memory wallet_transactions table.
type Ledger struct {
	mu   sync.Mutex
	rows []*ledgerDomain.WalletTransaction
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Create inserts txn, rejecting a reused idempotency key or a second escrow, release or fee row
// for the same bounty.
func (l *Ledger) Create(_ context.Context, txn *ledgerDomain.WalletTransaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, row := range l.rows {
		sameKind := row.BountyID == txn.BountyID && row.Kind == txn.Kind && txn.Kind != ledgerDomain.KindRefund
		if sameKind || row.IdempotencyKey == txn.IdempotencyKey {
			return ledgerDomain.ErrDuplicateTransaction
		}
	}
	cp := *txn
	l.rows = append(l.rows, &cp)
	return nil
}

// GetByBountyAndKind returns a copy of the matching row.
func (l *Ledger) GetByBountyAndKind(
	_ context.Context,
	bountyID string,
	kind ledgerDomain.Kind,
) (*ledgerDomain.WalletTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, row := range l.rows {
		if row.BountyID == bountyID && row.Kind == kind {
			cp := *row
			return &cp, nil
		}
	}
	return nil, ledgerDomain.ErrTransactionNotFound
}

// GetByIdempotencyKey returns a copy of the matching row.
func (l *Ledger) GetByIdempotencyKey(_ context.Context, key string) (*ledgerDomain.WalletTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, row := range l.rows {
		if row.IdempotencyKey == key {
			cp := *row
			return &cp, nil
		}
	}
	return nil, ledgerDomain.ErrTransactionNotFound
}

// ListByBounty returns copies of a bounty's rows in insertion order.
func (l *Ledger) ListByBounty(_ context.Context, bountyID string) ([]*ledgerDomain.WalletTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*ledgerDomain.WalletTransaction
	for _, row := range l.rows {
		if row.BountyID == bountyID {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Transition moves a pending row to status to.
func (l *Ledger) Transition(
	_ context.Context,
	bountyID string,
	kind ledgerDomain.Kind,
	to ledgerDomain.Status,
	externalRef *string,
) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, row := range l.rows {
		if row.BountyID == bountyID && row.Kind == kind && row.Status == ledgerDomain.StatusPending {
			row.Status = to
			if externalRef != nil {
				ref := *externalRef
				row.ExternalTransferRef = &ref
			}
			row.UpdatedAt = time.Now().UTC()
			return true, nil
		}
	}
	return false, nil
}

// Rows returns copies of every row.
func (l *Ledger) Rows() []ledgerDomain.WalletTransaction {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]ledgerDomain.WalletTransaction, 0, len(l.rows))
	for _, row := range l.rows {
		out = append(out, *row)
	}
	return out
}

// BountyIDs returns the distinct bounty IDs present, sorted.
func (l *Ledger) BountyIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := map[string]bool{}
	var ids []string
	for _, row := range l.rows {
		if !seen[row.BountyID] {
			seen[row.BountyID] = true
			ids = append(ids, row.BountyID)
		}
	}
	sort.Strings(ids)
	return ids
}

// SeedEscrow records a completed escrow row for a bounty.
func (l *Ledger) SeedEscrow(bountyID, posterID string, amount int64, confirmationRef string) {
	now := time.Now().UTC()
	txn := &ledgerDomain.WalletTransaction{
		ID:             newID(),
		BountyID:       bountyID,
		UserID:         posterID,
		Kind:           ledgerDomain.KindEscrow,
		Amount:         amount,
		Currency:       "USD",
		Status:         ledgerDomain.StatusCompleted,
		IdempotencyKey: ledgerDomain.IdempotencyKey(bountyID, ledgerDomain.KindEscrow),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if confirmationRef != "" {
		txn.ExternalTransferRef = &confirmationRef
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = append(l.rows, txn)
}

// Bounties is an in-memory bounties and payout_accounts store.
type Bounties struct {
	mu           sync.Mutex
	bounties     map[string]bountyDomain.Bounty
	destinations map[string]string
}

// NewBounties creates an empty store.
func NewBounties() *Bounties {
	return &Bounties{
		bounties:     map[string]bountyDomain.Bounty{},
		destinations: map[string]string{},
	}
}

// Put stores b.
func (s *Bounties) Put(b bountyDomain.Bounty) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bounties[b.ID] = b
}

// SetDestination registers the payout destination of a user.
func (s *Bounties) SetDestination(userID, destination string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destinations[userID] = destination
}

// Get returns a copy of a bounty.
func (s *Bounties) Get(_ context.Context, id string) (*bountyDomain.Bounty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bounties[id]
	if !ok {
		return nil, bountyDomain.ErrBountyNotFound
	}
	return &b, nil
}

// GetPayoutDestination returns a user's destination.
func (s *Bounties) GetPayoutDestination(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.destinations[userID]
	if !ok {
		return "", bountyDomain.ErrPayoutDestinationNotFound
	}
	return d, nil
}

// MarkPaid flips a releasable bounty to paid.
func (s *Bounties) MarkPaid(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bounties[id]
	if !ok || b.Status != bountyDomain.StatusCompletedPendingRelease {
		return false, nil
	}
	b.Status = bountyDomain.StatusPaid
	s.bounties[id] = b
	return true, nil
}
