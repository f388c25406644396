package dto

import (
	"time"

	releaseDomain "github.com/allisson/payouts/internal/release/domain"
)

// Release outcome values reported to callers.
const (
	ReleaseStatusCompleted = "completed"
	ReleaseStatusPending   = "pending"
)

// ReleaseResponse reports an accepted release.
type ReleaseResponse struct {
	BountyID       string `json:"bountyId"`
	Status         string `json:"status"`
	TransferRef    string `json:"transferRef,omitempty"`
	ReleaseAmount  int64  `json:"releaseAmount"`
	FeeAmount      int64  `json:"feeAmount"`
	Currency       string `json:"currency"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// MapResultToResponse converts a release result to its API representation.
func MapResultToResponse(result *releaseDomain.ReleaseResult) ReleaseResponse {
	status := ReleaseStatusCompleted
	if result.Pending {
		status = ReleaseStatusPending
	}
	return ReleaseResponse{
		BountyID:       result.BountyID,
		Status:         status,
		TransferRef:    result.TransferRef,
		ReleaseAmount:  result.ReleaseAmount,
		FeeAmount:      result.FeeAmount,
		Currency:       result.Currency,
		IdempotencyKey: result.IdempotencyKey,
	}
}

// EntryResponse is one ledger row.
type EntryResponse struct {
	Kind        string    `json:"kind"`
	UserID      string    `json:"userId"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	TransferRef string    `json:"transferRef,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// OutboxResponse describes the deferred transfer of a bounty.
type OutboxResponse struct {
	Status        string    `json:"status"`
	AttemptCount  int       `json:"attemptCount"`
	NextAttemptAt time.Time `json:"nextAttemptAt"`
	LastError     string    `json:"lastError,omitempty"`
}

// StatusResponse is the ledger summary of a bounty.
type StatusResponse struct {
	BountyID string          `json:"bountyId"`
	Escrow   *EntryResponse  `json:"escrow"`
	Release  *EntryResponse  `json:"release"`
	Fee      *EntryResponse  `json:"fee"`
	Refunds  []EntryResponse `json:"refunds"`
	Outbox   *OutboxResponse `json:"outbox"`
	Drift    int64           `json:"drift"`
	Settled  bool            `json:"settled"`
}

func mapEntry(entry *releaseDomain.Entry) *EntryResponse {
	if entry == nil {
		return nil
	}
	return &EntryResponse{
		Kind:        entry.Kind,
		UserID:      entry.UserID,
		Amount:      entry.Amount,
		Currency:    entry.Currency,
		Status:      entry.Status,
		TransferRef: entry.TransferRef,
		UpdatedAt:   entry.UpdatedAt,
	}
}

// MapStatusToResponse converts a release status to its API representation.
func MapStatusToResponse(status *releaseDomain.ReleaseStatus) StatusResponse {
	refunds := make([]EntryResponse, 0, len(status.Refunds))
	for i := range status.Refunds {
		refunds = append(refunds, *mapEntry(&status.Refunds[i]))
	}

	response := StatusResponse{
		BountyID: status.BountyID,
		Escrow:   mapEntry(status.Escrow),
		Release:  mapEntry(status.Release),
		Fee:      mapEntry(status.Fee),
		Refunds:  refunds,
		Drift:    status.Drift,
		Settled:  status.Settled,
	}
	if status.Outbox != nil {
		response.Outbox = &OutboxResponse{
			Status:        status.Outbox.Status,
			AttemptCount:  status.Outbox.AttemptCount,
			NextAttemptAt: status.Outbox.NextAttemptAt,
			LastError:     status.Outbox.LastError,
		}
	}
	return response
}
