// Package domain defines payment gateway webhook notifications and their authentication.
package domain

import (
	"time"

	validation "github.com/jellydator/validation"

	"github.com/allisson/payouts/internal/errors"
	customValidation "github.com/allisson/payouts/internal/validation"
)

// NotificationType is the kind of transfer event the gateway reports.
type NotificationType string

const (
	NotificationTypeTransferPaid   NotificationType = "transfer.paid"
	NotificationTypeTransferFailed NotificationType = "transfer.failed"
)

// Notification is one gateway webhook delivery.
type Notification struct {
	ID             string           `json:"id"`
	Type           NotificationType `json:"type"`
	TransferID     string           `json:"transfer_id"`
	IdempotencyKey string           `json:"idempotency_key"`
	FailureCode    string           `json:"failure_code,omitempty"`
	FailureMessage string           `json:"failure_message,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Validate checks the notification shape.
func (n *Notification) Validate() error {
	err := validation.ValidateStruct(n,
		validation.Field(&n.ID, validation.Required, customValidation.NotBlank),
		validation.Field(&n.Type, validation.Required,
			validation.In(NotificationTypeTransferPaid, NotificationTypeTransferFailed)),
		validation.Field(&n.IdempotencyKey, validation.Required, customValidation.NotBlank),
	)
	return customValidation.WrapValidationError(err)
}

// FailureReason renders the gateway's failure code and message for logs and outbox errors.
func (n *Notification) FailureReason() string {
	switch {
	case n.FailureCode != "" && n.FailureMessage != "":
		return n.FailureCode + ": " + n.FailureMessage
	case n.FailureCode != "":
		return n.FailureCode
	case n.FailureMessage != "":
		return n.FailureMessage
	}
	return "transfer failed"
}

// Outcome describes what ingesting a notification did.
type Outcome string

const (
	OutcomeCompleted    Outcome = "completed"
	OutcomeFailed       Outcome = "failed"
	OutcomeAlreadyFinal Outcome = "already_final"
	OutcomeUnmatched    Outcome = "unmatched"
	OutcomeReplayed     Outcome = "replayed"
)

// Webhook-specific error definitions.
var (
	ErrMissingSignature = errors.Wrap(errors.ErrUnauthorized, "missing webhook signature")
	ErrInvalidSignature = errors.Wrap(errors.ErrUnauthorized, "invalid webhook signature")
	// ErrStaleTimestamp is returned when the signed timestamp falls outside the tolerance window.
	ErrStaleTimestamp = errors.Wrap(errors.ErrUnauthorized, "webhook timestamp outside tolerance")
)
