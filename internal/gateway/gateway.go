// Package gateway is the adapter to the external payment gateway that moves money to hunters.
// Every transfer carries an idempotency key so a repeated request never moves money twice.
package gateway

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/allisson/payouts/internal/errors"
)

// TransferRequest asks the gateway to pay Amount minor units to DestinationRef.
type TransferRequest struct {
	Amount         int64
	Currency       string
	DestinationRef string
	IdempotencyKey string
	Metadata       map[string]string
}

// Transfer is the gateway's acknowledgement of a transfer.
type Transfer struct {
	ID     string
	Status string
}

// Adapter creates transfers on the payment gateway.
type Adapter interface {
	CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error)
}

// ErrorKind tells callers whether retrying a failed transfer can succeed.
type ErrorKind string

const (
	ErrorKindRetryable ErrorKind = "retryable"
	ErrorKindPermanent ErrorKind = "permanent"
)

// TransferError is returned for every failed transfer attempt.
type TransferError struct {
	Kind       ErrorKind
	Code       string
	Message    string
	StatusCode int
	Err        error
}

// NewRetryableError builds a retryable TransferError.
func NewRetryableError(code, message string, err error) *TransferError {
	return &TransferError{Kind: ErrorKindRetryable, Code: code, Message: message, Err: err}
}

// NewPermanentError builds a permanent TransferError.
func NewPermanentError(code, message string) *TransferError {
	return &TransferError{Kind: ErrorKindPermanent, Code: code, Message: message}
}

func (e *TransferError) Error() string {
	msg := fmt.Sprintf("%s transfer error", e.Kind)
	if e.Code != "" {
		msg += " [" + e.Code + "]"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the cause and, for permanent errors, apperrors.ErrUpstream.
func (e *TransferError) Unwrap() []error {
	var errs []error
	if e.Kind == ErrorKindPermanent {
		errs = append(errs, apperrors.ErrUpstream)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Retryable reports whether the failed attempt may be repeated with the same idempotency key.
func (e *TransferError) Retryable() bool {
	return e.Kind == ErrorKindRetryable
}

// IsRetryable reports whether err is a retryable TransferError.
func IsRetryable(err error) bool {
	var te *TransferError
	return errors.As(err, &te) && te.Retryable()
}

// IsPermanent reports whether err is a permanent TransferError.
func IsPermanent(err error) bool {
	var te *TransferError
	return errors.As(err, &te) && !te.Retryable()
}

// ErrorCode returns the gateway's machine-readable failure code.
func (e *TransferError) ErrorCode() string {
	return e.Code
}
