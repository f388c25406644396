// Package errors holds the sentinel errors use cases return. Handlers translate them to HTTP
// status codes in httputil.HandleErrorGin; nothing below the use case layer should leak a
// driver or gateway error type to a handler without wrapping one of these.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound maps to 404: unknown bounty, no ledger activity, no payout account.
	ErrNotFound = errors.New("not found")
	// ErrConflict maps to 409: the bounty was already released or is not releasable.
	ErrConflict = errors.New("conflict")
	// ErrInvalidInput maps to 422.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthorized maps to 401: bad or stale webhook signature.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUpstream maps to 502: the payment gateway refused the transfer permanently.
	ErrUpstream = errors.New("upstream failure")
)

// Wrap prefixes err with message and keeps it matchable. Wrap(nil, ...) is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}
