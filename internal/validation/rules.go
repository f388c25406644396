// Package validation holds the ozzo-style rules shared by release requests and gateway
// notifications.
package validation

import (
	"regexp"
	"strings"

	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/payouts/internal/errors"
	ledgerDomain "github.com/allisson/payouts/internal/ledger/domain"
)

// Bounty, hunter and poster ids are opaque to us; this only keeps them log and key safe.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_.:\-]{1,128}$`)

// WrapValidationError turns a rule failure into ErrInvalidInput so handlers answer 422.
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool { return strings.TrimSpace(s) != "" },
	validation.NewError("validation_not_blank", "must not be blank"),
)

var Identifier = validation.Match(identifierPattern).
	ErrorObject(validation.NewError("validation_identifier", "must be 1-128 letters, digits or . _ : -"))

// Reference is a gateway reference such as a payment intent or transfer id.
var Reference = validation.NewStringRuleWithError(
	func(s string) bool { return strings.IndexFunc(s, isSpace) < 0 },
	validation.NewError("validation_reference", "must not contain whitespace"),
)

// FeePercent accepts "0" through "100" with up to two decimals. Empty passes so the
// configured default applies.
var FeePercent = validation.NewStringRuleWithError(
	func(s string) bool {
		_, err := ledgerDomain.ParseFeePercent(s)
		return err == nil
	},
	validation.NewError("validation_fee_percent", "must be a number between 0 and 100 with at most two decimals"),
)

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
