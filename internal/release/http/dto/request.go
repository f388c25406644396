// Package dto provides data transfer objects for the completion release endpoints.
package dto

import (
	"bytes"
	"encoding/json"

	validation "github.com/jellydator/validation"

	releaseDomain "github.com/allisson/payouts/internal/release/domain"
	customValidation "github.com/allisson/payouts/internal/validation"
)

// FeePercent is platformFeePercent as sent. Strings are kept as is and null is empty; any
// other JSON value keeps its literal text so validation, not decoding, rejects it.
type FeePercent string

// UnmarshalJSON never fails on a well-formed value.
func (f *FeePercent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FeePercent(s)
		return nil
	}
	*f = FeePercent(bytes.TrimSpace(data))
	return nil
}

func (f FeePercent) String() string {
	return string(f)
}

// ReleaseRequest is the body of POST /completion-release.
type ReleaseRequest struct {
	BountyID               string     `json:"bountyId"`
	HunterID               string     `json:"hunterId"`
	PaymentConfirmationRef string     `json:"paymentConfirmationRef"`
	PlatformFeePercent     FeePercent `json:"platformFeePercent,omitempty"`
}

// Validate checks the request shape.
func (r *ReleaseRequest) Validate() error {
	feePercent := r.PlatformFeePercent.String()
	err := validation.ValidateStruct(r,
		validation.Field(&r.BountyID, validation.Required, customValidation.Identifier),
		validation.Field(&r.HunterID, validation.Required, customValidation.Identifier),
		validation.Field(&r.PaymentConfirmationRef, validation.Required, customValidation.NotBlank,
			customValidation.Reference, validation.Length(1, 255)),
		validation.Field(&r.PlatformFeePercent, validation.By(func(any) error {
			return customValidation.FeePercent.Validate(feePercent)
		})),
	)
	return customValidation.WrapValidationError(err)
}

// ToDomain converts the request to a release input.
func (r *ReleaseRequest) ToDomain() *releaseDomain.ReleaseInput {
	return &releaseDomain.ReleaseInput{
		BountyID:           r.BountyID,
		HunterID:           r.HunterID,
		PlatformFeePercent: r.PlatformFeePercent.String(),
		ConfirmationRef:    r.PaymentConfirmationRef,
	}
}
