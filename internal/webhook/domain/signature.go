package domain

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Headers carrying the webhook signature.
const (
	TimestampHeader = "X-Gateway-Timestamp"
	SignatureHeader = "X-Gateway-Signature"
)

// Verifier authenticates webhook deliveries signed with a shared secret.
// The signature is hex(HMAC-SHA256(secret, timestamp + "." + body)).
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier creates a Verifier. A zero tolerance disables the timestamp window check.
func NewVerifier(secret []byte, tolerance time.Duration, now func() time.Time) *Verifier {
	if now == nil {
		now = time.Now
	}
	return &Verifier{secret: secret, tolerance: tolerance, now: now}
}

// Sign returns the signature for a body sent at timestamp.
func (v *Verifier) Sign(timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the signature and the timestamp window of a delivery.
func (v *Verifier) Verify(timestamp, signature string, body []byte) error {
	if timestamp == "" || signature == "" {
		return ErrMissingSignature
	}

	expected, err := hex.DecodeString(v.Sign(timestamp, body))
	if err != nil {
		return ErrInvalidSignature
	}
	got, err := hex.DecodeString(signature)
	if err != nil || !hmac.Equal(expected, got) {
		return ErrInvalidSignature
	}

	if v.tolerance > 0 {
		unix, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return ErrStaleTimestamp
		}
		skew := v.now().Sub(time.Unix(unix, 0))
		if skew > v.tolerance || skew < -v.tolerance {
			return ErrStaleTimestamp
		}
	}
	return nil
}
