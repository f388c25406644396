package domain

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffPolicy schedules retries: the n-th retry waits min(Cap, Base*2^(n-1)).
type BackoffPolicy struct {
	Base time.Duration
	Cap  time.Duration
}

// Delay returns the wait before retry number attempt (1-based).
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Base
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = p.Cap
	b.MaxElapsedTime = 0
	b.Reset()

	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
		if d >= p.Cap {
			return p.Cap
		}
	}
	return d
}
