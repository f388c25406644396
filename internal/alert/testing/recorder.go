// Package testing provides an in-memory alert sink for tests.
package testing

import (
	"context"
	"sync"

	"github.com/allisson/payouts/internal/alert"
)

// Recorder collects alerts in memory.
type Recorder struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

// Alert records al.
func (r *Recorder) Alert(_ context.Context, al alert.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, al)
}

// Alerts returns a copy of the recorded alerts.
func (r *Recorder) Alerts() []alert.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]alert.Alert, len(r.alerts))
	copy(out, r.alerts)
	return out
}

// Count returns how many alerts of kind were recorded.
func (r *Recorder) Count(kind alert.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, al := range r.alerts {
		if al.Kind == kind {
			n++
		}
	}
	return n
}
