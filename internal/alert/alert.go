// Package alert raises operator alerts for conditions that need a human: dead outbox events,
// permanent transfer failures, ledger drift and stuck releases.
package alert

import (
	"context"
	"log/slog"

	"github.com/allisson/payouts/internal/metrics"
)

// Kind identifies the condition behind an alert.
type Kind string

const (
	KindOutboxDead       Kind = "outbox_dead"
	KindTransferFailed   Kind = "transfer_failed"
	KindLedgerDrift      Kind = "ledger_drift"
	KindReleaseStuck     Kind = "release_stuck"
	KindWebhookUnmatched Kind = "webhook_unmatched"
)

// Alert describes a single operator-facing condition.
type Alert struct {
	Kind     Kind
	BountyID string
	Message  string
	Attrs    []slog.Attr
}

// Alerter delivers alerts to operators.
type Alerter interface {
	Alert(ctx context.Context, a Alert)
}

// LogAlerter writes alerts as error-level log records and counts them.
type LogAlerter struct {
	logger  *slog.Logger
	metrics metrics.BusinessMetrics
}

// NewLogAlerter creates an Alerter backed by the structured logger.
func NewLogAlerter(logger *slog.Logger, businessMetrics metrics.BusinessMetrics) *LogAlerter {
	if businessMetrics == nil {
		businessMetrics = metrics.NewNoOpBusinessMetrics()
	}
	return &LogAlerter{logger: logger, metrics: businessMetrics}
}

// Alert logs a and increments the alerts counter for its kind.
func (a *LogAlerter) Alert(ctx context.Context, al Alert) {
	attrs := make([]slog.Attr, 0, len(al.Attrs)+2)
	attrs = append(attrs, slog.String("alert_kind", string(al.Kind)))
	if al.BountyID != "" {
		attrs = append(attrs, slog.String("bounty_id", al.BountyID))
	}
	attrs = append(attrs, al.Attrs...)

	if a.logger != nil {
		a.logger.LogAttrs(ctx, slog.LevelError, al.Message, attrs...)
	}
	a.metrics.RecordOperation(ctx, "alert", string(al.Kind), "raised")
}
