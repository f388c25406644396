package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BusinessMetrics records settlement activity. Domains in use are release, outbox, webhook,
// reconciliation and alert; status is a short outcome word such as success, pending or dead.
type BusinessMetrics interface {
	RecordOperation(ctx context.Context, domain, operation, status string)
	RecordDuration(ctx context.Context, domain, operation string, duration time.Duration, status string)
	// RecordAmount adds money moved in minor units. Kind is the ledger entry kind (release, fee).
	RecordAmount(ctx context.Context, domain, kind, currency string, minorUnits int64)
}

type businessMetrics struct {
	operations metric.Int64Counter
	durations  metric.Float64Histogram
	amounts    metric.Int64Counter
}

// NewBusinessMetrics registers the settlement instruments under namespace.
func NewBusinessMetrics(meterProvider metric.MeterProvider, namespace string) (BusinessMetrics, error) {
	meter := meterProvider.Meter(namespace)

	operations, err := meter.Int64Counter(
		namespace+"_operations_total",
		metric.WithDescription("Settlement operations by domain and outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation counter: %w", err)
	}

	durations, err := meter.Float64Histogram(
		namespace+"_operation_duration_seconds",
		metric.WithDescription("Settlement operation latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	amounts, err := meter.Int64Counter(
		namespace+"_amount_minor_units_total",
		metric.WithDescription("Money accepted for payout, in currency minor units"),
		metric.WithUnit("{minor_unit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create amount counter: %w", err)
	}

	return &businessMetrics{operations: operations, durations: durations, amounts: amounts}, nil
}

func outcomeAttrs(domain, operation, status string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("domain", domain),
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
}

func (b *businessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	b.operations.Add(ctx, 1, outcomeAttrs(domain, operation, status))
}

func (b *businessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	b.durations.Record(ctx, duration.Seconds(), outcomeAttrs(domain, operation, status))
}

// RecordAmount ignores non-positive amounts; counters cannot go down.
func (b *businessMetrics) RecordAmount(ctx context.Context, domain, kind, currency string, minorUnits int64) {
	if minorUnits <= 0 {
		return
	}
	b.amounts.Add(ctx, minorUnits, metric.WithAttributes(
		attribute.String("domain", domain),
		attribute.String("kind", kind),
		attribute.String("currency", currency),
	))
}

// NoOpBusinessMetrics is used when METRICS_ENABLED is false.
type NoOpBusinessMetrics struct{}

func NewNoOpBusinessMetrics() BusinessMetrics {
	return &NoOpBusinessMetrics{}
}

func (n *NoOpBusinessMetrics) RecordOperation(context.Context, string, string, string) {}

func (n *NoOpBusinessMetrics) RecordDuration(context.Context, string, string, time.Duration, string) {}

func (n *NoOpBusinessMetrics) RecordAmount(context.Context, string, string, string, int64) {}
