package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/allisson/payouts/internal/metrics"
	releaseDomain "github.com/allisson/payouts/internal/release/domain"
)

// releaseUseCaseWithMetrics decorates ReleaseUseCase with metrics instrumentation.
type releaseUseCaseWithMetrics struct {
	next    ReleaseUseCase
	metrics metrics.BusinessMetrics
}

// NewReleaseUseCaseWithMetrics wraps a ReleaseUseCase with metrics recording.
func NewReleaseUseCaseWithMetrics(useCase ReleaseUseCase, m metrics.BusinessMetrics) ReleaseUseCase {
	return &releaseUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// ReleaseFunds records metrics for release operations. Deferred and duplicate releases get
// their own status so dashboards can tell them apart from failures.
func (r *releaseUseCaseWithMetrics) ReleaseFunds(
	ctx context.Context,
	input *releaseDomain.ReleaseInput,
) (*releaseDomain.ReleaseResult, error) {
	start := time.Now()
	result, err := r.next.ReleaseFunds(ctx, input)

	status := "success"
	switch {
	case errors.Is(err, releaseDomain.ErrDuplicateRelease):
		status = "duplicate"
	case err != nil:
		status = "error"
	case result.Pending:
		status = "pending"
	}

	r.metrics.RecordOperation(ctx, "release", "release_funds", status)
	r.metrics.RecordDuration(ctx, "release", "release_funds", time.Since(start), status)
	if err == nil && result.Accepted {
		r.metrics.RecordAmount(ctx, "release", "release", result.Currency, result.ReleaseAmount)
		r.metrics.RecordAmount(ctx, "release", "fee", result.Currency, result.FeeAmount)
	}

	return result, err
}

// GetStatus records metrics for status lookups.
func (r *releaseUseCaseWithMetrics) GetStatus(
	ctx context.Context,
	bountyID string,
) (*releaseDomain.ReleaseStatus, error) {
	start := time.Now()
	status, err := r.next.GetStatus(ctx, bountyID)

	result := "success"
	if err != nil {
		result = "error"
	}

	r.metrics.RecordOperation(ctx, "release", "release_status", result)
	r.metrics.RecordDuration(ctx, "release", "release_status", time.Since(start), result)

	return status, err
}
