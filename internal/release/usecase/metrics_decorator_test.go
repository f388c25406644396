package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/payouts/internal/metrics"
	releaseDomain "github.com/allisson/payouts/internal/release/domain"
)

// mockBusinessMetrics is a mock implementation of metrics.BusinessMetrics for testing.
type mockBusinessMetrics struct {
	mock.Mock
}

func (m *mockBusinessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	m.Called(ctx, domain, operation, status)
}

func (m *mockBusinessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	m.Called(ctx, domain, operation, duration, status)
}

func (m *mockBusinessMetrics) RecordAmount(ctx context.Context, domain, kind, currency string, minorUnits int64) {
	m.Called(ctx, domain, kind, currency, minorUnits)
}

var _ metrics.BusinessMetrics = (*mockBusinessMetrics)(nil)

// mockReleaseUseCase is a mock implementation of ReleaseUseCase for testing.
type mockReleaseUseCase struct {
	mock.Mock
}

func (m *mockReleaseUseCase) ReleaseFunds(
	ctx context.Context,
	input *releaseDomain.ReleaseInput,
) (*releaseDomain.ReleaseResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*releaseDomain.ReleaseResult), args.Error(1)
}

func (m *mockReleaseUseCase) GetStatus(ctx context.Context, bountyID string) (*releaseDomain.ReleaseStatus, error) {
	args := m.Called(ctx, bountyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*releaseDomain.ReleaseStatus), args.Error(1)
}

func TestNewReleaseUseCaseWithMetrics(t *testing.T) {
	decorator := NewReleaseUseCaseWithMetrics(&mockReleaseUseCase{}, &mockBusinessMetrics{})

	assert.NotNil(t, decorator)
	assert.Implements(t, (*ReleaseUseCase)(nil), decorator)
}

func TestMetricsDecorator_ReleaseFunds(t *testing.T) {
	ctx := context.Background()
	input := &releaseDomain.ReleaseInput{BountyID: "bounty-1"}

	tests := []struct {
		name   string
		result *releaseDomain.ReleaseResult
		err    error
		status string
	}{
		{"Success_Completed", &releaseDomain.ReleaseResult{
			Accepted: true, Currency: "USD", ReleaseAmount: 4500, FeeAmount: 500,
		}, nil, "success"},
		{"Success_Pending", &releaseDomain.ReleaseResult{
			Accepted: true, Pending: true, Currency: "EUR", ReleaseAmount: 1000,
		}, nil, "pending"},
		{"Error_Duplicate", nil, releaseDomain.ErrDuplicateRelease, "duplicate"},
		{"Error_Other", nil, errors.New("boom"), "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useCase := &mockReleaseUseCase{}
			m := &mockBusinessMetrics{}

			useCase.On("ReleaseFunds", ctx, input).Return(tt.result, tt.err)
			m.On("RecordOperation", ctx, "release", "release_funds", tt.status).Once()
			m.On("RecordDuration", ctx, "release", "release_funds", mock.AnythingOfType("time.Duration"), tt.status).
				Once()
			if tt.result != nil {
				m.On("RecordAmount", ctx, "release", "release", tt.result.Currency, tt.result.ReleaseAmount).Once()
				m.On("RecordAmount", ctx, "release", "fee", tt.result.Currency, tt.result.FeeAmount).Once()
			}

			result, err := NewReleaseUseCaseWithMetrics(useCase, m).ReleaseFunds(ctx, input)

			assert.Equal(t, tt.result, result)
			assert.Equal(t, tt.err, err)
			useCase.AssertExpectations(t)
			m.AssertExpectations(t)
		})
	}
}

func TestMetricsDecorator_GetStatus(t *testing.T) {
	ctx := context.Background()
	useCase := &mockReleaseUseCase{}
	m := &mockBusinessMetrics{}
	status := &releaseDomain.ReleaseStatus{BountyID: "bounty-1"}

	useCase.On("GetStatus", ctx, "bounty-1").Return(status, nil)
	m.On("RecordOperation", ctx, "release", "release_status", "success").Once()
	m.On("RecordDuration", ctx, "release", "release_status", mock.AnythingOfType("time.Duration"), "success").Once()

	got, err := NewReleaseUseCaseWithMetrics(useCase, m).GetStatus(ctx, "bounty-1")

	assert.NoError(t, err)
	assert.Equal(t, status, got)
	m.AssertExpectations(t)
}
