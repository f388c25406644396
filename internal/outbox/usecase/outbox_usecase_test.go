package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/allisson/payouts/internal/alert"
	alerttesting "github.com/allisson/payouts/internal/alert/testing"
	"github.com/allisson/payouts/internal/outbox/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// MockTxManager is a mock implementation of database.TxManager
type MockTxManager struct {
	mock.Mock
}

func (m *MockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx, fn)
	if args.Get(0) != nil {
		return args.Error(0)
	}
	// Execute the function to test the logic inside
	return fn(ctx)
}

// MockOutboxEventRepository is a mock implementation of OutboxEventRepository
type MockOutboxEventRepository struct {
	mock.Mock
}

func (m *MockOutboxEventRepository) GetDueEvents(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*domain.OutboxEvent, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.OutboxEvent), args.Error(1)
}

func (m *MockOutboxEventRepository) Claim(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	args := m.Called(ctx, id, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockOutboxEventRepository) Complete(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockOutboxEventRepository) Reschedule(
	ctx context.Context,
	id uuid.UUID,
	attemptCount int,
	nextAttemptAt time.Time,
	lastError string,
) (bool, error) {
	args := m.Called(ctx, id, attemptCount, nextAttemptAt, lastError)
	return args.Bool(0), args.Error(1)
}

func (m *MockOutboxEventRepository) MarkDead(
	ctx context.Context,
	id uuid.UUID,
	attemptCount int,
	lastError string,
) (bool, error) {
	args := m.Called(ctx, id, attemptCount, lastError)
	return args.Bool(0), args.Error(1)
}

func (m *MockOutboxEventRepository) GetStaleEvents(
	ctx context.Context,
	claimedBefore time.Time,
	limit int,
) ([]*domain.OutboxEvent, error) {
	args := m.Called(ctx, claimedBefore, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.OutboxEvent), args.Error(1)
}

// MockEventProcessor is a mock implementation of EventProcessor
type MockEventProcessor struct {
	mock.Mock
}

func (m *MockEventProcessor) Process(ctx context.Context, event *domain.OutboxEvent, payload domain.Payload) error {
	args := m.Called(ctx, event, payload)
	return args.Error(0)
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		Interval:    5 * time.Second,
		BatchSize:   10,
		MaxAttempts: 4,
		Backoff:     domain.BackoffPolicy{Base: time.Second, Cap: time.Minute},
		Now:         func() time.Time { return fixedNow },
	}
}

func newReleaseEvent(t *testing.T, attempts int) *domain.OutboxEvent {
	t.Helper()
	event, err := domain.NewEvent(&domain.ReleaseTransferPayload{
		BountyID:       "bounty-1",
		HunterID:       "hunter-1",
		Amount:         9500,
		Currency:       "USD",
		DestinationRef: "acct_1",
		IdempotencyKey: "key-1",
	}, attempts, fixedNow)
	require.NoError(t, err)
	return event
}

func setupUseCase(
	config Config,
) (*OutboxUseCase, *MockTxManager, *MockOutboxEventRepository, *MockEventProcessor, *alerttesting.Recorder) {
	txManager := &MockTxManager{}
	outboxRepo := &MockOutboxEventRepository{}
	processor := &MockEventProcessor{}
	alerts := &alerttesting.Recorder{}

	uc := NewOutboxUseCase(config, txManager, outboxRepo,
		map[string]EventProcessor{domain.EventTypeReleaseTransfer: processor}, alerts, nil, nil)
	return uc, txManager, outboxRepo, processor, alerts
}

func TestNewOutboxUseCase(t *testing.T) {
	config := testConfig()
	uc, _, _, _, _ := setupUseCase(config)

	assert.NotNil(t, uc)
	assert.Equal(t, config.Interval, uc.config.Interval)
	assert.Equal(t, config.BatchSize, uc.config.BatchSize)
	assert.Equal(t, config.MaxAttempts, uc.config.MaxAttempts)
}

func TestOutboxUseCase_Start_ContextCancellation(t *testing.T) {
	config := testConfig()
	config.Interval = 100 * time.Millisecond
	uc, _, _, _, _ := setupUseCase(config)

	ctx, cancel := context.WithCancel(context.Background())

	// Cancel context immediately
	cancel()

	err := uc.Start(ctx)
	assert.Error(t, err)
	assert.Equal(t, context.Canceled, err)
}

func TestOutboxUseCase_Start_StopsWithoutLeaking(t *testing.T) {
	config := testConfig()
	config.Interval = 10 * time.Millisecond
	uc, txManager, outboxRepo, _, _ := setupUseCase(config)

	txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
	outboxRepo.On("GetDueEvents", mock.Anything, fixedNow, 10).Return([]*domain.OutboxEvent{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- uc.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("outbox loop did not stop")
	}
}

func TestOutboxUseCase_ProcessEvents_Success(t *testing.T) {
	uc, txManager, outboxRepo, processor, alerts := setupUseCase(testConfig())
	ctx := context.Background()
	event := newReleaseEvent(t, 1)

	txManager.On("WithTx", ctx, mock.AnythingOfType("func(context.Context) error")).Return(nil)
	outboxRepo.On("GetDueEvents", ctx, fixedNow, 10).Return([]*domain.OutboxEvent{event}, nil)
	outboxRepo.On("Claim", ctx, event.ID, fixedNow).Return(true, nil)
	processor.On("Process", mock.Anything, event, mock.AnythingOfType("*domain.ReleaseTransferPayload")).
		Return(nil)
	outboxRepo.On("Complete", mock.Anything, event.ID).Return(true, nil)

	err := uc.ProcessEvents(ctx)

	assert.NoError(t, err)
	assert.Equal(t, domain.OutboxEventStatusProcessing, event.Status)
	assert.Empty(t, alerts.Alerts())
	txManager.AssertExpectations(t)
	outboxRepo.AssertExpectations(t)
	processor.AssertExpectations(t)
}

func TestOutboxUseCase_ProcessEvents_NoEvents(t *testing.T) {
	uc, txManager, outboxRepo, processor, _ := setupUseCase(testConfig())
	ctx := context.Background()

	txManager.On("WithTx", ctx, mock.AnythingOfType("func(context.Context) error")).Return(nil)
	outboxRepo.On("GetDueEvents", ctx, fixedNow, 10).Return([]*domain.OutboxEvent{}, nil)

	err := uc.ProcessEvents(ctx)

	assert.NoError(t, err)
	processor.AssertNotCalled(t, "Process", mock.Anything, mock.Anything, mock.Anything)
}

func TestOutboxUseCase_ProcessEvents_LostClaimIsSkipped(t *testing.T) {
	uc, txManager, outboxRepo, processor, _ := setupUseCase(testConfig())
	ctx := context.Background()
	event := newReleaseEvent(t, 1)

	txManager.On("WithTx", ctx, mock.Anything).Return(nil)
	outboxRepo.On("GetDueEvents", ctx, fixedNow, 10).Return([]*domain.OutboxEvent{event}, nil)
	outboxRepo.On("Claim", ctx, event.ID, fixedNow).Return(false, nil)

	err := uc.ProcessEvents(ctx)

	assert.NoError(t, err)
	processor.AssertNotCalled(t, "Process", mock.Anything, mock.Anything, mock.Anything)
}

func TestOutboxUseCase_ProcessEvents_RetryableFailureReschedules(t *testing.T) {
	uc, txManager, outboxRepo, processor, alerts := setupUseCase(testConfig())
	ctx := context.Background()
	event := newReleaseEvent(t, 1)
	processingError := errors.New("gateway timeout")

	txManager.On("WithTx", ctx, mock.Anything).Return(nil)
	outboxRepo.On("GetDueEvents", ctx, fixedNow, 10).Return([]*domain.OutboxEvent{event}, nil)
	outboxRepo.On("Claim", ctx, event.ID, fixedNow).Return(true, nil)
	processor.On("Process", mock.Anything, event, mock.Anything).Return(processingError)
	// Second attempt overall, so the wait is base*2.
	outboxRepo.On("Reschedule", mock.Anything, event.ID, 2, fixedNow.Add(2*time.Second), "gateway timeout").
		Return(true, nil)

	err := uc.ProcessEvents(ctx)

	assert.NoError(t, err)
	assert.Empty(t, alerts.Alerts())
	outboxRepo.AssertExpectations(t)
}

func TestOutboxUseCase_ProcessEvents_MaxAttemptsReached(t *testing.T) {
	uc, txManager, outboxRepo, processor, alerts := setupUseCase(testConfig())
	ctx := context.Background()
	event := newReleaseEvent(t, 3) // Will become 4 after this attempt

	txManager.On("WithTx", ctx, mock.Anything).Return(nil)
	outboxRepo.On("GetDueEvents", ctx, fixedNow, 10).Return([]*domain.OutboxEvent{event}, nil)
	outboxRepo.On("Claim", ctx, event.ID, fixedNow).Return(true, nil)
	processor.On("Process", mock.Anything, event, mock.Anything).Return(errors.New("still down"))
	outboxRepo.On("MarkDead", mock.Anything, event.ID, 4, "still down").Return(true, nil)

	err := uc.ProcessEvents(ctx)

	assert.NoError(t, err)
	outboxRepo.AssertNotCalled(t, "Reschedule", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 1, alerts.Count(alert.KindOutboxDead))
}

func TestOutboxUseCase_ProcessEvents_PermanentFailureKillsEvent(t *testing.T) {
	uc, txManager, outboxRepo, processor, alerts := setupUseCase(testConfig())
	ctx := context.Background()
	event := newReleaseEvent(t, 1)
	permanent := fmt.Errorf("%w: destination closed", domain.ErrPermanentFailure)

	txManager.On("WithTx", ctx, mock.Anything).Return(nil)
	outboxRepo.On("GetDueEvents", ctx, fixedNow, 10).Return([]*domain.OutboxEvent{event}, nil)
	outboxRepo.On("Claim", ctx, event.ID, fixedNow).Return(true, nil)
	processor.On("Process", mock.Anything, event, mock.Anything).Return(permanent)
	outboxRepo.On("MarkDead", mock.Anything, event.ID, 2, permanent.Error()).Return(true, nil)

	err := uc.ProcessEvents(ctx)

	assert.NoError(t, err)
	assert.Equal(t, 1, alerts.Count(alert.KindOutboxDead))
}

func TestOutboxUseCase_ProcessEvents_UnknownEventTypeIsDead(t *testing.T) {
	uc, txManager, outboxRepo, processor, alerts := setupUseCase(testConfig())
	ctx := context.Background()
	event := &domain.OutboxEvent{
		ID:           uuid.Must(uuid.NewV7()),
		EventType:    "user.created",
		Payload:      `{"user_id": 1}`,
		Status:       domain.OutboxEventStatusPending,
		AttemptCount: 1,
	}

	txManager.On("WithTx", ctx, mock.Anything).Return(nil)
	outboxRepo.On("GetDueEvents", ctx, fixedNow, 10).Return([]*domain.OutboxEvent{event}, nil)
	outboxRepo.On("Claim", ctx, event.ID, fixedNow).Return(true, nil)
	outboxRepo.On("MarkDead", mock.Anything, event.ID, 1, mock.AnythingOfType("string")).Return(true, nil)

	err := uc.ProcessEvents(ctx)

	assert.NoError(t, err)
	processor.AssertNotCalled(t, "Process", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 1, alerts.Count(alert.KindOutboxDead))
}

func TestOutboxUseCase_ProcessEvents_AlreadyFinishedByWebhook(t *testing.T) {
	uc, txManager, outboxRepo, processor, alerts := setupUseCase(testConfig())
	ctx := context.Background()
	event := newReleaseEvent(t, 3)

	txManager.On("WithTx", ctx, mock.Anything).Return(nil)
	outboxRepo.On("GetDueEvents", ctx, fixedNow, 10).Return([]*domain.OutboxEvent{event}, nil)
	outboxRepo.On("Claim", ctx, event.ID, fixedNow).Return(true, nil)
	processor.On("Process", mock.Anything, event, mock.Anything).Return(errors.New("timeout"))
	// The webhook completed the event between claim and failure.
	outboxRepo.On("MarkDead", mock.Anything, event.ID, 4, "timeout").Return(false, nil)

	err := uc.ProcessEvents(ctx)

	assert.NoError(t, err)
	assert.Empty(t, alerts.Alerts())
}

func staleEvent(t *testing.T, attempts int) *domain.OutboxEvent {
	t.Helper()
	event := newReleaseEvent(t, attempts)
	event.Status = domain.OutboxEventStatusProcessing
	claimedAt := fixedNow.Add(-time.Hour)
	event.ClaimedAt = &claimedAt
	return event
}

func TestOutboxUseCase_ProcessEvents_RequeuesStaleAsAttempt(t *testing.T) {
	config := testConfig()
	config.StaleAfter = 5 * time.Minute
	uc, txManager, outboxRepo, _, alerts := setupUseCase(config)
	ctx := context.Background()
	event := staleEvent(t, 2)

	txManager.On("WithTx", ctx, mock.Anything).Return(nil)
	outboxRepo.On("GetStaleEvents", ctx, fixedNow.Add(-5*time.Minute), 10).
		Return([]*domain.OutboxEvent{event}, nil)
	outboxRepo.On("Reschedule", ctx, event.ID, 3, fixedNow, domain.ErrAbandoned.Error()).Return(true, nil)
	outboxRepo.On("GetDueEvents", ctx, fixedNow, 10).Return([]*domain.OutboxEvent{}, nil)

	err := uc.ProcessEvents(ctx)

	assert.NoError(t, err)
	assert.Empty(t, alerts.Alerts())
	outboxRepo.AssertExpectations(t)
}

func TestOutboxUseCase_ProcessEvents_StaleEventExhaustsAttempts(t *testing.T) {
	config := testConfig()
	config.StaleAfter = 5 * time.Minute
	uc, txManager, outboxRepo, _, alerts := setupUseCase(config)
	ctx := context.Background()
	event := staleEvent(t, 3)

	txManager.On("WithTx", ctx, mock.Anything).Return(nil)
	outboxRepo.On("GetStaleEvents", ctx, fixedNow.Add(-5*time.Minute), 10).
		Return([]*domain.OutboxEvent{event}, nil)
	outboxRepo.On("MarkDead", ctx, event.ID, 4, domain.ErrAbandoned.Error()).Return(true, nil)
	outboxRepo.On("GetDueEvents", ctx, fixedNow, 10).Return([]*domain.OutboxEvent{}, nil)

	err := uc.ProcessEvents(ctx)

	assert.NoError(t, err)
	assert.Equal(t, 1, alerts.Count(alert.KindOutboxDead))
	outboxRepo.AssertNotCalled(t, "Reschedule", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	outboxRepo.AssertExpectations(t)
}

func TestOutboxUseCase_ProcessEvents_StaleLookupErrorStopsTick(t *testing.T) {
	config := testConfig()
	config.StaleAfter = 5 * time.Minute
	uc, txManager, outboxRepo, _, _ := setupUseCase(config)
	ctx := context.Background()
	expectedErr := errors.New("database error")

	txManager.On("WithTx", ctx, mock.Anything).Return(nil)
	outboxRepo.On("GetStaleEvents", ctx, fixedNow.Add(-5*time.Minute), 10).Return(nil, expectedErr)

	err := uc.ProcessEvents(ctx)

	assert.ErrorIs(t, err, expectedErr)
	outboxRepo.AssertNotCalled(t, "GetDueEvents", mock.Anything, mock.Anything, mock.Anything)
}

func TestOutboxUseCase_ProcessEvents_GetDueEventsError(t *testing.T) {
	uc, txManager, outboxRepo, _, _ := setupUseCase(testConfig())
	ctx := context.Background()
	expectedErr := errors.New("database error")

	txManager.On("WithTx", ctx, mock.Anything).Return(nil)
	outboxRepo.On("GetDueEvents", ctx, fixedNow, 10).Return(nil, expectedErr)

	err := uc.ProcessEvents(ctx)

	assert.ErrorIs(t, err, expectedErr)
}

func TestOutboxUseCase_ProcessEvents_OutcomeErrorIsReturned(t *testing.T) {
	uc, txManager, outboxRepo, processor, _ := setupUseCase(testConfig())
	ctx := context.Background()
	event := newReleaseEvent(t, 1)
	expectedErr := errors.New("connection lost")

	txManager.On("WithTx", ctx, mock.Anything).Return(nil)
	outboxRepo.On("GetDueEvents", ctx, fixedNow, 10).Return([]*domain.OutboxEvent{event}, nil)
	outboxRepo.On("Claim", ctx, event.ID, fixedNow).Return(true, nil)
	processor.On("Process", mock.Anything, event, mock.Anything).Return(nil)
	outboxRepo.On("Complete", mock.Anything, event.ID).Return(false, expectedErr)

	err := uc.ProcessEvents(ctx)

	assert.ErrorIs(t, err, expectedErr)
}
