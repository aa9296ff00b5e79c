package erasurescheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/compliance-service/erasure_service/internal/domain/entities"
	"github.com/compliance-service/erasure_service/pkg/pagination"
)

type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) Execute(ctx context.Context, requestID uuid.UUID) (*entities.ExecutionResult, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.ExecutionResult), args.Error(1)
}

type mockRequestRepository struct {
	mock.Mock
}

func (m *mockRequestRepository) Save(ctx context.Context, status *entities.ErasureStatus) error {
	args := m.Called(ctx, status)
	return args.Error(0)
}

func (m *mockRequestRepository) GetStatus(ctx context.Context, requestID uuid.UUID) (*entities.ErasureStatus, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.ErasureStatus), args.Error(1)
}

func (m *mockRequestRepository) UpdateStatusIf(ctx context.Context, requestID uuid.UUID, expected, next entities.RequestStatus) error {
	args := m.Called(ctx, requestID, expected, next)
	return args.Error(0)
}

func (m *mockRequestRepository) RecordCompletion(ctx context.Context, requestID uuid.UUID, completedAt time.Time, deletedKeyIDs []string, recordsAffected int, certificateID uuid.UUID) error {
	args := m.Called(ctx, requestID, completedAt, deletedKeyIDs, recordsAffected, certificateID)
	return args.Error(0)
}

func (m *mockRequestRepository) RecordFailure(ctx context.Context, requestID uuid.UUID, errorMessage string) error {
	args := m.Called(ctx, requestID, errorMessage)
	return args.Error(0)
}

func (m *mockRequestRepository) RecordCancellation(ctx context.Context, requestID uuid.UUID, reason, cancelledBy string) error {
	args := m.Called(ctx, requestID, reason, cancelledBy)
	return args.Error(0)
}

func (m *mockRequestRepository) MarkRetry(ctx context.Context, requestID uuid.UUID, nextExecution time.Time) error {
	args := m.Called(ctx, requestID, nextExecution)
	return args.Error(0)
}

func (m *mockRequestRepository) List(ctx context.Context, filter entities.ListRequestsFilter, params pagination.Params) ([]*entities.ErasureStatus, int64, error) {
	args := m.Called(ctx, filter, params)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*entities.ErasureStatus), args.Get(1).(int64), args.Error(2)
}

func (m *mockRequestRepository) GetScheduledBefore(ctx context.Context, dueBefore time.Time, limit int) ([]*entities.ErasureStatus, error) {
	args := m.Called(ctx, dueBefore, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.ErasureStatus), args.Error(1)
}

type mockPurger struct {
	mock.Mock
}

func (m *mockPurger) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

type mockSweeper struct {
	mock.Mock
}

func (m *mockSweeper) DeactivateExpired(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) Verify(ctx context.Context, requestID uuid.UUID) *entities.VerificationResult {
	args := m.Called(ctx, requestID)
	return args.Get(0).(*entities.VerificationResult)
}

func testSchedulerConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.BatchSize = 10
	cfg.MaxConcurrency = 2
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

func dueRequest() *entities.ErasureStatus {
	return &entities.ErasureStatus{
		RequestID:              uuid.New(),
		Status:                 entities.StatusScheduled,
		ScheduledExecutionTime: time.Now().Add(-time.Minute),
	}
}

func TestScheduler_ExecutesDueRequests(t *testing.T) {
	executor := &mockExecutor{}
	requests := &mockRequestRepository{}
	purger := &mockPurger{}

	due := dueRequest()
	executed := make(chan uuid.UUID, 1)

	requests.On("GetScheduledBefore", mock.Anything, mock.AnythingOfType("time.Time"), 10).
		Return([]*entities.ErasureStatus{due}, nil).Once()
	requests.On("GetScheduledBefore", mock.Anything, mock.AnythingOfType("time.Time"), 10).
		Return([]*entities.ErasureStatus{}, nil)

	executor.On("Execute", mock.Anything, due.RequestID).Run(func(args mock.Arguments) {
		executed <- args.Get(1).(uuid.UUID)
	}).Return(&entities.ExecutionResult{RequestID: due.RequestID, Success: true}, nil).Once()

	scheduler := NewScheduler(executor, requests, purger, nil, nil, testSchedulerConfig(), zaptest.NewLogger(t))
	require.NoError(t, scheduler.Start())
	defer scheduler.Stop()

	select {
	case id := <-executed:
		assert.Equal(t, due.RequestID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("due request was not executed")
	}
}

func TestScheduler_DisabledDoesNothing(t *testing.T) {
	requests := &mockRequestRepository{}
	cfg := testSchedulerConfig()
	cfg.Enabled = false

	scheduler := NewScheduler(&mockExecutor{}, requests, &mockPurger{}, nil, nil, cfg, zaptest.NewLogger(t))

	require.NoError(t, scheduler.Start())
	assert.False(t, scheduler.IsRunning())
	requests.AssertNotCalled(t, "GetScheduledBefore", mock.Anything, mock.Anything, mock.Anything)
}

func TestScheduler_StartTwiceFails(t *testing.T) {
	requests := &mockRequestRepository{}
	requests.On("GetScheduledBefore", mock.Anything, mock.Anything, mock.Anything).
		Return([]*entities.ErasureStatus{}, nil)

	scheduler := NewScheduler(&mockExecutor{}, requests, &mockPurger{}, nil, nil, testSchedulerConfig(), zaptest.NewLogger(t))
	require.NoError(t, scheduler.Start())
	defer scheduler.Stop()

	assert.Error(t, scheduler.Start())
}

func TestScheduler_StopWithoutStartFails(t *testing.T) {
	scheduler := NewScheduler(&mockExecutor{}, &mockRequestRepository{}, &mockPurger{}, nil, nil, testSchedulerConfig(), zaptest.NewLogger(t))
	assert.Error(t, scheduler.Stop())
}

func TestScheduler_FailedExecutionRescheduledWithBackoff(t *testing.T) {
	executor := &mockExecutor{}
	requests := &mockRequestRepository{}

	due := dueRequest()
	due.RetryAttempts = 1

	executor.On("Execute", mock.Anything, due.RequestID).
		Return(&entities.ExecutionResult{RequestID: due.RequestID, Success: false, ErrorMessage: "kms unavailable"}, nil).Once()

	retried := make(chan time.Time, 1)
	requests.On("MarkRetry", mock.Anything, due.RequestID, mock.AnythingOfType("time.Time")).Run(func(args mock.Arguments) {
		retried <- args.Get(2).(time.Time)
	}).Return(nil).Once()

	cfg := testSchedulerConfig()
	cfg.RetryDelayBase = time.Hour
	scheduler := NewScheduler(executor, requests, &mockPurger{}, nil, nil, cfg, zaptest.NewLogger(t))

	scheduler.enqueue(due)
	scheduler.wg.Wait()

	select {
	case next := <-retried:
		// Second attempt with exponential backoff: base * 2^1 from now.
		assert.WithinDuration(t, time.Now().Add(2*time.Hour), next, 5*time.Second)
	default:
		t.Fatal("failed request was not re-scheduled")
	}
	executor.AssertExpectations(t)
}

func TestScheduler_ExhaustedRetriesStickAsFailure(t *testing.T) {
	executor := &mockExecutor{}
	requests := &mockRequestRepository{}

	due := dueRequest()
	due.RetryAttempts = 3 // budget already spent

	executor.On("Execute", mock.Anything, due.RequestID).
		Return(&entities.ExecutionResult{RequestID: due.RequestID, Success: false, ErrorMessage: "still failing"}, nil).Once()

	scheduler := NewScheduler(executor, requests, &mockPurger{}, nil, nil, testSchedulerConfig(), zaptest.NewLogger(t))

	scheduler.enqueue(due)
	scheduler.wg.Wait()

	requests.AssertNotCalled(t, "MarkRetry", mock.Anything, mock.Anything, mock.Anything)
}

func TestScheduler_ExecutionErrorDoesNotReschedule(t *testing.T) {
	executor := &mockExecutor{}
	requests := &mockRequestRepository{}

	due := dueRequest()
	executor.On("Execute", mock.Anything, due.RequestID).
		Return(nil, errors.New("store unavailable")).Once()

	scheduler := NewScheduler(executor, requests, &mockPurger{}, nil, nil, testSchedulerConfig(), zaptest.NewLogger(t))

	scheduler.enqueue(due)
	scheduler.wg.Wait()

	requests.AssertNotCalled(t, "MarkRetry", mock.Anything, mock.Anything, mock.Anything)
}

func TestScheduler_VerifiesCompletedErasures(t *testing.T) {
	executor := &mockExecutor{}
	verifier := &mockVerifier{}

	due := dueRequest()
	executor.On("Execute", mock.Anything, due.RequestID).
		Return(&entities.ExecutionResult{RequestID: due.RequestID, Success: true}, nil).Once()
	verifier.On("Verify", mock.Anything, due.RequestID).
		Return(&entities.VerificationResult{RequestID: due.RequestID, Verified: true}).Once()

	scheduler := NewScheduler(executor, &mockRequestRepository{}, &mockPurger{}, nil, verifier, testSchedulerConfig(), zaptest.NewLogger(t))

	scheduler.enqueue(due)
	scheduler.wg.Wait()

	verifier.AssertExpectations(t)
}

func TestScheduler_ConcurrencyLimitDefersOverflow(t *testing.T) {
	executor := &mockExecutor{}
	requests := &mockRequestRepository{}

	release := make(chan struct{})
	executor.On("Execute", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		<-release
	}).Return(&entities.ExecutionResult{Success: true}, nil)

	cfg := testSchedulerConfig()
	cfg.MaxConcurrency = 1
	scheduler := NewScheduler(executor, requests, &mockPurger{}, nil, nil, cfg, zaptest.NewLogger(t))

	first := dueRequest()
	second := dueRequest()
	scheduler.enqueue(first)
	scheduler.enqueue(second) // semaphore full, deferred to next poll

	close(release)
	scheduler.wg.Wait()

	executor.AssertNumberOfCalls(t, "Execute", 1)
}

func TestScheduler_PanicInExecutionIsContained(t *testing.T) {
	executor := &mockExecutor{}

	due := dueRequest()
	executor.On("Execute", mock.Anything, due.RequestID).Run(func(mock.Arguments) {
		panic("boom")
	}).Return(nil, nil).Once()

	scheduler := NewScheduler(executor, &mockRequestRepository{}, &mockPurger{}, nil, nil, testSchedulerConfig(), zaptest.NewLogger(t))

	scheduler.enqueue(due)
	scheduler.wg.Wait()

	// The semaphore slot was released despite the panic.
	next := dueRequest()
	executor.On("Execute", mock.Anything, next.RequestID).
		Return(&entities.ExecutionResult{RequestID: next.RequestID, Success: true}, nil).Once()
	scheduler.enqueue(next)
	scheduler.wg.Wait()

	executor.AssertExpectations(t)
}

func TestScheduler_PurgesExpiredCertificates(t *testing.T) {
	purger := &mockPurger{}
	purger.On("DeleteExpired", mock.Anything, mock.AnythingOfType("time.Time")).Return(3, nil).Once()

	scheduler := NewScheduler(&mockExecutor{}, &mockRequestRepository{}, purger, nil, nil, testSchedulerConfig(), zaptest.NewLogger(t))

	scheduler.purgeExpiredCertificates()

	purger.AssertExpectations(t)
}

func TestScheduler_SweepsExpiredHolds(t *testing.T) {
	sweeper := &mockSweeper{}
	sweeper.On("DeactivateExpired", mock.Anything).Return(2, nil).Once()

	scheduler := NewScheduler(&mockExecutor{}, &mockRequestRepository{}, &mockPurger{}, sweeper, nil, testSchedulerConfig(), zaptest.NewLogger(t))

	scheduler.sweepExpiredHolds()

	sweeper.AssertExpectations(t)
}
