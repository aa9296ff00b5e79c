package legalhold

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
	"github.com/compliance-service/erasure_service/pkg/crypto"
	apperrors "github.com/compliance-service/erasure_service/pkg/errors"
)

type mockHoldRepository struct {
	mock.Mock
}

func (m *mockHoldRepository) Save(ctx context.Context, hold *entities.LegalHold) error {
	args := m.Called(ctx, hold)
	return args.Error(0)
}

func (m *mockHoldRepository) GetByID(ctx context.Context, holdID uuid.UUID) (*entities.LegalHold, error) {
	args := m.Called(ctx, holdID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.LegalHold), args.Error(1)
}

func (m *mockHoldRepository) Update(ctx context.Context, hold *entities.LegalHold) error {
	args := m.Called(ctx, hold)
	return args.Error(0)
}

func (m *mockHoldRepository) GetActiveForSubject(ctx context.Context, subjectHash, tenantID string) ([]*entities.LegalHold, error) {
	args := m.Called(ctx, subjectHash, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.LegalHold), args.Error(1)
}

func (m *mockHoldRepository) GetActiveForTenant(ctx context.Context, tenantID string) ([]*entities.LegalHold, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.LegalHold), args.Error(1)
}

func (m *mockHoldRepository) ListActive(ctx context.Context, tenantID string) ([]*entities.LegalHold, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.LegalHold), args.Error(1)
}

func (m *mockHoldRepository) ListAll(ctx context.Context, tenantID string) ([]*entities.LegalHold, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.LegalHold), args.Error(1)
}

func (m *mockHoldRepository) GetExpired(ctx context.Context, now time.Time) ([]*entities.LegalHold, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.LegalHold), args.Error(1)
}

const testSalt = "registry-test-salt"

func newTestRegistry(t *testing.T) (*Registry, *mockHoldRepository) {
	repo := &mockHoldRepository{}
	return NewRegistry(repo, testSalt, zaptest.NewLogger(t)), repo
}

func validHoldRequest() *entities.CreateHoldRequest {
	return &entities.CreateHoldRequest{
		DataSubjectID: "user-1",
		IDType:        entities.IDTypeUserID,
		Basis:         entities.BasisLitigationHold,
		CaseReference: "CASE-2026-117",
		Description:   "Pending litigation, subject data must be preserved",
		CreatedBy:     "legal@example.com",
	}
}

func TestRegistry_CreateHold_SubjectScoped(t *testing.T) {
	registry, repo := newTestRegistry(t)
	ctx := context.Background()

	var saved *entities.LegalHold
	repo.On("Save", ctx, mock.AnythingOfType("*entities.LegalHold")).Run(func(args mock.Arguments) {
		saved = args.Get(1).(*entities.LegalHold)
	}).Return(nil).Once()

	hold, err := registry.CreateHold(ctx, validHoldRequest())

	require.NoError(t, err)
	assert.True(t, hold.IsActive)
	assert.NotEqual(t, uuid.Nil, hold.HoldID)
	assert.False(t, hold.IsTenantWide())

	require.NotNil(t, saved)
	require.NotNil(t, saved.DataSubjectIDHash)
	assert.Equal(t, crypto.HashSubjectID("user-1", string(entities.IDTypeUserID), testSalt), *saved.DataSubjectIDHash)
	assert.NotContains(t, *saved.DataSubjectIDHash, "user-1")
	repo.AssertExpectations(t)
}

func TestRegistry_CreateHold_TenantWide(t *testing.T) {
	registry, repo := newTestRegistry(t)
	ctx := context.Background()

	req := validHoldRequest()
	req.DataSubjectID = ""
	req.TenantID = "acme"

	repo.On("Save", ctx, mock.Anything).Return(nil).Once()

	hold, err := registry.CreateHold(ctx, req)

	require.NoError(t, err)
	assert.True(t, hold.IsTenantWide())
	assert.Nil(t, hold.DataSubjectIDHash)
	assert.Equal(t, "acme", hold.TenantID)
}

func TestRegistry_CreateHold_Validation(t *testing.T) {
	registry, repo := newTestRegistry(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)

	cases := []struct {
		name   string
		mutate func(*entities.CreateHoldRequest)
	}{
		{"neither subject nor tenant", func(r *entities.CreateHoldRequest) { r.DataSubjectID = ""; r.TenantID = "" }},
		{"missing case reference", func(r *entities.CreateHoldRequest) { r.CaseReference = " " }},
		{"missing description", func(r *entities.CreateHoldRequest) { r.Description = "" }},
		{"missing creator", func(r *entities.CreateHoldRequest) { r.CreatedBy = "" }},
		{"unknown basis", func(r *entities.CreateHoldRequest) { r.Basis = "vibes" }},
		{"expiry in the past", func(r *entities.CreateHoldRequest) { r.ExpiresAt = &past }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validHoldRequest()
			tc.mutate(req)

			_, err := registry.CreateHold(ctx, req)

			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
		})
	}

	repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestRegistry_ReleaseHold(t *testing.T) {
	ctx := context.Background()
	holdID := uuid.New()

	t.Run("active hold releases", func(t *testing.T) {
		registry, repo := newTestRegistry(t)
		repo.On("GetByID", ctx, holdID).Return(&entities.LegalHold{
			HoldID:   holdID,
			IsActive: true,
		}, nil).Once()
		repo.On("Update", ctx, mock.Anything).Return(nil).Once()

		hold, err := registry.ReleaseHold(ctx, holdID, "case settled", "legal@example.com")

		require.NoError(t, err)
		assert.False(t, hold.IsActive)
		assert.Equal(t, "legal@example.com", hold.ReleasedBy)
		assert.Equal(t, "case settled", hold.ReleaseReason)
		require.NotNil(t, hold.ReleasedAt)
		repo.AssertExpectations(t)
	})

	t.Run("already released refuses", func(t *testing.T) {
		registry, repo := newTestRegistry(t)
		repo.On("GetByID", ctx, holdID).Return(&entities.LegalHold{
			HoldID:   holdID,
			IsActive: false,
		}, nil).Once()

		_, err := registry.ReleaseHold(ctx, holdID, "reason", "legal")

		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidState))
		repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("unknown hold is not found", func(t *testing.T) {
		registry, repo := newTestRegistry(t)
		repo.On("GetByID", ctx, holdID).Return(nil, nil).Once()

		_, err := registry.ReleaseHold(ctx, holdID, "reason", "legal")

		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
	})

	t.Run("missing reason rejected before lookup", func(t *testing.T) {
		registry, repo := newTestRegistry(t)

		_, err := registry.ReleaseHold(ctx, holdID, "", "legal")

		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
		repo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	})
}

func TestRegistry_CheckHolds_MergesAndOrders(t *testing.T) {
	registry, repo := newTestRegistry(t)
	ctx := context.Background()

	subjectHash := crypto.HashSubjectID("user-1", string(entities.IDTypeUserID), testSalt)

	older := &entities.LegalHold{HoldID: uuid.New(), IsActive: true, CreatedAt: time.Now().Add(-72 * time.Hour)}
	newer := &entities.LegalHold{HoldID: uuid.New(), IsActive: true, CreatedAt: time.Now().Add(-time.Hour)}

	// The tenant sweep returns the subject hold again; it must not be counted twice.
	repo.On("GetActiveForSubject", ctx, subjectHash, "acme").Return([]*entities.LegalHold{newer}, nil).Once()
	repo.On("GetActiveForTenant", ctx, "acme").Return([]*entities.LegalHold{older, newer}, nil).Once()

	result, err := registry.CheckHolds(ctx, "user-1", entities.IDTypeUserID, "acme")

	require.NoError(t, err)
	assert.True(t, result.HasActiveHolds)
	assert.True(t, result.ErasureBlocked)
	require.Len(t, result.Holds, 2)
	assert.Equal(t, older.HoldID, result.Holds[0].HoldID)
	assert.Equal(t, older.HoldID, result.FirstBlockingHold().HoldID)
}

func TestRegistry_CheckHolds_NoHolds(t *testing.T) {
	registry, repo := newTestRegistry(t)
	ctx := context.Background()

	repo.On("GetActiveForSubject", ctx, mock.AnythingOfType("string"), "").Return([]*entities.LegalHold{}, nil).Once()

	result, err := registry.CheckHolds(ctx, "user-2", entities.IDTypeUserID, "")

	require.NoError(t, err)
	assert.False(t, result.HasActiveHolds)
	assert.False(t, result.ErasureBlocked)
	assert.Empty(t, result.Holds)
	assert.Nil(t, result.FirstBlockingHold())
	// No tenant means no tenant-wide sweep.
	repo.AssertNotCalled(t, "GetActiveForTenant", mock.Anything, mock.Anything)
}

func TestRegistry_DeactivateExpired(t *testing.T) {
	registry, repo := newTestRegistry(t)
	ctx := context.Background()

	expiry := time.Now().Add(-time.Minute)
	stuck := &entities.LegalHold{HoldID: uuid.New(), IsActive: true, ExpiresAt: &expiry}
	fine := &entities.LegalHold{HoldID: uuid.New(), IsActive: true, ExpiresAt: &expiry}

	repo.On("GetExpired", ctx, mock.AnythingOfType("time.Time")).
		Return([]*entities.LegalHold{stuck, fine}, nil).Once()
	repo.On("Update", ctx, stuck).Return(errors.New("store down")).Once()
	repo.On("Update", ctx, fine).Return(nil).Once()

	deactivated, err := registry.DeactivateExpired(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, deactivated)
	assert.False(t, fine.IsActive)
	repo.AssertExpectations(t)
}
