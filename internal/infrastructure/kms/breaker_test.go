package kms

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/compliance-service/erasure_service/internal/domain/entities"
	apperrors "github.com/compliance-service/erasure_service/pkg/errors"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) GetKey(ctx context.Context, keyID string) (*entities.EncryptionKey, error) {
	args := m.Called(ctx, keyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.EncryptionKey), args.Error(1)
}

func (m *mockProvider) DestroyKey(ctx context.Context, keyID string) error {
	args := m.Called(ctx, keyID)
	return args.Error(0)
}

func (m *mockProvider) Decrypt(ctx context.Context, keyID string, ciphertext []byte) ([]byte, error) {
	args := m.Called(ctx, keyID, ciphertext)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func testBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxConsecutiveFails: 2,
		OpenTimeout:         time.Minute,
	}
}

func TestBreakerProvider_Delegates(t *testing.T) {
	inner := &mockProvider{}
	provider := NewBreakerProvider(inner, testBreakerConfig(), zaptest.NewLogger(t))
	ctx := context.Background()

	inner.On("GetKey", ctx, "k1").Return(&entities.EncryptionKey{KeyID: "k1"}, nil).Once()
	inner.On("DestroyKey", ctx, "k1").Return(nil).Once()
	inner.On("Decrypt", ctx, "k1", []byte("c")).Return([]byte("p"), nil).Once()

	key, err := provider.GetKey(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "k1", key.KeyID)

	require.NoError(t, provider.DestroyKey(ctx, "k1"))

	plaintext, err := provider.Decrypt(ctx, "k1", []byte("c"))
	require.NoError(t, err)
	assert.Equal(t, []byte("p"), plaintext)
	inner.AssertExpectations(t)
}

func TestBreakerProvider_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &mockProvider{}
	provider := NewBreakerProvider(inner, testBreakerConfig(), zaptest.NewLogger(t))
	ctx := context.Background()

	inner.On("GetKey", ctx, "k1").Return(nil, errors.New("kms timeout"))

	for i := 0; i < 3; i++ {
		_, err := provider.GetKey(ctx, "k1")
		require.Error(t, err)
	}

	// The circuit is open now; the inner provider is no longer consulted.
	_, err := provider.GetKey(ctx, "k1")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))
	inner.AssertNumberOfCalls(t, "GetKey", 3)
}

func TestBreakerProvider_DomainOutcomesDoNotTrip(t *testing.T) {
	inner := &mockProvider{}
	provider := NewBreakerProvider(inner, testBreakerConfig(), zaptest.NewLogger(t))
	ctx := context.Background()

	inner.On("GetKey", ctx, "ghost").Return(nil, apperrors.ErrKeyNotFound)
	inner.On("Decrypt", ctx, "dead", mock.Anything).Return(nil, apperrors.NewInvalidState("key has been destroyed"))

	for i := 0; i < 10; i++ {
		_, err := provider.GetKey(ctx, "ghost")
		assert.True(t, errors.Is(err, apperrors.ErrKeyNotFound))

		_, err = provider.Decrypt(ctx, "dead", []byte("c"))
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidState))
	}

	// Every call went through: not-found answers never open the circuit.
	inner.AssertNumberOfCalls(t, "GetKey", 10)
}
