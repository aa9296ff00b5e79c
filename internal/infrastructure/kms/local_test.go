package kms

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/compliance-service/erasure_service/internal/domain/entities"
	apperrors "github.com/compliance-service/erasure_service/pkg/errors"
)

func TestLocalProvider_KeyLifecycle(t *testing.T) {
	provider := NewLocalProvider(zaptest.NewLogger(t))
	ctx := context.Background()

	key, err := provider.CreateKey(ctx, "k1", "user:profile")
	require.NoError(t, err)
	assert.Equal(t, "k1", key.KeyID)
	assert.Equal(t, entities.KeyStatusActive, key.Status)
	assert.Equal(t, "AES-256-GCM", key.Algorithm)

	plaintext := []byte("subject data")
	ciphertext, err := provider.Encrypt(ctx, "k1", plaintext)
	require.NoError(t, err)

	decrypted, err := provider.Decrypt(ctx, "k1", ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)

	require.NoError(t, provider.DestroyKey(ctx, "k1"))

	got, err := provider.GetKey(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, entities.KeyStatusDestroyed, got.Status)

	// The crypto-shredding property: a destroyed key can never decrypt again.
	_, err = provider.Decrypt(ctx, "k1", ciphertext)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidState))

	_, err = provider.Encrypt(ctx, "k1", plaintext)
	assert.Error(t, err)
}

func TestLocalProvider_CreateKeyIsIdempotent(t *testing.T) {
	provider := NewLocalProvider(zaptest.NewLogger(t))
	ctx := context.Background()

	first, err := provider.CreateKey(ctx, "k1", "user:profile")
	require.NoError(t, err)
	ciphertext, err := provider.Encrypt(ctx, "k1", []byte("data"))
	require.NoError(t, err)

	// A second create must not rotate the material out from under callers.
	second, err := provider.CreateKey(ctx, "k1", "user:other")
	require.NoError(t, err)
	assert.Equal(t, first.Purpose, second.Purpose)

	decrypted, err := provider.Decrypt(ctx, "k1", ciphertext)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), decrypted)
}

func TestLocalProvider_GetKey_Unknown(t *testing.T) {
	provider := NewLocalProvider(zaptest.NewLogger(t))

	_, err := provider.GetKey(context.Background(), "ghost")

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrKeyNotFound))
}

func TestLocalProvider_DestroyKeyIsIdempotent(t *testing.T) {
	provider := NewLocalProvider(zaptest.NewLogger(t))
	ctx := context.Background()

	// Absent key: not an error.
	require.NoError(t, provider.DestroyKey(ctx, "ghost"))

	_, err := provider.CreateKey(ctx, "k1", "user:profile")
	require.NoError(t, err)
	require.NoError(t, provider.DestroyKey(ctx, "k1"))
	require.NoError(t, provider.DestroyKey(ctx, "k1"))
}

func TestLocalProvider_ConcurrentDestroy(t *testing.T) {
	provider := NewLocalProvider(zaptest.NewLogger(t))
	ctx := context.Background()

	_, err := provider.CreateKey(ctx, "k1", "user:profile")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, provider.DestroyKey(ctx, "k1"))
		}()
	}
	wg.Wait()

	got, err := provider.GetKey(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, got.Status.IsDestroyed())
}
