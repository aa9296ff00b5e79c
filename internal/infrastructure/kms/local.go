package kms

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/compliance-service/erasure_service/internal/domain/entities"
	"github.com/compliance-service/erasure_service/pkg/crypto"
	apperrors "github.com/compliance-service/erasure_service/pkg/errors"
	"github.com/compliance-service/erasure_service/pkg/metrics"
)

// LocalProvider is an in-process key management provider backed by AES-GCM.
// Destruction zeroes the key material and flips status, which is exactly the
// observable behavior crypto-shredding relies on.
type LocalProvider struct {
	mu     sync.RWMutex
	keys   map[string]*localKey
	logger *zap.Logger
}

type localKey struct {
	meta     entities.EncryptionKey
	material string
}

// NewLocalProvider creates an empty local key store
func NewLocalProvider(logger *zap.Logger) *LocalProvider {
	return &LocalProvider{
		keys:   make(map[string]*localKey),
		logger: logger,
	}
}

// CreateKey generates a new AES-256 key under the given ID and purpose
func (p *LocalProvider) CreateKey(ctx context.Context, keyID, purpose string) (*entities.EncryptionKey, error) {
	material, err := crypto.GenerateKeyMaterial()
	if err != nil {
		return nil, apperrors.WrapInternal(err, "failed to generate key material")
	}

	key := &localKey{
		meta: entities.EncryptionKey{
			KeyID:     keyID,
			Status:    entities.KeyStatusActive,
			Algorithm: "AES-256-GCM",
			Purpose:   purpose,
			CreatedAt: time.Now(),
		},
		material: material,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.keys[keyID]; ok {
		meta := existing.meta
		return &meta, nil
	}
	p.keys[keyID] = key

	meta := key.meta
	return &meta, nil
}

// GetKey returns key metadata, or ErrKeyNotFound for unknown IDs
func (p *LocalProvider) GetKey(ctx context.Context, keyID string) (*entities.EncryptionKey, error) {
	metrics.KMSCallsTotal.WithLabelValues("get_key", "success").Inc()

	p.mu.RLock()
	defer p.mu.RUnlock()

	key, ok := p.keys[keyID]
	if !ok {
		return nil, apperrors.ErrKeyNotFound
	}

	meta := key.meta
	return &meta, nil
}

// DestroyKey zeroes the key material. Destroying an absent or already
// destroyed key succeeds: the caller cares that the key cannot decrypt, not
// that this call was first.
func (p *LocalProvider) DestroyKey(ctx context.Context, keyID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key, ok := p.keys[keyID]
	if !ok {
		metrics.KMSCallsTotal.WithLabelValues("destroy_key", "success").Inc()
		return nil
	}
	if key.meta.Status.IsDestroyed() {
		metrics.KMSCallsTotal.WithLabelValues("destroy_key", "success").Inc()
		return nil
	}

	key.material = ""
	key.meta.Status = entities.KeyStatusDestroyed
	metrics.KMSCallsTotal.WithLabelValues("destroy_key", "success").Inc()

	p.logger.Info("Key destroyed", zap.String("key_id", keyID))
	return nil
}

// Encrypt encrypts plaintext under an active key
func (p *LocalProvider) Encrypt(ctx context.Context, keyID string, plaintext []byte) ([]byte, error) {
	p.mu.RLock()
	key, ok := p.keys[keyID]
	var material string
	var destroyed bool
	if ok {
		material = key.material
		destroyed = key.meta.Status.IsDestroyed()
	}
	p.mu.RUnlock()

	if !ok {
		return nil, apperrors.ErrKeyNotFound
	}
	if destroyed {
		return nil, apperrors.NewInvalidState("key has been destroyed")
	}

	return crypto.Encrypt(plaintext, material)
}

// Decrypt attempts decryption. A destroyed key always fails, which is the
// property the verification engine probes for.
func (p *LocalProvider) Decrypt(ctx context.Context, keyID string, ciphertext []byte) ([]byte, error) {
	p.mu.RLock()
	key, ok := p.keys[keyID]
	var material string
	var destroyed bool
	if ok {
		material = key.material
		destroyed = key.meta.Status.IsDestroyed()
	}
	p.mu.RUnlock()

	if !ok {
		metrics.KMSCallsTotal.WithLabelValues("decrypt", "failure").Inc()
		return nil, apperrors.ErrKeyNotFound
	}
	if destroyed {
		metrics.KMSCallsTotal.WithLabelValues("decrypt", "failure").Inc()
		return nil, apperrors.NewInvalidState("key has been destroyed")
	}

	plaintext, err := crypto.Decrypt(ciphertext, material)
	if err != nil {
		metrics.KMSCallsTotal.WithLabelValues("decrypt", "failure").Inc()
		return nil, apperrors.WrapExternal(err, "decryption failed")
	}

	metrics.KMSCallsTotal.WithLabelValues("decrypt", "success").Inc()
	return plaintext, nil
}
