package keymgmt

import (
	"context"

	"github.com/compliance-service/erasure_service/internal/domain/entities"
)

// Provider is the key-management capability the engine consumes. The engine
// never sees key material: it observes metadata, requests destruction, and
// asks for decryption attempts when proving erasure.
//
// DestroyKey must be idempotent: destroying an already-destroyed or absent key
// is not an error. GetKey returns pkg/errors.ErrKeyNotFound for unknown keys.
type Provider interface {
	GetKey(ctx context.Context, keyID string) (*entities.EncryptionKey, error)
	DestroyKey(ctx context.Context, keyID string) error
	Decrypt(ctx context.Context, keyID string, ciphertext []byte) ([]byte, error)
}
