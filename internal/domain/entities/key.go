package entities

import "time"

// KeyStatus is the lifecycle state reported by the key management provider
type KeyStatus string

const (
	KeyStatusActive             KeyStatus = "active"
	KeyStatusDecryptOnly        KeyStatus = "decrypt_only"
	KeyStatusPendingDestruction KeyStatus = "pending_destruction"
	KeyStatusDestroyed          KeyStatus = "destroyed"
)

// IsDestroyed reports whether the key can no longer decrypt anything. A key
// pending destruction counts: its material is already unavailable.
func (s KeyStatus) IsDestroyed() bool {
	return s == KeyStatusDestroyed || s == KeyStatusPendingDestruction
}

// EncryptionKey is the metadata the key management provider exposes about a
// key. The engine only observes status and requests destruction; key material
// never crosses this boundary.
type EncryptionKey struct {
	KeyID     string     `json:"key_id"`
	Status    KeyStatus  `json:"status"`
	Algorithm string     `json:"algorithm"`
	Purpose   string     `json:"purpose"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
