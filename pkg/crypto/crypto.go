package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// HashSubjectID produces the deterministic hash under which a data subject is
// referenced everywhere in storage. The cleartext identifier must never be
// persisted; only this value is. The hash is salted so identifiers cannot be
// recovered by brute-forcing common emails or user IDs.
func HashSubjectID(subjectID, idType, salt string) string {
	h := sha256.New()
	h.Write([]byte(salt))
	h.Write([]byte(strings.ToLower(idType)))
	h.Write([]byte(":"))
	h.Write([]byte(subjectID))
	return hex.EncodeToString(h.Sum(nil))
}

// SignHMAC computes an HMAC-SHA256 signature over the payload using the given
// signing key and returns it hex-encoded
func SignHMAC(payload []byte, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC checks a hex-encoded HMAC-SHA256 signature in constant time
func VerifyHMAC(payload []byte, signature, key string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expected)
}

// ContentHash returns a hex-encoded SHA-256 digest of the payload, used for
// deterministic verification result and report hashes
func ContentHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Encrypt encrypts data using AES-GCM with a key derived from the key material
// via SHA-256
func Encrypt(plaintext []byte, keyMaterial string) ([]byte, error) {
	keyBytes := sha256.Sum256([]byte(keyMaterial))

	block, err := aes.NewCipher(keyBytes[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to create nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt decrypts AES-GCM data produced by Encrypt
func Decrypt(ciphertext []byte, keyMaterial string) ([]byte, error) {
	keyBytes := sha256.Sum256([]byte(keyMaterial))

	block, err := aes.NewCipher(keyBytes[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}

// GenerateKeyMaterial generates random key material for the local key
// management provider
func GenerateKeyMaterial() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate key material: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
