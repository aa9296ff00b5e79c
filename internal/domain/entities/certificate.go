package entities

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErasureMethod names how data was rendered unrecoverable
type ErasureMethod string

// MethodCryptographicErasure is the only method this engine performs: the
// ciphertext stays where it is, the key is destroyed.
const MethodCryptographicErasure ErasureMethod = "cryptographic_erasure"

// ErasureSummary aggregates what an execution touched
type ErasureSummary struct {
	KeysDeleted     int      `json:"keys_deleted"`
	RecordsAffected int      `json:"records_affected"`
	DeletedKeyIDs   []string `json:"deleted_key_ids,omitempty"`
}

// VerificationSummary condenses a verification run for inclusion in a
// certificate
type VerificationSummary struct {
	Verified   bool      `json:"verified"`
	Methods    []string  `json:"methods,omitempty"`
	VerifiedAt time.Time `json:"verified_at"`
}

// ErasureCertificate is the signed, auditable proof of erasure. It is
// immutable once created; regenerating for the same request returns the stored
// instance unchanged.
type ErasureCertificate struct {
	CertificateID        uuid.UUID            `json:"certificate_id" db:"certificate_id"`
	RequestID            uuid.UUID            `json:"request_id" db:"request_id"`
	DataSubjectReference string               `json:"data_subject_reference" db:"data_subject_reference"`
	RequestReceivedAt    time.Time            `json:"request_received_at" db:"request_received_at"`
	CompletedAt          time.Time            `json:"completed_at" db:"completed_at"`
	Method               ErasureMethod        `json:"method" db:"method"`
	Summary              ErasureSummary       `json:"summary"`
	Verification         *VerificationSummary `json:"verification,omitempty"`
	LegalBasis           LegalBasis           `json:"legal_basis" db:"legal_basis"`
	Signature            string               `json:"signature" db:"signature"`
	IssuedAt             time.Time            `json:"issued_at" db:"issued_at"`
	RetainUntil          time.Time            `json:"retain_until" db:"retain_until"`
}

// CanonicalPayload is the byte sequence the certificate signature covers. The
// field order and separators are fixed: changing them breaks every previously
// issued signature.
func (c *ErasureCertificate) CanonicalPayload() []byte {
	parts := []string{
		c.CertificateID.String(),
		c.RequestID.String(),
		c.DataSubjectReference,
		c.RequestReceivedAt.UTC().Format(time.RFC3339Nano),
		c.CompletedAt.UTC().Format(time.RFC3339Nano),
		string(c.Method),
		fmt.Sprintf("%d", c.Summary.KeysDeleted),
		fmt.Sprintf("%d", c.Summary.RecordsAffected),
		strings.Join(c.Summary.DeletedKeyIDs, ","),
		string(c.LegalBasis),
		c.RetainUntil.UTC().Format(time.RFC3339Nano),
	}
	return []byte(strings.Join(parts, "|"))
}
