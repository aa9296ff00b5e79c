package entities

import (
	"time"

	"github.com/google/uuid"
)

// VerificationMethod is a bit-set of independent erasure checks
type VerificationMethod uint8

const (
	// VerifyKeyManagementSystem confirms every key the certificate names is
	// gone from the key management provider. Hard-blocking.
	VerifyKeyManagementSystem VerificationMethod = 1 << iota
	// VerifyAuditLog correlates audit-trail events with the erasure. Advisory.
	VerifyAuditLog
	// VerifyDecryptionFailure proves a destroyed key can no longer decrypt a
	// sample. Advisory.
	VerifyDecryptionFailure
)

// Has reports whether the set contains the given method
func (m VerificationMethod) Has(method VerificationMethod) bool {
	return m&method != 0
}

// Add returns the set with the given method included
func (m VerificationMethod) Add(method VerificationMethod) VerificationMethod {
	return m | method
}

// Names returns the human-readable names of all methods in the set
func (m VerificationMethod) Names() []string {
	var names []string
	if m.Has(VerifyKeyManagementSystem) {
		names = append(names, "key_management_system")
	}
	if m.Has(VerifyAuditLog) {
		names = append(names, "audit_log")
	}
	if m.Has(VerifyDecryptionFailure) {
		names = append(names, "decryption_failure")
	}
	return names
}

// FailureSeverity distinguishes hard failures from advisory warnings
type FailureSeverity string

const (
	SeverityCritical FailureSeverity = "critical"
	SeverityWarning  FailureSeverity = "warning"
)

// VerificationFailure records one check that did not pass
type VerificationFailure struct {
	Subject      string             `json:"subject"`
	Reason       string             `json:"reason"`
	FailedMethod VerificationMethod `json:"failed_method"`
	Severity     FailureSeverity    `json:"severity"`
}

// VerificationResult is the structured outcome of a verification run.
// Verified is false only when a critical check failed; advisory failures are
// carried as warnings without flipping it.
type VerificationResult struct {
	RequestID     uuid.UUID             `json:"request_id"`
	Verified      bool                  `json:"verified"`
	Methods       VerificationMethod    `json:"methods"`
	DeletedKeyIDs []string              `json:"deleted_key_ids,omitempty"`
	Failures      []VerificationFailure `json:"failures,omitempty"`
	Duration      time.Duration         `json:"duration"`
	ResultHash    string                `json:"result_hash"`
	VerifiedAt    time.Time             `json:"verified_at"`
}

// HasCriticalFailure reports whether any failure is severity critical
func (r *VerificationResult) HasCriticalFailure() bool {
	for _, f := range r.Failures {
		if f.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// VerificationStep is one named, timed check inside a verification report
type VerificationStep struct {
	Name     string        `json:"name"`
	Passed   bool          `json:"passed"`
	Details  string        `json:"details"`
	Duration time.Duration `json:"duration"`
}

// VerificationReport is the operator-facing breakdown of a verification run
type VerificationReport struct {
	RequestID   uuid.UUID          `json:"request_id"`
	Verified    bool               `json:"verified"`
	Steps       []VerificationStep `json:"steps"`
	ReportHash  string             `json:"report_hash"`
	GeneratedAt time.Time          `json:"generated_at"`
}
