package entities

import (
	"time"

	"github.com/google/uuid"
)

// HoldBasis is the legal ground a hold rests on
type HoldBasis string

const (
	BasisLitigationHold          HoldBasis = "litigation_hold"
	BasisRegulatoryInvestigation HoldBasis = "regulatory_investigation"
	BasisLegalClaims             HoldBasis = "legal_claims"
	BasisLegalObligation         HoldBasis = "legal_obligation"
)

// LegalHold blocks erasure for a data subject or an entire tenant while
// active. DataSubjectIDHash nil means the hold is tenant-wide; TenantID empty
// means the hold follows the subject across tenants. Expiry is advisory: a
// background sweep deactivates expired holds, but only an explicit release
// records who lifted the hold and why.
type LegalHold struct {
	HoldID            uuid.UUID  `json:"hold_id" db:"hold_id"`
	DataSubjectIDHash *string    `json:"data_subject_id_hash,omitempty" db:"data_subject_id_hash"`
	TenantID          string     `json:"tenant_id,omitempty" db:"tenant_id"`
	Basis             HoldBasis  `json:"basis" db:"basis"`
	CaseReference     string     `json:"case_reference" db:"case_reference"`
	Description       string     `json:"description" db:"description"`
	IsActive          bool       `json:"is_active" db:"is_active"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	CreatedBy         string     `json:"created_by" db:"created_by"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	ReleasedBy        string     `json:"released_by,omitempty" db:"released_by"`
	ReleasedAt        *time.Time `json:"released_at,omitempty" db:"released_at"`
	ReleaseReason     string     `json:"release_reason,omitempty" db:"release_reason"`
}

// IsTenantWide reports whether the hold covers every subject in its tenant
func (h *LegalHold) IsTenantWide() bool {
	return h.DataSubjectIDHash == nil
}

// CreateHoldRequest carries the inputs for placing a new legal hold. The
// subject identifier arrives in cleartext and is hashed before persistence.
type CreateHoldRequest struct {
	DataSubjectID string     `json:"data_subject_id,omitempty"`
	IDType        IDType     `json:"id_type,omitempty"`
	TenantID      string     `json:"tenant_id,omitempty"`
	Basis         HoldBasis  `json:"basis"`
	CaseReference string     `json:"case_reference"`
	Description   string     `json:"description"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	CreatedBy     string     `json:"created_by"`
}

// HoldCheckResult reports whether erasure is blocked and by which holds,
// ordered by creation time
type HoldCheckResult struct {
	HasActiveHolds bool        `json:"has_active_holds"`
	ErasureBlocked bool        `json:"erasure_blocked"`
	Holds          []LegalHold `json:"holds"`
}

// FirstBlockingHold returns the oldest active hold, or nil when unblocked
func (r *HoldCheckResult) FirstBlockingHold() *LegalHold {
	if len(r.Holds) == 0 {
		return nil
	}
	return &r.Holds[0]
}
