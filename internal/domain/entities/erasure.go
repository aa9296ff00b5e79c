package entities

import (
	"time"

	"github.com/google/uuid"
)

// IDType identifies which kind of identifier names a data subject
type IDType string

const (
	IDTypeUserID     IDType = "user_id"
	IDTypeEmail      IDType = "email"
	IDTypeExternalID IDType = "external_id"
	IDTypeDeviceID   IDType = "device_id"
)

// ErasureScope selects how much of a subject's data an erasure request covers
type ErasureScope string

const (
	// ScopeUser erases everything held about a single data subject
	ScopeUser ErasureScope = "user"
	// ScopeTenant erases all subject data within one tenant
	ScopeTenant ErasureScope = "tenant"
	// ScopeSelective erases only the named data categories
	ScopeSelective ErasureScope = "selective"
)

// LegalBasis records the legal ground an erasure request was made under
type LegalBasis string

const (
	BasisDataSubjectRequest LegalBasis = "data_subject_request"
	BasisConsentWithdrawn   LegalBasis = "consent_withdrawn"
	BasisRetentionExpired   LegalBasis = "retention_expired"
	BasisContractEnded      LegalBasis = "contract_ended"
)

// RequestStatus is the persisted lifecycle state of an erasure request.
// The only legal transitions are scheduled -> in_progress -> {completed, failed}
// and scheduled -> cancelled.
type RequestStatus string

const (
	StatusScheduled  RequestStatus = "scheduled"
	StatusInProgress RequestStatus = "in_progress"
	StatusCompleted  RequestStatus = "completed"
	StatusFailed     RequestStatus = "failed"
	StatusCancelled  RequestStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are possible
func (s RequestStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsCancellable reports whether a cancellation may still be recorded
func (s RequestStatus) IsCancellable() bool {
	return s == StatusScheduled
}

// ResultStatus is the outcome reported to the caller of Request. Unlike
// RequestStatus it includes blocked_by_legal_hold, which is never persisted: a
// blocked request is rejected before any row is written.
type ResultStatus string

const (
	ResultScheduled          ResultStatus = "scheduled"
	ResultBlockedByLegalHold ResultStatus = "blocked_by_legal_hold"
)

// ErasureRequest is the inbound right-to-erasure request. It is immutable once
// accepted; DataSubjectID is cleartext here and is hashed before anything is
// persisted.
type ErasureRequest struct {
	RequestID           uuid.UUID      `json:"request_id"`
	DataSubjectID       string         `json:"data_subject_id"`
	IDType              IDType         `json:"id_type"`
	Scope               ErasureScope   `json:"scope"`
	DataCategories      []string       `json:"data_categories,omitempty"`
	LegalBasis          LegalBasis     `json:"legal_basis"`
	TenantID            string         `json:"tenant_id,omitempty"`
	RequestedBy         string         `json:"requested_by"`
	RequestedAt         time.Time      `json:"requested_at"`
	GracePeriodOverride *time.Duration `json:"grace_period_override,omitempty"`
}

// ErasureStatus is the server-side projection of a request, keyed by request
// ID. Only the coordinator and the scheduler mutate it.
type ErasureStatus struct {
	RequestID              uuid.UUID     `json:"request_id" db:"request_id"`
	Status                 RequestStatus `json:"status" db:"status"`
	DataSubjectIDHash      string        `json:"data_subject_id_hash" db:"data_subject_id_hash"`
	IDType                 IDType        `json:"id_type" db:"id_type"`
	TenantID               string        `json:"tenant_id" db:"tenant_id"`
	Scope                  ErasureScope  `json:"scope" db:"scope"`
	DataCategories         []string      `json:"data_categories,omitempty" db:"data_categories"`
	LegalBasis             LegalBasis    `json:"legal_basis" db:"legal_basis"`
	RequestedAt            time.Time     `json:"requested_at" db:"requested_at"`
	RequestedBy            string        `json:"requested_by" db:"requested_by"`
	ScheduledExecutionTime time.Time     `json:"scheduled_execution_time" db:"scheduled_execution_time"`
	ExecutedAt             *time.Time    `json:"executed_at,omitempty" db:"executed_at"`
	CompletedAt            *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
	KeysDeleted            int           `json:"keys_deleted" db:"keys_deleted"`
	DeletedKeyIDs          []string      `json:"deleted_key_ids,omitempty" db:"deleted_key_ids"`
	RecordsAffected        int           `json:"records_affected" db:"records_affected"`
	CertificateID          *uuid.UUID    `json:"certificate_id,omitempty" db:"certificate_id"`
	ErrorMessage           string        `json:"error_message,omitempty" db:"error_message"`
	CancellationReason     string        `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CancelledBy            string        `json:"cancelled_by,omitempty" db:"cancelled_by"`
	BlockingHoldID         *uuid.UUID    `json:"blocking_hold_id,omitempty" db:"blocking_hold_id"`
	RetryAttempts          int           `json:"retry_attempts" db:"retry_attempts"`
	UpdatedAt              time.Time     `json:"updated_at" db:"updated_at"`
}

// ErasureRequestResult is returned by the coordinator's Request operation
type ErasureRequestResult struct {
	RequestID              uuid.UUID         `json:"request_id"`
	Status                 ResultStatus      `json:"status"`
	ScheduledExecutionTime time.Time         `json:"scheduled_execution_time,omitempty"`
	GracePeriod            time.Duration     `json:"grace_period,omitempty"`
	BlockingHold           *LegalHold        `json:"blocking_hold,omitempty"`
	InventorySummary       *InventorySummary `json:"inventory_summary,omitempty"`
}

// ExecutionResult is returned by the coordinator's Execute operation
type ExecutionResult struct {
	RequestID       uuid.UUID     `json:"request_id"`
	Success         bool          `json:"success"`
	KeysDeleted     int           `json:"keys_deleted"`
	RecordsAffected int           `json:"records_affected"`
	CertificateID   *uuid.UUID    `json:"certificate_id,omitempty"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// ListRequestsFilter narrows ListRequests results
type ListRequestsFilter struct {
	Status   *RequestStatus `json:"status,omitempty"`
	TenantID string         `json:"tenant_id,omitempty"`
	From     *time.Time     `json:"from,omitempty"`
	To       *time.Time     `json:"to,omitempty"`
}
