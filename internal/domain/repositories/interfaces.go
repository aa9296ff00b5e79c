package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/compliance-service/erasure_service/internal/domain/entities"
	"github.com/compliance-service/erasure_service/pkg/pagination"
)

// Each store concern is its own narrow interface. A single concrete store may
// implement several of them; the composition root wires one instance per
// capability so services never probe at runtime for what a store can do.

// ErasureRequestRepository persists erasure request state
type ErasureRequestRepository interface {
	Save(ctx context.Context, status *entities.ErasureStatus) error
	GetStatus(ctx context.Context, requestID uuid.UUID) (*entities.ErasureStatus, error)

	// UpdateStatusIf performs the conditional transition: the update applies
	// only when the stored status still equals expected. Returns
	// ErrInvalidState when another writer got there first. This is what makes
	// concurrent scheduler instances safe.
	UpdateStatusIf(ctx context.Context, requestID uuid.UUID, expected, next entities.RequestStatus) error

	RecordCompletion(ctx context.Context, requestID uuid.UUID, completedAt time.Time, deletedKeyIDs []string, recordsAffected int, certificateID uuid.UUID) error
	RecordFailure(ctx context.Context, requestID uuid.UUID, errorMessage string) error
	RecordCancellation(ctx context.Context, requestID uuid.UUID, reason, cancelledBy string) error
	MarkRetry(ctx context.Context, requestID uuid.UUID, nextExecution time.Time) error

	List(ctx context.Context, filter entities.ListRequestsFilter, params pagination.Params) ([]*entities.ErasureStatus, int64, error)
	GetScheduledBefore(ctx context.Context, dueBefore time.Time, limit int) ([]*entities.ErasureStatus, error)
}

// CertificateRepository persists erasure certificates
type CertificateRepository interface {
	// Save is a conditional insert: a second certificate for the same request
	// must fail with ErrConflict instead of overwriting the first.
	Save(ctx context.Context, cert *entities.ErasureCertificate) error
	GetByRequestID(ctx context.Context, requestID uuid.UUID) (*entities.ErasureCertificate, error)
	GetByID(ctx context.Context, certificateID uuid.UUID) (*entities.ErasureCertificate, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// InventoryRepository persists field registrations and discovered
// locations. Registrations describe where personal data lives regardless of
// tenant: a registration names a tenant_id_column in the target table, and
// tenant narrowing happens when records in that table are matched during
// erasure, not in this store. The tenantID parameter on the read methods is
// therefore not representable as a filter here and every tenant sees the
// same registrations.
type InventoryRepository interface {
	SaveRegistration(ctx context.Context, reg *entities.DataLocationRegistration) error
	DeleteRegistration(ctx context.Context, tableName, fieldName string) error
	FindRegistrationsForSubject(ctx context.Context, idType entities.IDType, tenantID string) ([]*entities.DataLocationRegistration, error)

	RecordDiscoveredLocation(ctx context.Context, subjectHash string, loc *entities.DataLocation) error
	GetDiscoveredLocations(ctx context.Context, subjectHash string) ([]*entities.DataLocation, error)
	DeleteLocationsForSubject(ctx context.Context, subjectHash string, categories []string) (int, error)

	GetDataMapEntries(ctx context.Context, tenantID string) ([]*entities.DataMapEntry, error)
}

// LegalHoldRepository persists legal holds
type LegalHoldRepository interface {
	Save(ctx context.Context, hold *entities.LegalHold) error
	GetByID(ctx context.Context, holdID uuid.UUID) (*entities.LegalHold, error)
	Update(ctx context.Context, hold *entities.LegalHold) error

	GetActiveForSubject(ctx context.Context, subjectHash, tenantID string) ([]*entities.LegalHold, error)
	GetActiveForTenant(ctx context.Context, tenantID string) ([]*entities.LegalHold, error)
	ListActive(ctx context.Context, tenantID string) ([]*entities.LegalHold, error)
	ListAll(ctx context.Context, tenantID string) ([]*entities.LegalHold, error)
	GetExpired(ctx context.Context, now time.Time) ([]*entities.LegalHold, error)
}

// AuditQueryRepository reads the append-only audit trail
type AuditQueryRepository interface {
	Query(ctx context.Context, filter entities.AuditQueryFilter) ([]*entities.AuditEvent, error)
}
