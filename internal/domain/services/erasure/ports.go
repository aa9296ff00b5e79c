package erasure

import (
	"context"

	"github.com/compliance-service/erasure_service/internal/domain/entities"
)

// HoldChecker is the slice of the legal hold registry the coordinator needs.
// When no registry is configured the coordinator uses AllowAllHoldChecker so
// call sites stay unguarded.
type HoldChecker interface {
	CheckHolds(ctx context.Context, subjectID string, idType entities.IDType, tenantID string) (*entities.HoldCheckResult, error)
}

// InventoryReader is the slice of the data inventory index the coordinator
// needs. EmptyInventory stands in when no index is configured.
type InventoryReader interface {
	Discover(ctx context.Context, subjectID string, idType entities.IDType, tenantID string) (*entities.DataInventory, error)
	DiscoverByHash(ctx context.Context, subjectHash string, idType entities.IDType, tenantID string) (*entities.DataInventory, error)
}

// AuditRecorder appends erasure lifecycle events to the audit trail. The
// verification engine later correlates against these. NoopAuditRecorder
// stands in when no audit pipeline is wired.
type AuditRecorder interface {
	Record(ctx context.Context, event *entities.AuditEvent) error
}

// AllowAllHoldChecker reports no holds for any subject
type AllowAllHoldChecker struct{}

func (AllowAllHoldChecker) CheckHolds(ctx context.Context, subjectID string, idType entities.IDType, tenantID string) (*entities.HoldCheckResult, error) {
	return &entities.HoldCheckResult{}, nil
}

// EmptyInventory reports no data for any subject
type EmptyInventory struct{}

func (EmptyInventory) Discover(ctx context.Context, subjectID string, idType entities.IDType, tenantID string) (*entities.DataInventory, error) {
	return &entities.DataInventory{}, nil
}

func (EmptyInventory) DiscoverByHash(ctx context.Context, subjectHash string, idType entities.IDType, tenantID string) (*entities.DataInventory, error) {
	return &entities.DataInventory{DataSubjectIDHash: subjectHash}, nil
}

// NoopAuditRecorder drops events
type NoopAuditRecorder struct{}

func (NoopAuditRecorder) Record(ctx context.Context, event *entities.AuditEvent) error {
	return nil
}
