package legalhold

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/compliance-service/erasure_service/internal/domain/entities"
	"github.com/compliance-service/erasure_service/internal/domain/repositories"
	"github.com/compliance-service/erasure_service/pkg/crypto"
	apperrors "github.com/compliance-service/erasure_service/pkg/errors"
	"github.com/compliance-service/erasure_service/pkg/metrics"
	"github.com/compliance-service/erasure_service/pkg/sanitize"
)

var validBases = map[entities.HoldBasis]bool{
	entities.BasisLitigationHold:          true,
	entities.BasisRegulatoryInvestigation: true,
	entities.BasisLegalClaims:             true,
	entities.BasisLegalObligation:         true,
}

// Registry manages legal holds that block erasure for a data subject or an
// entire tenant. Subject identifiers are hashed before anything is persisted.
type Registry struct {
	repo     repositories.LegalHoldRepository
	hashSalt string
	logger   *zap.Logger
}

// NewRegistry creates a new legal hold registry
func NewRegistry(repo repositories.LegalHoldRepository, hashSalt string, logger *zap.Logger) *Registry {
	return &Registry{
		repo:     repo,
		hashSalt: hashSalt,
		logger:   logger,
	}
}

// CreateHold validates and places a new hold. Either a data subject or a
// tenant must be named; a hold scoped to neither would block nothing.
func (r *Registry) CreateHold(ctx context.Context, req *entities.CreateHoldRequest) (*entities.LegalHold, error) {
	if strings.TrimSpace(req.DataSubjectID) == "" && strings.TrimSpace(req.TenantID) == "" {
		return nil, apperrors.NewValidation("either data subject or tenant must be specified")
	}
	if strings.TrimSpace(req.CaseReference) == "" {
		return nil, apperrors.NewValidation("case reference is required")
	}
	if strings.TrimSpace(req.Description) == "" {
		return nil, apperrors.NewValidation("description is required")
	}
	if strings.TrimSpace(req.CreatedBy) == "" {
		return nil, apperrors.NewValidation("created by is required")
	}
	if !validBases[req.Basis] {
		return nil, apperrors.NewValidation("invalid hold basis: " + string(req.Basis))
	}
	now := time.Now()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, apperrors.NewValidation("expiry must be in the future")
	}

	hold := &entities.LegalHold{
		HoldID:        uuid.New(),
		TenantID:      req.TenantID,
		Basis:         req.Basis,
		CaseReference: req.CaseReference,
		Description:   req.Description,
		IsActive:      true,
		ExpiresAt:     req.ExpiresAt,
		CreatedBy:     req.CreatedBy,
		CreatedAt:     now,
	}
	if req.DataSubjectID != "" {
		hash := crypto.HashSubjectID(req.DataSubjectID, string(req.IDType), r.hashSalt)
		hold.DataSubjectIDHash = &hash
	}

	if err := r.repo.Save(ctx, hold); err != nil {
		return nil, apperrors.WrapExternal(err, "failed to save legal hold")
	}

	metrics.LegalHoldsActiveGauge.Inc()
	r.logger.Info("Legal hold created",
		zap.String("hold_id", hold.HoldID.String()),
		zap.String("basis", string(hold.Basis)),
		zap.String("case_reference", sanitize.LogString(hold.CaseReference)),
		zap.Bool("tenant_wide", hold.IsTenantWide()))

	return hold, nil
}

// ReleaseHold lifts a hold. Releasing a hold that was already released is an
// invalid-state error, not a no-op: the release record names who lifted it.
func (r *Registry) ReleaseHold(ctx context.Context, holdID uuid.UUID, reason, releasedBy string) (*entities.LegalHold, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.NewValidation("release reason is required")
	}
	if strings.TrimSpace(releasedBy) == "" {
		return nil, apperrors.NewValidation("released by is required")
	}

	hold, err := r.repo.GetByID(ctx, holdID)
	if err != nil {
		return nil, err
	}
	if hold == nil {
		return nil, apperrors.NewNotFound("legal hold", holdID.String())
	}
	if !hold.IsActive {
		return nil, apperrors.NewInvalidState("legal hold is already released")
	}

	now := time.Now()
	hold.IsActive = false
	hold.ReleasedAt = &now
	hold.ReleasedBy = releasedBy
	hold.ReleaseReason = reason

	if err := r.repo.Update(ctx, hold); err != nil {
		return nil, apperrors.WrapExternal(err, "failed to release legal hold")
	}

	metrics.LegalHoldsActiveGauge.Dec()
	r.logger.Info("Legal hold released",
		zap.String("hold_id", hold.HoldID.String()),
		zap.String("released_by", releasedBy))

	return hold, nil
}

// CheckHolds merges active holds scoped to the subject with active tenant-wide
// holds for the same tenant, deduplicated by hold ID and ordered by creation
// time so callers can report the first blocking hold.
func (r *Registry) CheckHolds(ctx context.Context, subjectID string, idType entities.IDType, tenantID string) (*entities.HoldCheckResult, error) {
	subjectHash := crypto.HashSubjectID(subjectID, string(idType), r.hashSalt)

	subjectHolds, err := r.repo.GetActiveForSubject(ctx, subjectHash, tenantID)
	if err != nil {
		return nil, apperrors.WrapExternal(err, "failed to query subject holds")
	}

	var tenantHolds []*entities.LegalHold
	if tenantID != "" {
		tenantHolds, err = r.repo.GetActiveForTenant(ctx, tenantID)
		if err != nil {
			return nil, apperrors.WrapExternal(err, "failed to query tenant holds")
		}
	}

	seen := make(map[uuid.UUID]bool)
	var merged []entities.LegalHold
	for _, h := range append(subjectHolds, tenantHolds...) {
		if h == nil || seen[h.HoldID] {
			continue
		}
		seen[h.HoldID] = true
		merged = append(merged, *h)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})

	blocked := len(merged) > 0
	return &entities.HoldCheckResult{
		HasActiveHolds: blocked,
		ErasureBlocked: blocked,
		Holds:          merged,
	}, nil
}

// ListActiveHolds returns active holds, optionally filtered by tenant
func (r *Registry) ListActiveHolds(ctx context.Context, tenantID string) ([]*entities.LegalHold, error) {
	holds, err := r.repo.ListActive(ctx, tenantID)
	if err != nil {
		return nil, apperrors.WrapExternal(err, "failed to list active holds")
	}
	return holds, nil
}

// GetHold returns a single hold by ID
func (r *Registry) GetHold(ctx context.Context, holdID uuid.UUID) (*entities.LegalHold, error) {
	hold, err := r.repo.GetByID(ctx, holdID)
	if err != nil {
		return nil, err
	}
	if hold == nil {
		return nil, apperrors.NewNotFound("legal hold", holdID.String())
	}
	return hold, nil
}

// DeactivateExpired is the advisory expiry sweep. Explicit release remains the
// authoritative path; this only flips holds whose expiry has passed so they
// stop blocking erasure. Per-hold failures are logged and skipped.
func (r *Registry) DeactivateExpired(ctx context.Context) (int, error) {
	expired, err := r.repo.GetExpired(ctx, time.Now())
	if err != nil {
		return 0, apperrors.WrapExternal(err, "failed to query expired holds")
	}

	deactivated := 0
	for _, hold := range expired {
		hold.IsActive = false
		if err := r.repo.Update(ctx, hold); err != nil {
			r.logger.Error("Failed to deactivate expired hold",
				zap.String("hold_id", hold.HoldID.String()),
				zap.Error(err))
			continue
		}
		deactivated++
		metrics.LegalHoldsActiveGauge.Dec()
		r.logger.Info("Expired legal hold deactivated",
			zap.String("hold_id", hold.HoldID.String()),
			zap.Timep("expires_at", hold.ExpiresAt))
	}
	return deactivated, nil
}
