package erasure

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/compliance-service/erasure_service/internal/domain/entities"
	"github.com/compliance-service/erasure_service/internal/domain/repositories"
	"github.com/compliance-service/erasure_service/internal/domain/services/keymgmt"
	"github.com/compliance-service/erasure_service/pkg/crypto"
	apperrors "github.com/compliance-service/erasure_service/pkg/errors"
	"github.com/compliance-service/erasure_service/pkg/metrics"
	"github.com/compliance-service/erasure_service/pkg/pagination"
	"github.com/compliance-service/erasure_service/pkg/sanitize"
)

// Config carries the coordinator's policy knobs. Grace periods are clamped to
// [MinimumGracePeriod, MaximumGracePeriod] regardless of overrides.
type Config struct {
	DefaultGracePeriod         time.Duration
	MinimumGracePeriod         time.Duration
	MaximumGracePeriod         time.Duration
	CertificateRetentionPeriod time.Duration
	SigningKey                 string
	SubjectHashSalt            string
}

// DefaultConfig returns production policy defaults: a seven day grace period
// bounded by [24h, 30d], certificates retained for seven years.
func DefaultConfig() Config {
	return Config{
		DefaultGracePeriod:         7 * 24 * time.Hour,
		MinimumGracePeriod:         24 * time.Hour,
		MaximumGracePeriod:         30 * 24 * time.Hour,
		CertificateRetentionPeriod: 7 * 365 * 24 * time.Hour,
	}
}

// Coordinator accepts right-to-erasure requests, blocks them on legal holds,
// schedules and executes crypto-shredding, and issues signed certificates.
type Coordinator struct {
	requests      repositories.ErasureRequestRepository
	certificates  repositories.CertificateRepository
	inventoryRepo repositories.InventoryRepository
	holds         HoldChecker
	inventory     InventoryReader
	keys          keymgmt.Provider
	audit         AuditRecorder
	cfg           Config
	logger        *zap.Logger
}

// NewCoordinator creates a new erasure request coordinator. The hold checker,
// inventory reader and audit recorder may be nil; the coordinator substitutes
// allow-all / empty / no-op defaults.
func NewCoordinator(
	requests repositories.ErasureRequestRepository,
	certificates repositories.CertificateRepository,
	inventoryRepo repositories.InventoryRepository,
	holds HoldChecker,
	inventory InventoryReader,
	keys keymgmt.Provider,
	audit AuditRecorder,
	cfg Config,
	logger *zap.Logger,
) *Coordinator {
	if holds == nil {
		holds = AllowAllHoldChecker{}
	}
	if inventory == nil {
		inventory = EmptyInventory{}
	}
	if audit == nil {
		audit = NoopAuditRecorder{}
	}
	return &Coordinator{
		requests:      requests,
		certificates:  certificates,
		inventoryRepo: inventoryRepo,
		holds:         holds,
		inventory:     inventory,
		keys:          keys,
		audit:         audit,
		cfg:           cfg,
		logger:        logger,
	}
}

// Request validates an inbound erasure request, refuses it while a legal hold
// applies, and otherwise persists it as scheduled after the clamped grace
// period. A blocked request is never persisted; resubmitting after the hold is
// released is the only supported retry path.
func (c *Coordinator) Request(ctx context.Context, req *entities.ErasureRequest) (*entities.ErasureRequestResult, error) {
	if err := validateRequest(req); err != nil {
		metrics.ErasureRequestsTotal.WithLabelValues(string(req.Scope), "rejected").Inc()
		return nil, err
	}

	check, err := c.holds.CheckHolds(ctx, req.DataSubjectID, req.IDType, req.TenantID)
	if err != nil {
		return nil, err
	}
	if check.ErasureBlocked {
		blocking := check.FirstBlockingHold()
		metrics.ErasureRequestsTotal.WithLabelValues(string(req.Scope), "blocked_by_legal_hold").Inc()
		metrics.LegalHoldBlocksTotal.Inc()
		c.logger.Warn("Erasure request blocked by legal hold",
			zap.String("request_id", req.RequestID.String()),
			zap.String("hold_id", blocking.HoldID.String()),
			zap.String("case_reference", sanitize.LogString(blocking.CaseReference)))
		return &entities.ErasureRequestResult{
			RequestID:    req.RequestID,
			Status:       entities.ResultBlockedByLegalHold,
			BlockingHold: blocking,
		}, nil
	}

	now := time.Now()
	grace := c.clampGracePeriod(req.GracePeriodOverride)
	scheduledAt := now.Add(grace)

	if req.RequestID == uuid.Nil {
		req.RequestID = uuid.New()
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = now
	}

	status := &entities.ErasureStatus{
		RequestID:              req.RequestID,
		Status:                 entities.StatusScheduled,
		DataSubjectIDHash:      crypto.HashSubjectID(req.DataSubjectID, string(req.IDType), c.cfg.SubjectHashSalt),
		IDType:                 req.IDType,
		TenantID:               req.TenantID,
		Scope:                  req.Scope,
		DataCategories:         req.DataCategories,
		LegalBasis:             req.LegalBasis,
		RequestedAt:            req.RequestedAt,
		RequestedBy:            req.RequestedBy,
		ScheduledExecutionTime: scheduledAt,
		UpdatedAt:              now,
	}
	if err := c.requests.Save(ctx, status); err != nil {
		return nil, apperrors.WrapExternal(err, "failed to persist erasure request")
	}

	result := &entities.ErasureRequestResult{
		RequestID:              req.RequestID,
		Status:                 entities.ResultScheduled,
		ScheduledExecutionTime: scheduledAt,
		GracePeriod:            grace,
	}

	// Informational only: a failed discovery must not unschedule the request.
	if inv, err := c.inventory.Discover(ctx, req.DataSubjectID, req.IDType, req.TenantID); err != nil {
		c.logger.Warn("Inventory summary unavailable for scheduled request",
			zap.String("request_id", req.RequestID.String()),
			zap.Error(err))
	} else {
		result.InventorySummary = summarize(inv)
	}

	metrics.ErasureRequestsTotal.WithLabelValues(string(req.Scope), "scheduled").Inc()
	c.logger.Info("Erasure request scheduled",
		zap.String("request_id", req.RequestID.String()),
		zap.String("scope", string(req.Scope)),
		zap.Time("scheduled_execution_time", scheduledAt),
		zap.Duration("grace_period", grace))

	return result, nil
}

func validateRequest(req *entities.ErasureRequest) error {
	if strings.TrimSpace(req.DataSubjectID) == "" {
		return apperrors.NewValidation("data subject id is required")
	}
	if strings.TrimSpace(req.RequestedBy) == "" {
		return apperrors.NewValidation("requested by is required")
	}
	if req.Scope == entities.ScopeTenant && strings.TrimSpace(req.TenantID) == "" {
		return apperrors.NewValidation("tenant id is required for tenant scope")
	}
	if req.Scope == entities.ScopeSelective && len(req.DataCategories) == 0 {
		return apperrors.NewValidation("data categories are required for selective scope")
	}
	if req.GracePeriodOverride != nil && *req.GracePeriodOverride < 0 {
		return apperrors.NewValidation("grace period override must not be negative")
	}
	return nil
}

func (c *Coordinator) clampGracePeriod(override *time.Duration) time.Duration {
	grace := c.cfg.DefaultGracePeriod
	if override != nil {
		grace = *override
	}
	if grace < c.cfg.MinimumGracePeriod {
		grace = c.cfg.MinimumGracePeriod
	}
	if grace > c.cfg.MaximumGracePeriod {
		grace = c.cfg.MaximumGracePeriod
	}
	return grace
}

func summarize(inv *entities.DataInventory) *entities.InventorySummary {
	fields := make(map[string]bool)
	for _, loc := range inv.Locations {
		fields[loc.TableName+"/"+loc.FieldName] = true
	}
	return &entities.InventorySummary{
		FieldCount: len(fields),
		KeyCount:   len(inv.Keys),
	}
}

// Execute performs the erasure for a scheduled request: the conditional
// scheduled -> in_progress transition, key destruction for every key
// protecting the subject's data, location cleanup, and completion recording.
// Failures are recorded, not retried inline; retries belong to the scheduler.
func (c *Coordinator) Execute(ctx context.Context, requestID uuid.UUID) (*entities.ExecutionResult, error) {
	started := time.Now()

	status, err := c.requests.GetStatus(ctx, requestID)
	if err != nil {
		return nil, apperrors.WrapExternal(err, "failed to load request status")
	}
	if status == nil {
		metrics.ErasureExecutionsTotal.WithLabelValues("invalid_status").Inc()
		return failedResult(requestID, "request not found", started), nil
	}
	if status.Status != entities.StatusScheduled {
		metrics.ErasureExecutionsTotal.WithLabelValues("invalid_status").Inc()
		return failedResult(requestID, fmt.Sprintf("invalid status: %s", status.Status), started), nil
	}

	// Compare-and-swap at the store: only one of several concurrent scheduler
	// instances (or a racing cancellation) wins this transition.
	if err := c.requests.UpdateStatusIf(ctx, requestID, entities.StatusScheduled, entities.StatusInProgress); err != nil {
		if errors.Is(err, apperrors.ErrInvalidState) {
			metrics.ErasureExecutionsTotal.WithLabelValues("invalid_status").Inc()
			return failedResult(requestID, "invalid status: request was claimed by another writer", started), nil
		}
		return nil, apperrors.WrapExternal(err, "failed to transition request to in_progress")
	}

	deletedKeyIDs, recordsAffected, execErr := c.performErasure(ctx, status)
	if execErr != nil {
		if recErr := c.requests.RecordFailure(ctx, requestID, execErr.Error()); recErr != nil {
			c.logger.Error("Failed to record execution failure",
				zap.String("request_id", requestID.String()),
				zap.Error(recErr))
		}
		c.recordAudit(ctx, requestID, entities.AuditActionErasureFailed, entities.AuditOutcomeFailure, status.RequestedBy)
		metrics.ErasureExecutionsTotal.WithLabelValues("failure").Inc()
		c.logger.Error("Erasure execution failed",
			zap.String("request_id", requestID.String()),
			zap.Error(execErr))
		return failedResult(requestID, execErr.Error(), started), nil
	}

	certificateID := uuid.New()
	completedAt := time.Now()
	if err := c.requests.RecordCompletion(ctx, requestID, completedAt, deletedKeyIDs, recordsAffected, certificateID); err != nil {
		return nil, apperrors.WrapExternal(err, "failed to record completion")
	}
	c.recordAudit(ctx, requestID, entities.AuditActionErasureCompleted, entities.AuditOutcomeSuccess, status.RequestedBy)

	metrics.ErasureExecutionsTotal.WithLabelValues("success").Inc()
	metrics.ErasureExecutionDuration.Observe(time.Since(started).Seconds())
	c.logger.Info("Erasure execution completed",
		zap.String("request_id", requestID.String()),
		zap.Int("keys_deleted", len(deletedKeyIDs)),
		zap.Int("records_affected", recordsAffected),
		zap.String("certificate_id", certificateID.String()))

	return &entities.ExecutionResult{
		RequestID:       requestID,
		Success:         true,
		KeysDeleted:     len(deletedKeyIDs),
		RecordsAffected: recordsAffected,
		CertificateID:   &certificateID,
		Duration:        time.Since(started),
	}, nil
}

// performErasure destroys every key protecting the in-scope locations and
// removes the discovered location records. Key destruction is idempotent at
// the provider boundary, so a key another request already destroyed counts as
// deleted here too.
func (c *Coordinator) performErasure(ctx context.Context, status *entities.ErasureStatus) (deletedKeyIDs []string, recordsAffected int, err error) {
	inv, err := c.inventory.DiscoverByHash(ctx, status.DataSubjectIDHash, status.IDType, status.TenantID)
	if err != nil {
		return nil, 0, fmt.Errorf("inventory discovery failed: %w", err)
	}

	locations := inv.Locations
	if status.Scope == entities.ScopeSelective {
		locations = filterByCategory(locations, status.DataCategories)
	}

	seen := make(map[string]bool)
	for _, loc := range locations {
		if loc.KeyID == "" || seen[loc.KeyID] {
			continue
		}
		seen[loc.KeyID] = true
		if err := c.keys.DestroyKey(ctx, loc.KeyID); err != nil {
			metrics.KMSCallsTotal.WithLabelValues("destroy", "error").Inc()
			return deletedKeyIDs, recordsAffected, fmt.Errorf("key destruction failed for %s: %w", loc.KeyID, err)
		}
		metrics.KMSCallsTotal.WithLabelValues("destroy", "ok").Inc()
		metrics.KeysDestroyedTotal.Inc()
		deletedKeyIDs = append(deletedKeyIDs, loc.KeyID)
		c.recordAudit(ctx, status.RequestID, entities.AuditActionKeyDeleted, entities.AuditOutcomeSuccess, status.RequestedBy)
	}

	if c.inventoryRepo != nil {
		var categories []string
		if status.Scope == entities.ScopeSelective {
			categories = status.DataCategories
		}
		removed, err := c.inventoryRepo.DeleteLocationsForSubject(ctx, status.DataSubjectIDHash, categories)
		if err != nil {
			return deletedKeyIDs, recordsAffected, fmt.Errorf("location cleanup failed: %w", err)
		}
		recordsAffected = removed
	} else {
		recordsAffected = len(locations)
	}

	return deletedKeyIDs, recordsAffected, nil
}

func filterByCategory(locations []entities.DataLocation, categories []string) []entities.DataLocation {
	allowed := make(map[string]bool, len(categories))
	for _, cat := range categories {
		allowed[cat] = true
	}
	var filtered []entities.DataLocation
	for _, loc := range locations {
		if allowed[loc.DataCategory] {
			filtered = append(filtered, loc)
		}
	}
	return filtered
}

func failedResult(requestID uuid.UUID, message string, started time.Time) *entities.ExecutionResult {
	return &entities.ExecutionResult{
		RequestID:    requestID,
		Success:      false,
		ErrorMessage: message,
		Duration:     time.Since(started),
	}
}

// Cancel records a cancellation for a still-scheduled request. Returns false
// without error when the request does not exist, and an invalid-state error
// once execution has started or finished.
func (c *Coordinator) Cancel(ctx context.Context, requestID uuid.UUID, reason, cancelledBy string) (bool, error) {
	if strings.TrimSpace(reason) == "" {
		return false, apperrors.NewValidation("cancellation reason is required")
	}
	if strings.TrimSpace(cancelledBy) == "" {
		return false, apperrors.NewValidation("cancelled by is required")
	}

	status, err := c.requests.GetStatus(ctx, requestID)
	if err != nil {
		return false, apperrors.WrapExternal(err, "failed to load request status")
	}
	if status == nil {
		return false, nil
	}
	if !status.Status.IsCancellable() {
		return false, apperrors.NewInvalidState(fmt.Sprintf("cannot cancel request in status %s", status.Status))
	}

	// The store re-checks the status: a scheduler may claim the request
	// between the read above and this write, and the conditional update is
	// what decides the race.
	if err := c.requests.RecordCancellation(ctx, requestID, reason, cancelledBy); err != nil {
		if errors.Is(err, apperrors.ErrInvalidState) {
			return false, apperrors.NewInvalidState("cannot cancel request: execution already started")
		}
		return false, apperrors.WrapExternal(err, "failed to record cancellation")
	}
	c.logger.Info("Erasure request cancelled",
		zap.String("request_id", requestID.String()),
		zap.String("cancelled_by", cancelledBy))
	return true, nil
}

// GenerateCertificate issues the signed certificate for a completed request.
// Regeneration is idempotent: an existing certificate is returned unchanged
// and never re-signed.
func (c *Coordinator) GenerateCertificate(ctx context.Context, requestID uuid.UUID) (*entities.ErasureCertificate, error) {
	status, err := c.requests.GetStatus(ctx, requestID)
	if err != nil {
		return nil, apperrors.WrapExternal(err, "failed to load request status")
	}
	if status == nil {
		return nil, apperrors.NewNotFound("erasure request", requestID.String())
	}
	if status.CompletedAt == nil {
		return nil, apperrors.NewInvalidState("certificate requires a completed erasure")
	}

	existing, err := c.certificates.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, apperrors.WrapExternal(err, "failed to look up certificate")
	}
	if existing != nil {
		return existing, nil
	}

	certificateID := uuid.New()
	if status.CertificateID != nil {
		certificateID = *status.CertificateID
	}

	now := time.Now()
	cert := &entities.ErasureCertificate{
		CertificateID:        certificateID,
		RequestID:            requestID,
		DataSubjectReference: status.DataSubjectIDHash,
		RequestReceivedAt:    status.RequestedAt,
		CompletedAt:          *status.CompletedAt,
		Method:               entities.MethodCryptographicErasure,
		Summary: entities.ErasureSummary{
			KeysDeleted:     status.KeysDeleted,
			RecordsAffected: status.RecordsAffected,
			DeletedKeyIDs:   status.DeletedKeyIDs,
		},
		LegalBasis:  status.LegalBasis,
		IssuedAt:    now,
		RetainUntil: status.CompletedAt.Add(c.cfg.CertificateRetentionPeriod),
	}
	cert.Signature = crypto.SignHMAC(cert.CanonicalPayload(), c.cfg.SigningKey)

	if err := c.certificates.Save(ctx, cert); err != nil {
		// A concurrent generator may have inserted first; theirs wins.
		if errors.Is(err, apperrors.ErrConflict) {
			stored, getErr := c.certificates.GetByRequestID(ctx, requestID)
			if getErr == nil && stored != nil {
				return stored, nil
			}
		}
		return nil, apperrors.WrapExternal(err, "failed to persist certificate")
	}

	metrics.CertificatesIssuedTotal.Inc()
	c.logger.Info("Erasure certificate issued",
		zap.String("certificate_id", cert.CertificateID.String()),
		zap.String("request_id", requestID.String()),
		zap.Time("retain_until", cert.RetainUntil))
	return cert, nil
}

// GetStatus returns the stored projection for a request
func (c *Coordinator) GetStatus(ctx context.Context, requestID uuid.UUID) (*entities.ErasureStatus, error) {
	status, err := c.requests.GetStatus(ctx, requestID)
	if err != nil {
		return nil, apperrors.WrapExternal(err, "failed to load request status")
	}
	if status == nil {
		return nil, apperrors.NewNotFound("erasure request", requestID.String())
	}
	return status, nil
}

// ListRequests returns a filtered page of request projections
func (c *Coordinator) ListRequests(ctx context.Context, filter entities.ListRequestsFilter, params pagination.Params) (pagination.Page[*entities.ErasureStatus], error) {
	items, total, err := c.requests.List(ctx, filter, params)
	if err != nil {
		return pagination.Page[*entities.ErasureStatus]{}, apperrors.WrapExternal(err, "failed to list requests")
	}
	return pagination.NewPage(items, params, total), nil
}

func (c *Coordinator) recordAudit(ctx context.Context, requestID uuid.UUID, action, outcome, actor string) {
	event := &entities.AuditEvent{
		EventID:      uuid.NewString(),
		ResourceID:   requestID.String(),
		ResourceType: "erasure_request",
		Action:       action,
		Outcome:      outcome,
		ActorID:      actor,
		Timestamp:    time.Now(),
	}
	if err := c.audit.Record(ctx, event); err != nil {
		c.logger.Warn("Failed to record audit event",
			zap.String("request_id", requestID.String()),
			zap.String("action", action),
			zap.Error(err))
	}
}
