package verification

import (
	"context"
	"errors"
	"fmt"
	"sort"
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
)

// Config selects which verification methods run. The key management check is
// the only hard-blocking one; the others are advisory regardless of
// configuration.
type Config struct {
	EnabledMethods entities.VerificationMethod
}

// DefaultConfig enables all three verification methods
func DefaultConfig() Config {
	return Config{
		EnabledMethods: entities.VerifyKeyManagementSystem |
			entities.VerifyAuditLog |
			entities.VerifyDecryptionFailure,
	}
}

// Engine proves that an erasure actually happened. It never mutates state:
// verification and reporting are read-only and safe to invoke concurrently.
type Engine struct {
	requests     repositories.ErasureRequestRepository
	certificates repositories.CertificateRepository
	audit        repositories.AuditQueryRepository
	keys         keymgmt.Provider
	cfg          Config
	logger       *zap.Logger
}

// NewEngine creates a new erasure verification engine
func NewEngine(
	requests repositories.ErasureRequestRepository,
	certificates repositories.CertificateRepository,
	audit repositories.AuditQueryRepository,
	keys keymgmt.Provider,
	cfg Config,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		requests:     requests,
		certificates: certificates,
		audit:        audit,
		keys:         keys,
		cfg:          cfg,
		logger:       logger,
	}
}

// Verify runs every enabled check independently and aggregates the outcome.
// Whatever goes wrong, the caller gets a structured result: unexpected
// failures collapse into a single critical failure entry instead of
// propagating.
func (e *Engine) Verify(ctx context.Context, requestID uuid.UUID) (result *entities.VerificationResult) {
	started := time.Now()
	result = &entities.VerificationResult{
		RequestID:  requestID,
		Verified:   false,
		VerifiedAt: started,
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Panic during verification",
				zap.String("request_id", requestID.String()),
				zap.Any("panic", r))
			result.Verified = false
			result.Failures = append(result.Failures, entities.VerificationFailure{
				Subject:  requestID.String(),
				Reason:   fmt.Sprintf("verification aborted: %v", r),
				Severity: entities.SeverityCritical,
			})
			result.Duration = time.Since(started)
			result.ResultHash = e.hashResult(result)
			metrics.VerificationsTotal.WithLabelValues("false").Inc()
		}
	}()

	status, cert, failure := e.loadCompletedRequest(ctx, requestID)
	if failure != nil {
		result.Failures = append(result.Failures, *failure)
		result.Duration = time.Since(started)
		result.ResultHash = e.hashResult(result)
		metrics.VerificationsTotal.WithLabelValues("false").Inc()
		return result
	}

	keyIDs := deletedKeyIDs(status, cert)
	result.DeletedKeyIDs = keyIDs

	verified := true

	if e.cfg.EnabledMethods.Has(entities.VerifyKeyManagementSystem) {
		passed, failures := e.checkKeyManagement(ctx, keyIDs)
		result.Failures = append(result.Failures, failures...)
		if passed {
			result.Methods = result.Methods.Add(entities.VerifyKeyManagementSystem)
		} else {
			// The KMS check is the only one allowed to flip the verdict.
			verified = false
		}
	}

	if e.cfg.EnabledMethods.Has(entities.VerifyAuditLog) {
		passed, warnings := e.checkAuditTrail(ctx, requestID, len(keyIDs))
		result.Failures = append(result.Failures, warnings...)
		if passed {
			result.Methods = result.Methods.Add(entities.VerifyAuditLog)
		}
	}

	if e.cfg.EnabledMethods.Has(entities.VerifyDecryptionFailure) {
		passed, warnings := e.checkDecryptionFailure(ctx, keyIDs)
		result.Failures = append(result.Failures, warnings...)
		if passed {
			result.Methods = result.Methods.Add(entities.VerifyDecryptionFailure)
		}
	}

	result.Verified = verified
	result.Duration = time.Since(started)
	result.ResultHash = e.hashResult(result)

	metrics.VerificationsTotal.WithLabelValues(fmt.Sprintf("%t", result.Verified)).Inc()
	metrics.VerificationDuration.Observe(result.Duration.Seconds())
	e.logger.Info("Verification completed",
		zap.String("request_id", requestID.String()),
		zap.Bool("verified", result.Verified),
		zap.Strings("methods", result.Methods.Names()),
		zap.Int("failures", len(result.Failures)))
	return result
}

// loadCompletedRequest fetches the status and certificate, converting any
// retrieval problem into a critical failure entry
func (e *Engine) loadCompletedRequest(ctx context.Context, requestID uuid.UUID) (*entities.ErasureStatus, *entities.ErasureCertificate, *entities.VerificationFailure) {
	status, err := e.requests.GetStatus(ctx, requestID)
	if err != nil {
		return nil, nil, &entities.VerificationFailure{
			Subject:  requestID.String(),
			Reason:   "failed to load request status: " + err.Error(),
			Severity: entities.SeverityCritical,
		}
	}
	if status == nil {
		return nil, nil, &entities.VerificationFailure{
			Subject:  requestID.String(),
			Reason:   "erasure request not found",
			Severity: entities.SeverityCritical,
		}
	}
	if status.CompletedAt == nil {
		return nil, nil, &entities.VerificationFailure{
			Subject:  requestID.String(),
			Reason:   fmt.Sprintf("erasure not completed (status %s)", status.Status),
			Severity: entities.SeverityCritical,
		}
	}

	cert, err := e.certificates.GetByRequestID(ctx, requestID)
	if err != nil {
		e.logger.Warn("Certificate lookup failed during verification",
			zap.String("request_id", requestID.String()),
			zap.Error(err))
	}
	return status, cert, nil
}

// deletedKeyIDs prefers the certificate's key list, falling back to the
// status projection when no certificate was issued yet
func deletedKeyIDs(status *entities.ErasureStatus, cert *entities.ErasureCertificate) []string {
	if cert != nil && len(cert.Summary.DeletedKeyIDs) > 0 {
		return cert.Summary.DeletedKeyIDs
	}
	return status.DeletedKeyIDs
}

// checkKeyManagement confirms every key is gone from the provider. A key
// still active is a critical failure naming that key; per-key provider errors
// are isolated so one bad key does not abort the rest of the check.
func (e *Engine) checkKeyManagement(ctx context.Context, keyIDs []string) (bool, []entities.VerificationFailure) {
	var failures []entities.VerificationFailure
	for _, keyID := range keyIDs {
		if e.VerifyKeyDeletion(ctx, keyID) {
			continue
		}
		failures = append(failures, entities.VerificationFailure{
			Subject:      keyID,
			Reason:       "key is not destroyed",
			FailedMethod: entities.VerifyKeyManagementSystem,
			Severity:     entities.SeverityCritical,
		})
	}
	return len(failures) == 0, failures
}

// checkAuditTrail correlates audit events with the erasure. Missing events,
// failure events and rollback events keep the method out of the succeeded
// set, but only as warnings: the audit trail is advisory.
func (e *Engine) checkAuditTrail(ctx context.Context, requestID uuid.UUID, keysDeleted int) (bool, []entities.VerificationFailure) {
	events, err := e.audit.Query(ctx, entities.AuditQueryFilter{
		ResourceID:   requestID.String(),
		ResourceType: "erasure_request",
	})
	if err != nil {
		return false, []entities.VerificationFailure{{
			Subject:      requestID.String(),
			Reason:       "audit trail query failed: " + err.Error(),
			FailedMethod: entities.VerifyAuditLog,
			Severity:     entities.SeverityWarning,
		}}
	}

	var warnings []entities.VerificationFailure
	completedEvents := 0
	keyDeletionEvents := 0
	for _, event := range events {
		switch event.Action {
		case entities.AuditActionErasureCompleted:
			completedEvents++
		case entities.AuditActionKeyDeleted:
			keyDeletionEvents++
		case entities.AuditActionErasureFailed:
			warnings = append(warnings, entities.VerificationFailure{
				Subject:      requestID.String(),
				Reason:       "audit trail contains a failure event",
				FailedMethod: entities.VerifyAuditLog,
				Severity:     entities.SeverityWarning,
			})
		case entities.AuditActionErasureRolledBack:
			warnings = append(warnings, entities.VerificationFailure{
				Subject:      requestID.String(),
				Reason:       "audit trail contains a rollback event",
				FailedMethod: entities.VerifyAuditLog,
				Severity:     entities.SeverityWarning,
			})
		}
	}

	if completedEvents == 0 {
		warnings = append(warnings, entities.VerificationFailure{
			Subject:      requestID.String(),
			Reason:       "no completion event in audit trail",
			FailedMethod: entities.VerifyAuditLog,
			Severity:     entities.SeverityWarning,
		})
	}
	if keyDeletionEvents > 0 && keyDeletionEvents < keysDeleted {
		warnings = append(warnings, entities.VerificationFailure{
			Subject:      requestID.String(),
			Reason:       fmt.Sprintf("audit trail records %d key deletions, expected at least %d", keyDeletionEvents, keysDeleted),
			FailedMethod: entities.VerifyAuditLog,
			Severity:     entities.SeverityWarning,
		})
	}

	return len(warnings) == 0, warnings
}

// checkDecryptionFailure proves erasure the direct way: a destroyed key must
// no longer decrypt anything. A decryption that still works is a warning; the
// KMS check remains the authority.
func (e *Engine) checkDecryptionFailure(ctx context.Context, keyIDs []string) (bool, []entities.VerificationFailure) {
	if len(keyIDs) == 0 {
		return true, nil
	}

	sample := []byte("erasure-verification-probe")
	var warnings []entities.VerificationFailure
	for _, keyID := range keyIDs {
		if _, err := e.keys.Decrypt(ctx, keyID, sample); err == nil {
			warnings = append(warnings, entities.VerificationFailure{
				Subject:      keyID,
				Reason:       "destroyed key can still decrypt",
				FailedMethod: entities.VerifyDecryptionFailure,
				Severity:     entities.SeverityWarning,
			})
		}
	}
	return len(warnings) == 0, warnings
}

// VerifyKeyDeletion checks one key. An absent key counts as erased; an active
// key or an unexpected provider failure does not (fail closed).
func (e *Engine) VerifyKeyDeletion(ctx context.Context, keyID string) bool {
	key, err := e.keys.GetKey(ctx, keyID)
	if err != nil {
		if errors.Is(err, apperrors.ErrKeyNotFound) || apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
			metrics.KMSCallsTotal.WithLabelValues("get", "not_found").Inc()
			return true
		}
		metrics.KMSCallsTotal.WithLabelValues("get", "error").Inc()
		e.logger.Warn("Key status lookup failed",
			zap.String("key_id", keyID),
			zap.Error(err))
		return false
	}
	metrics.KMSCallsTotal.WithLabelValues("get", "ok").Inc()
	return key.Status.IsDestroyed()
}

// hashResult builds the deterministic result hash over the verification's
// inputs and outputs. Failures are sorted so ordering never changes the hash.
func (e *Engine) hashResult(result *entities.VerificationResult) string {
	reasons := make([]string, 0, len(result.Failures))
	for _, f := range result.Failures {
		reasons = append(reasons, f.Subject+"="+f.Reason)
	}
	sort.Strings(reasons)

	keys := append([]string(nil), result.DeletedKeyIDs...)
	sort.Strings(keys)

	payload := strings.Join([]string{
		result.RequestID.String(),
		fmt.Sprintf("%t", result.Verified),
		fmt.Sprintf("%d", result.Methods),
		strings.Join(keys, ","),
		strings.Join(reasons, ";"),
	}, "|")
	return crypto.ContentHash([]byte(payload))
}
