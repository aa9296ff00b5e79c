package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/compliance-service/erasure_service/internal/domain/entities"
	apperrors "github.com/compliance-service/erasure_service/pkg/errors"
)

// CertificateRepository implements the certificate repository interface using
// PostgreSQL
type CertificateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCertificateRepository creates a new certificate repository
func NewCertificateRepository(db *sql.DB, logger *zap.Logger) *CertificateRepository {
	return &CertificateRepository{
		db:     db,
		logger: logger,
	}
}

// Save inserts a certificate. The unique constraint on request_id makes this
// a conditional insert: a second certificate for a request returns ErrConflict.
func (r *CertificateRepository) Save(ctx context.Context, cert *entities.ErasureCertificate) error {
	query := `
		INSERT INTO erasure_certificates (
			certificate_id, request_id, data_subject_reference, request_received_at,
			completed_at, method, keys_deleted, records_affected, deleted_key_ids,
			verification, legal_basis, signature, issued_at, retain_until
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)`

	var verification []byte
	if cert.Verification != nil {
		var err error
		verification, err = json.Marshal(cert.Verification)
		if err != nil {
			return fmt.Errorf("failed to marshal verification summary: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx, query,
		cert.CertificateID,
		cert.RequestID,
		cert.DataSubjectReference,
		cert.RequestReceivedAt,
		cert.CompletedAt,
		string(cert.Method),
		cert.Summary.KeysDeleted,
		cert.Summary.RecordsAffected,
		pq.Array(cert.Summary.DeletedKeyIDs),
		verification,
		string(cert.LegalBasis),
		cert.Signature,
		cert.IssuedAt,
		cert.RetainUntil,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		r.logger.Error("Failed to save certificate", zap.Error(err),
			zap.String("certificate_id", cert.CertificateID.String()))
		return fmt.Errorf("failed to save certificate: %w", err)
	}

	r.logger.Debug("Certificate saved",
		zap.String("certificate_id", cert.CertificateID.String()),
		zap.String("request_id", cert.RequestID.String()))
	return nil
}

// GetByRequestID retrieves the certificate issued for a request, or (nil, nil)
// when none exists
func (r *CertificateRepository) GetByRequestID(ctx context.Context, requestID uuid.UUID) (*entities.ErasureCertificate, error) {
	return r.get(ctx, `request_id = $1`, requestID)
}

// GetByID retrieves a certificate by its own identifier, or (nil, nil)
func (r *CertificateRepository) GetByID(ctx context.Context, certificateID uuid.UUID) (*entities.ErasureCertificate, error) {
	return r.get(ctx, `certificate_id = $1`, certificateID)
}

func (r *CertificateRepository) get(ctx context.Context, where string, arg interface{}) (*entities.ErasureCertificate, error) {
	query := `
		SELECT certificate_id, request_id, data_subject_reference, request_received_at,
		       completed_at, method, keys_deleted, records_affected, deleted_key_ids,
		       verification, legal_basis, signature, issued_at, retain_until
		FROM erasure_certificates
		WHERE ` + where

	cert := &entities.ErasureCertificate{}
	var deletedKeyIDs pq.StringArray
	var verification []byte

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&cert.CertificateID,
		&cert.RequestID,
		&cert.DataSubjectReference,
		&cert.RequestReceivedAt,
		&cert.CompletedAt,
		&cert.Method,
		&cert.Summary.KeysDeleted,
		&cert.Summary.RecordsAffected,
		&deletedKeyIDs,
		&verification,
		&cert.LegalBasis,
		&cert.Signature,
		&cert.IssuedAt,
		&cert.RetainUntil,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.Error("Failed to get certificate", zap.Error(err))
		return nil, fmt.Errorf("failed to get certificate: %w", err)
	}

	cert.Summary.DeletedKeyIDs = []string(deletedKeyIDs)
	if len(verification) > 0 {
		summary := &entities.VerificationSummary{}
		if err := json.Unmarshal(verification, summary); err != nil {
			return nil, fmt.Errorf("failed to unmarshal verification summary: %w", err)
		}
		cert.Verification = summary
	}

	return cert, nil
}

// DeleteExpired removes certificates whose retention window has lapsed and
// returns how many were purged
func (r *CertificateRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	query := `DELETE FROM erasure_certificates WHERE retain_until < $1`

	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		r.logger.Error("Failed to delete expired certificates", zap.Error(err))
		return 0, fmt.Errorf("failed to delete expired certificates: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged certificates: %w", err)
	}

	return int(affected), nil
}
