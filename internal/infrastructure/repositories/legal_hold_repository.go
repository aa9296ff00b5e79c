package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/compliance-service/erasure_service/internal/domain/entities"
)

// LegalHoldRepository implements the legal hold repository interface using
// PostgreSQL
type LegalHoldRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewLegalHoldRepository creates a new legal hold repository
func NewLegalHoldRepository(db *sql.DB, logger *zap.Logger) *LegalHoldRepository {
	return &LegalHoldRepository{
		db:     db,
		logger: logger,
	}
}

const legalHoldColumns = `
	hold_id, data_subject_id_hash, tenant_id, basis, case_reference, description,
	is_active, expires_at, created_by, created_at, released_by, released_at,
	release_reason`

// Save inserts a new legal hold
func (r *LegalHoldRepository) Save(ctx context.Context, hold *entities.LegalHold) error {
	query := `
		INSERT INTO legal_holds (
			hold_id, data_subject_id_hash, tenant_id, basis, case_reference,
			description, is_active, expires_at, created_by, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)`

	_, err := r.db.ExecContext(ctx, query,
		hold.HoldID,
		hold.DataSubjectIDHash,
		hold.TenantID,
		string(hold.Basis),
		hold.CaseReference,
		hold.Description,
		hold.IsActive,
		hold.ExpiresAt,
		hold.CreatedBy,
		hold.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to save legal hold", zap.Error(err),
			zap.String("hold_id", hold.HoldID.String()))
		return fmt.Errorf("failed to save legal hold: %w", err)
	}

	r.logger.Debug("Legal hold saved", zap.String("hold_id", hold.HoldID.String()))
	return nil
}

// GetByID retrieves a hold, or (nil, nil) when it does not exist
func (r *LegalHoldRepository) GetByID(ctx context.Context, holdID uuid.UUID) (*entities.LegalHold, error) {
	query := `SELECT ` + legalHoldColumns + ` FROM legal_holds WHERE hold_id = $1`

	hold, err := r.scanHold(r.db.QueryRowContext(ctx, query, holdID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.Error("Failed to get legal hold", zap.Error(err),
			zap.String("hold_id", holdID.String()))
		return nil, fmt.Errorf("failed to get legal hold: %w", err)
	}

	return hold, nil
}

// Update persists release and deactivation state for an existing hold
func (r *LegalHoldRepository) Update(ctx context.Context, hold *entities.LegalHold) error {
	query := `
		UPDATE legal_holds
		SET is_active = $2, released_by = $3, released_at = $4, release_reason = $5
		WHERE hold_id = $1`

	_, err := r.db.ExecContext(ctx, query,
		hold.HoldID,
		hold.IsActive,
		hold.ReleasedBy,
		hold.ReleasedAt,
		hold.ReleaseReason,
	)
	if err != nil {
		r.logger.Error("Failed to update legal hold", zap.Error(err),
			zap.String("hold_id", hold.HoldID.String()))
		return fmt.Errorf("failed to update legal hold: %w", err)
	}

	return nil
}

// GetActiveForSubject returns active holds naming the subject directly
func (r *LegalHoldRepository) GetActiveForSubject(ctx context.Context, subjectHash, tenantID string) ([]*entities.LegalHold, error) {
	query := `
		SELECT ` + legalHoldColumns + `
		FROM legal_holds
		WHERE is_active = TRUE AND data_subject_id_hash = $1
		  AND (tenant_id = '' OR tenant_id = $2)
		ORDER BY created_at ASC`

	return r.query(ctx, query, subjectHash, tenantID)
}

// GetActiveForTenant returns active tenant-wide holds for the tenant
func (r *LegalHoldRepository) GetActiveForTenant(ctx context.Context, tenantID string) ([]*entities.LegalHold, error) {
	query := `
		SELECT ` + legalHoldColumns + `
		FROM legal_holds
		WHERE is_active = TRUE AND data_subject_id_hash IS NULL AND tenant_id = $1
		ORDER BY created_at ASC`

	return r.query(ctx, query, tenantID)
}

// ListActive returns every active hold, optionally narrowed to a tenant
func (r *LegalHoldRepository) ListActive(ctx context.Context, tenantID string) ([]*entities.LegalHold, error) {
	if tenantID == "" {
		query := `SELECT ` + legalHoldColumns + ` FROM legal_holds WHERE is_active = TRUE ORDER BY created_at ASC`
		return r.query(ctx, query)
	}
	query := `
		SELECT ` + legalHoldColumns + `
		FROM legal_holds
		WHERE is_active = TRUE AND tenant_id = $1
		ORDER BY created_at ASC`
	return r.query(ctx, query, tenantID)
}

// ListAll returns every hold including released ones, optionally per tenant
func (r *LegalHoldRepository) ListAll(ctx context.Context, tenantID string) ([]*entities.LegalHold, error) {
	if tenantID == "" {
		query := `SELECT ` + legalHoldColumns + ` FROM legal_holds ORDER BY created_at ASC`
		return r.query(ctx, query)
	}
	query := `SELECT ` + legalHoldColumns + ` FROM legal_holds WHERE tenant_id = $1 ORDER BY created_at ASC`
	return r.query(ctx, query, tenantID)
}

// GetExpired returns active holds whose advisory expiry has passed
func (r *LegalHoldRepository) GetExpired(ctx context.Context, now time.Time) ([]*entities.LegalHold, error) {
	query := `
		SELECT ` + legalHoldColumns + `
		FROM legal_holds
		WHERE is_active = TRUE AND expires_at IS NOT NULL AND expires_at < $1
		ORDER BY created_at ASC`

	return r.query(ctx, query, now)
}

func (r *LegalHoldRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entities.LegalHold, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query legal holds", zap.Error(err))
		return nil, fmt.Errorf("failed to query legal holds: %w", err)
	}
	defer rows.Close()

	var holds []*entities.LegalHold
	for rows.Next() {
		hold, err := r.scanHold(rows)
		if err != nil {
			r.logger.Error("Failed to scan legal hold", zap.Error(err))
			return nil, fmt.Errorf("failed to scan legal hold: %w", err)
		}
		holds = append(holds, hold)
	}

	return holds, rows.Err()
}

func (r *LegalHoldRepository) scanHold(row rowScanner) (*entities.LegalHold, error) {
	hold := &entities.LegalHold{}
	var (
		subjectHash   sql.NullString
		expiresAt     sql.NullTime
		releasedBy    sql.NullString
		releasedAt    sql.NullTime
		releaseReason sql.NullString
	)

	err := row.Scan(
		&hold.HoldID,
		&subjectHash,
		&hold.TenantID,
		&hold.Basis,
		&hold.CaseReference,
		&hold.Description,
		&hold.IsActive,
		&expiresAt,
		&hold.CreatedBy,
		&hold.CreatedAt,
		&releasedBy,
		&releasedAt,
		&releaseReason,
	)
	if err != nil {
		return nil, err
	}

	if subjectHash.Valid {
		hold.DataSubjectIDHash = &subjectHash.String
	}
	if expiresAt.Valid {
		hold.ExpiresAt = &expiresAt.Time
	}
	hold.ReleasedBy = releasedBy.String
	if releasedAt.Valid {
		hold.ReleasedAt = &releasedAt.Time
	}
	hold.ReleaseReason = releaseReason.String

	return hold, nil
}
