package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/compliance-service/erasure_service/internal/domain/entities"
	apperrors "github.com/compliance-service/erasure_service/pkg/errors"
	"github.com/compliance-service/erasure_service/pkg/pagination"
)

// ErasureRequestRepository implements the erasure request repository interface
// using PostgreSQL
type ErasureRequestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewErasureRequestRepository creates a new erasure request repository
func NewErasureRequestRepository(db *sql.DB, logger *zap.Logger) *ErasureRequestRepository {
	return &ErasureRequestRepository{
		db:     db,
		logger: logger,
	}
}

const erasureStatusColumns = `
	request_id, status, data_subject_id_hash, id_type, tenant_id, scope,
	data_categories, legal_basis, requested_at, requested_by,
	scheduled_execution_time, executed_at, completed_at, keys_deleted,
	deleted_key_ids, records_affected, certificate_id, error_message,
	cancellation_reason, cancelled_by, retry_attempts, updated_at`

// Save inserts a newly scheduled erasure request
func (r *ErasureRequestRepository) Save(ctx context.Context, status *entities.ErasureStatus) error {
	query := `
		INSERT INTO erasure_requests (
			request_id, status, data_subject_id_hash, id_type, tenant_id, scope,
			data_categories, legal_basis, requested_at, requested_by,
			scheduled_execution_time, retry_attempts, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)`

	_, err := r.db.ExecContext(ctx, query,
		status.RequestID,
		string(status.Status),
		status.DataSubjectIDHash,
		string(status.IDType),
		status.TenantID,
		string(status.Scope),
		pq.Array(status.DataCategories),
		string(status.LegalBasis),
		status.RequestedAt,
		status.RequestedBy,
		status.ScheduledExecutionTime,
		status.RetryAttempts,
		time.Now(),
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		r.logger.Error("Failed to save erasure request", zap.Error(err),
			zap.String("request_id", status.RequestID.String()))
		return fmt.Errorf("failed to save erasure request: %w", err)
	}

	r.logger.Debug("Erasure request saved", zap.String("request_id", status.RequestID.String()))
	return nil
}

// GetStatus retrieves the current state of a request. A missing request
// returns (nil, nil) so callers decide how absence is reported.
func (r *ErasureRequestRepository) GetStatus(ctx context.Context, requestID uuid.UUID) (*entities.ErasureStatus, error) {
	query := `SELECT ` + erasureStatusColumns + ` FROM erasure_requests WHERE request_id = $1`

	status, err := r.scanStatus(r.db.QueryRowContext(ctx, query, requestID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.Error("Failed to get erasure request", zap.Error(err),
			zap.String("request_id", requestID.String()))
		return nil, fmt.Errorf("failed to get erasure request: %w", err)
	}

	return status, nil
}

// UpdateStatusIf transitions status only when the stored value still matches
// expected. The rows-affected check is what keeps concurrent executors from
// double-running a request.
func (r *ErasureRequestRepository) UpdateStatusIf(ctx context.Context, requestID uuid.UUID, expected, next entities.RequestStatus) error {
	query := `
		UPDATE erasure_requests
		SET status = $3, executed_at = CASE WHEN $3 = 'in_progress' THEN NOW() ELSE executed_at END, updated_at = NOW()
		WHERE request_id = $1 AND status = $2`

	result, err := r.db.ExecContext(ctx, query, requestID, string(expected), string(next))
	if err != nil {
		r.logger.Error("Failed to transition erasure request", zap.Error(err),
			zap.String("request_id", requestID.String()))
		return fmt.Errorf("failed to transition erasure request: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check transition result: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrInvalidState
	}

	r.logger.Debug("Erasure request transitioned",
		zap.String("request_id", requestID.String()),
		zap.String("from", string(expected)),
		zap.String("to", string(next)))
	return nil
}

// RecordCompletion marks a request completed with its erasure results
func (r *ErasureRequestRepository) RecordCompletion(ctx context.Context, requestID uuid.UUID, completedAt time.Time, deletedKeyIDs []string, recordsAffected int, certificateID uuid.UUID) error {
	query := `
		UPDATE erasure_requests
		SET status = $2, completed_at = $3, keys_deleted = $4, deleted_key_ids = $5,
		    records_affected = $6, certificate_id = $7, error_message = '', updated_at = NOW()
		WHERE request_id = $1`

	_, err := r.db.ExecContext(ctx, query,
		requestID,
		string(entities.StatusCompleted),
		completedAt,
		len(deletedKeyIDs),
		pq.Array(deletedKeyIDs),
		recordsAffected,
		certificateID,
	)
	if err != nil {
		r.logger.Error("Failed to record erasure completion", zap.Error(err),
			zap.String("request_id", requestID.String()))
		return fmt.Errorf("failed to record erasure completion: %w", err)
	}

	return nil
}

// RecordFailure marks a request failed with the execution error
func (r *ErasureRequestRepository) RecordFailure(ctx context.Context, requestID uuid.UUID, errorMessage string) error {
	query := `
		UPDATE erasure_requests
		SET status = $2, error_message = $3, updated_at = NOW()
		WHERE request_id = $1`

	_, err := r.db.ExecContext(ctx, query, requestID, string(entities.StatusFailed), errorMessage)
	if err != nil {
		r.logger.Error("Failed to record erasure failure", zap.Error(err),
			zap.String("request_id", requestID.String()))
		return fmt.Errorf("failed to record erasure failure: %w", err)
	}

	return nil
}

// RecordCancellation marks a still-scheduled request cancelled with who and
// why. The status predicate races against the scheduler's claim: if execution
// already started the update touches zero rows and ErrInvalidState comes back,
// so a late cancellation can never overwrite an in-progress erasure.
func (r *ErasureRequestRepository) RecordCancellation(ctx context.Context, requestID uuid.UUID, reason, cancelledBy string) error {
	query := `
		UPDATE erasure_requests
		SET status = $2, cancellation_reason = $3, cancelled_by = $4, updated_at = NOW()
		WHERE request_id = $1 AND status = $5`

	result, err := r.db.ExecContext(ctx, query, requestID,
		string(entities.StatusCancelled), reason, cancelledBy, string(entities.StatusScheduled))
	if err != nil {
		r.logger.Error("Failed to record cancellation", zap.Error(err),
			zap.String("request_id", requestID.String()))
		return fmt.Errorf("failed to record cancellation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check cancellation result: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrInvalidState
	}

	return nil
}

// MarkRetry re-schedules a failed request for another attempt
func (r *ErasureRequestRepository) MarkRetry(ctx context.Context, requestID uuid.UUID, nextExecution time.Time) error {
	query := `
		UPDATE erasure_requests
		SET status = $2, scheduled_execution_time = $3,
		    retry_attempts = retry_attempts + 1, updated_at = NOW()
		WHERE request_id = $1 AND status = $4`

	result, err := r.db.ExecContext(ctx, query, requestID,
		string(entities.StatusScheduled), nextExecution, string(entities.StatusFailed))
	if err != nil {
		r.logger.Error("Failed to mark retry", zap.Error(err),
			zap.String("request_id", requestID.String()))
		return fmt.Errorf("failed to mark retry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check retry result: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrInvalidState
	}

	return nil
}

// List returns a page of requests matching the filter, newest first
func (r *ErasureRequestRepository) List(ctx context.Context, filter entities.ListRequestsFilter, params pagination.Params) ([]*entities.ErasureStatus, int64, error) {
	where, args := buildListFilter(filter)

	var total int64
	countQuery := `SELECT COUNT(*) FROM erasure_requests` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		r.logger.Error("Failed to count erasure requests", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to count erasure requests: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM erasure_requests%s ORDER BY requested_at DESC LIMIT $%d OFFSET $%d`,
		erasureStatusColumns, where, len(args)+1, len(args)+2)
	args = append(args, params.Limit(), params.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list erasure requests", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to list erasure requests: %w", err)
	}
	defer rows.Close()

	var statuses []*entities.ErasureStatus
	for rows.Next() {
		status, err := r.scanStatus(rows)
		if err != nil {
			r.logger.Error("Failed to scan erasure request", zap.Error(err))
			return nil, 0, fmt.Errorf("failed to scan erasure request: %w", err)
		}
		statuses = append(statuses, status)
	}

	return statuses, total, rows.Err()
}

// GetScheduledBefore returns scheduled requests whose execution time has
// passed, oldest first
func (r *ErasureRequestRepository) GetScheduledBefore(ctx context.Context, dueBefore time.Time, limit int) ([]*entities.ErasureStatus, error) {
	query := `
		SELECT ` + erasureStatusColumns + `
		FROM erasure_requests
		WHERE status = $1 AND scheduled_execution_time <= $2
		ORDER BY scheduled_execution_time ASC
		LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, string(entities.StatusScheduled), dueBefore, limit)
	if err != nil {
		r.logger.Error("Failed to fetch due erasure requests", zap.Error(err))
		return nil, fmt.Errorf("failed to fetch due erasure requests: %w", err)
	}
	defer rows.Close()

	var statuses []*entities.ErasureStatus
	for rows.Next() {
		status, err := r.scanStatus(rows)
		if err != nil {
			r.logger.Error("Failed to scan due erasure request", zap.Error(err))
			return nil, fmt.Errorf("failed to scan due erasure request: %w", err)
		}
		statuses = append(statuses, status)
	}

	return statuses, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *ErasureRequestRepository) scanStatus(row rowScanner) (*entities.ErasureStatus, error) {
	status := &entities.ErasureStatus{}
	var (
		categories    pq.StringArray
		deletedKeyIDs pq.StringArray
		executedAt    sql.NullTime
		completedAt   sql.NullTime
		certificateID uuid.NullUUID
		errorMessage  sql.NullString
		cancelReason  sql.NullString
		cancelledBy   sql.NullString
	)

	err := row.Scan(
		&status.RequestID,
		&status.Status,
		&status.DataSubjectIDHash,
		&status.IDType,
		&status.TenantID,
		&status.Scope,
		&categories,
		&status.LegalBasis,
		&status.RequestedAt,
		&status.RequestedBy,
		&status.ScheduledExecutionTime,
		&executedAt,
		&completedAt,
		&status.KeysDeleted,
		&deletedKeyIDs,
		&status.RecordsAffected,
		&certificateID,
		&errorMessage,
		&cancelReason,
		&cancelledBy,
		&status.RetryAttempts,
		&status.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	status.DataCategories = []string(categories)
	status.DeletedKeyIDs = []string(deletedKeyIDs)
	if executedAt.Valid {
		status.ExecutedAt = &executedAt.Time
	}
	if completedAt.Valid {
		status.CompletedAt = &completedAt.Time
	}
	if certificateID.Valid {
		status.CertificateID = &certificateID.UUID
	}
	status.ErrorMessage = errorMessage.String
	status.CancellationReason = cancelReason.String
	status.CancelledBy = cancelledBy.String

	return status, nil
}

func buildListFilter(filter entities.ListRequestsFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.TenantID != "" {
		args = append(args, filter.TenantID)
		clauses = append(clauses, fmt.Sprintf("tenant_id = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		clauses = append(clauses, fmt.Sprintf("requested_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		clauses = append(clauses, fmt.Sprintf("requested_at <= $%d", len(args)))
	}

	if len(clauses) == 0 {
		return "", nil
	}

	where := " WHERE " + clauses[0]
	for _, clause := range clauses[1:] {
		where += " AND " + clause
	}
	return where, args
}
