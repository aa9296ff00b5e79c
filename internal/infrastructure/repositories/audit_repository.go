package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/compliance-service/erasure_service/internal/domain/entities"
)

// AuditRepository implements the append-only audit trail over PostgreSQL. The
// coordinator writes lifecycle events through Record; the verification engine
// reads them back through Query.
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Record appends one event. Events are never updated or deleted.
func (r *AuditRepository) Record(ctx context.Context, event *entities.AuditEvent) error {
	query := `
		INSERT INTO audit_events (
			event_id, resource_id, resource_type, action, outcome, actor_id, timestamp
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)`

	_, err := r.db.ExecContext(ctx, query,
		event.EventID,
		event.ResourceID,
		event.ResourceType,
		event.Action,
		event.Outcome,
		event.ActorID,
		event.Timestamp,
	)
	if err != nil {
		r.logger.Error("Failed to record audit event", zap.Error(err),
			zap.String("action", event.Action),
			zap.String("resource_id", event.ResourceID))
		return fmt.Errorf("failed to record audit event: %w", err)
	}

	return nil
}

// Query returns events matching the filter, oldest first
func (r *AuditRepository) Query(ctx context.Context, filter entities.AuditQueryFilter) ([]*entities.AuditEvent, error) {
	query := `
		SELECT event_id, resource_id, resource_type, action, outcome, actor_id, timestamp
		FROM audit_events`

	var clauses []string
	var args []interface{}

	if filter.ResourceID != "" {
		args = append(args, filter.ResourceID)
		clauses = append(clauses, fmt.Sprintf("resource_id = $%d", len(args)))
	}
	if filter.ResourceType != "" {
		args = append(args, filter.ResourceType)
		clauses = append(clauses, fmt.Sprintf("resource_type = $%d", len(args)))
	}
	if len(filter.Actions) > 0 {
		args = append(args, pq.Array(filter.Actions))
		clauses = append(clauses, fmt.Sprintf("action = ANY($%d)", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		clauses = append(clauses, fmt.Sprintf("timestamp >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		clauses = append(clauses, fmt.Sprintf("timestamp <= $%d", len(args)))
	}

	if len(clauses) > 0 {
		query += " WHERE " + clauses[0]
		for _, clause := range clauses[1:] {
			query += " AND " + clause
		}
	}
	query += " ORDER BY timestamp ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query audit events", zap.Error(err))
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*entities.AuditEvent
	for rows.Next() {
		event := &entities.AuditEvent{}
		err := rows.Scan(
			&event.EventID,
			&event.ResourceID,
			&event.ResourceType,
			&event.Action,
			&event.Outcome,
			&event.ActorID,
			&event.Timestamp,
		)
		if err != nil {
			r.logger.Error("Failed to scan audit event", zap.Error(err))
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, event)
	}

	return events, rows.Err()
}
