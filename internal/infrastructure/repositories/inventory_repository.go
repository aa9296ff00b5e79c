package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/compliance-service/erasure_service/internal/domain/entities"
)

// InventoryRepository implements the data inventory repository interface
// using PostgreSQL via sqlx
type InventoryRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewInventoryRepository creates a new inventory repository
func NewInventoryRepository(db *sqlx.DB, logger *zap.Logger) *InventoryRepository {
	return &InventoryRepository{
		db:     db,
		logger: logger,
	}
}

// SaveRegistration upserts a field registration keyed by (table, field)
func (r *InventoryRepository) SaveRegistration(ctx context.Context, reg *entities.DataLocationRegistration) error {
	query := `
		INSERT INTO data_location_registrations (
			table_name, field_name, data_category, data_subject_id_column,
			id_type, key_id_column, tenant_id_column, description, registered_at
		) VALUES (
			:table_name, :field_name, :data_category, :data_subject_id_column,
			:id_type, :key_id_column, :tenant_id_column, :description, :registered_at
		)
		ON CONFLICT (table_name, field_name) DO UPDATE SET
			data_category = EXCLUDED.data_category,
			data_subject_id_column = EXCLUDED.data_subject_id_column,
			id_type = EXCLUDED.id_type,
			key_id_column = EXCLUDED.key_id_column,
			tenant_id_column = EXCLUDED.tenant_id_column,
			description = EXCLUDED.description`

	if reg.RegisteredAt.IsZero() {
		reg.RegisteredAt = time.Now()
	}

	if _, err := r.db.NamedExecContext(ctx, query, reg); err != nil {
		r.logger.Error("Failed to save registration", zap.Error(err),
			zap.String("table", reg.TableName), zap.String("field", reg.FieldName))
		return fmt.Errorf("failed to save registration: %w", err)
	}

	r.logger.Debug("Registration saved",
		zap.String("table", reg.TableName), zap.String("field", reg.FieldName))
	return nil
}

// DeleteRegistration removes a field registration. Discovered locations for
// the field are left in place; discovery filters them against registrations.
func (r *InventoryRepository) DeleteRegistration(ctx context.Context, tableName, fieldName string) error {
	query := `DELETE FROM data_location_registrations WHERE table_name = $1 AND field_name = $2`

	if _, err := r.db.ExecContext(ctx, query, tableName, fieldName); err != nil {
		r.logger.Error("Failed to delete registration", zap.Error(err),
			zap.String("table", tableName), zap.String("field", fieldName))
		return fmt.Errorf("failed to delete registration: %w", err)
	}

	return nil
}

// FindRegistrationsForSubject returns registrations whose subject column type
// matches idType. Registrations are tenant-agnostic (see the interface doc);
// tenantID is accepted for the contract but does not narrow the query.
func (r *InventoryRepository) FindRegistrationsForSubject(ctx context.Context, idType entities.IDType, tenantID string) ([]*entities.DataLocationRegistration, error) {
	query := `
		SELECT table_name, field_name, data_category, data_subject_id_column,
		       id_type, key_id_column, tenant_id_column, description, registered_at
		FROM data_location_registrations
		WHERE id_type = $1
		ORDER BY table_name, field_name`

	var regs []*entities.DataLocationRegistration
	if err := r.db.SelectContext(ctx, &regs, query, string(idType)); err != nil {
		r.logger.Error("Failed to find registrations", zap.Error(err),
			zap.String("id_type", string(idType)))
		return nil, fmt.Errorf("failed to find registrations: %w", err)
	}

	return regs, nil
}

// RecordDiscoveredLocation upserts a concrete location keyed by
// (subject, table, field, record)
func (r *InventoryRepository) RecordDiscoveredLocation(ctx context.Context, subjectHash string, loc *entities.DataLocation) error {
	query := `
		INSERT INTO discovered_locations (
			data_subject_id_hash, table_name, field_name, record_id,
			data_category, key_id, is_auto_discovered, discovered_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, NOW()
		)
		ON CONFLICT (data_subject_id_hash, table_name, field_name, record_id) DO UPDATE SET
			data_category = EXCLUDED.data_category,
			key_id = EXCLUDED.key_id,
			is_auto_discovered = EXCLUDED.is_auto_discovered`

	_, err := r.db.ExecContext(ctx, query,
		subjectHash,
		loc.TableName,
		loc.FieldName,
		loc.RecordID,
		loc.DataCategory,
		loc.KeyID,
		loc.IsAutoDiscovered,
	)
	if err != nil {
		r.logger.Error("Failed to record discovered location", zap.Error(err),
			zap.String("table", loc.TableName), zap.String("field", loc.FieldName))
		return fmt.Errorf("failed to record discovered location: %w", err)
	}

	return nil
}

// GetDiscoveredLocations returns every recorded location for a subject
func (r *InventoryRepository) GetDiscoveredLocations(ctx context.Context, subjectHash string) ([]*entities.DataLocation, error) {
	query := `
		SELECT table_name, field_name, record_id, data_category, key_id, is_auto_discovered
		FROM discovered_locations
		WHERE data_subject_id_hash = $1
		ORDER BY table_name, field_name, record_id`

	var locations []*entities.DataLocation
	if err := r.db.SelectContext(ctx, &locations, query, subjectHash); err != nil {
		r.logger.Error("Failed to get discovered locations", zap.Error(err))
		return nil, fmt.Errorf("failed to get discovered locations: %w", err)
	}

	return locations, nil
}

// DeleteLocationsForSubject removes a subject's recorded locations, narrowed
// to the given categories when any are named, and returns how many rows went
func (r *InventoryRepository) DeleteLocationsForSubject(ctx context.Context, subjectHash string, categories []string) (int, error) {
	var (
		query string
		args  []interface{}
	)
	if len(categories) == 0 {
		query = `DELETE FROM discovered_locations WHERE data_subject_id_hash = $1`
		args = []interface{}{subjectHash}
	} else {
		query = `DELETE FROM discovered_locations WHERE data_subject_id_hash = $1 AND data_category = ANY($2)`
		args = []interface{}{subjectHash, pq.Array(categories)}
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to delete locations for subject", zap.Error(err))
		return 0, fmt.Errorf("failed to delete locations for subject: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted locations: %w", err)
	}

	return int(affected), nil
}

// GetDataMapEntries aggregates registrations and discovered locations into
// per-field data map rows. Registered fields appear even with zero records.
// The map spans every tenant: neither store carries per-tenant rows, so
// tenantID labels the view without narrowing it.
func (r *InventoryRepository) GetDataMapEntries(ctx context.Context, tenantID string) ([]*entities.DataMapEntry, error) {
	query := `
		SELECT reg.table_name, reg.field_name, reg.data_category, reg.id_type,
		       FALSE AS is_auto_discovered,
		       COUNT(loc.record_id) AS record_count
		FROM data_location_registrations reg
		LEFT JOIN discovered_locations loc
		  ON loc.table_name = reg.table_name AND loc.field_name = reg.field_name
		GROUP BY reg.table_name, reg.field_name, reg.data_category, reg.id_type

		UNION ALL

		SELECT loc.table_name, loc.field_name, loc.data_category, '' AS id_type,
		       TRUE AS is_auto_discovered,
		       COUNT(loc.record_id) AS record_count
		FROM discovered_locations loc
		WHERE loc.is_auto_discovered = TRUE
		  AND NOT EXISTS (
			SELECT 1 FROM data_location_registrations reg
			WHERE reg.table_name = loc.table_name AND reg.field_name = loc.field_name
		  )
		GROUP BY loc.table_name, loc.field_name, loc.data_category

		ORDER BY table_name, field_name`

	var entries []*entities.DataMapEntry
	if err := r.db.SelectContext(ctx, &entries, query); err != nil {
		r.logger.Error("Failed to build data map", zap.Error(err))
		return nil, fmt.Errorf("failed to build data map: %w", err)
	}

	return entries, nil
}
