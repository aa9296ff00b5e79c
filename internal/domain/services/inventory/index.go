package inventory

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/compliance-service/erasure_service/internal/domain/entities"
	"github.com/compliance-service/erasure_service/internal/domain/repositories"
	"github.com/compliance-service/erasure_service/internal/domain/services/keymgmt"
	"github.com/compliance-service/erasure_service/pkg/crypto"
	apperrors "github.com/compliance-service/erasure_service/pkg/errors"
)

// DataMapCache is the optional read-through cache for system-wide data maps.
// Get returns (nil, nil) on a miss.
type DataMapCache interface {
	Get(ctx context.Context, tenantID string) (*entities.DataMap, error)
	Set(ctx context.Context, tenantID string, dataMap *entities.DataMap) error
	Invalidate(ctx context.Context, tenantID string) error
}

// Index maintains the declarative catalogue of where personal data lives and
// the per-subject discovered locations, and consolidates both into a
// per-subject inventory with resolved key references.
type Index struct {
	repo     repositories.InventoryRepository
	keys     keymgmt.Provider
	cache    DataMapCache // nil disables caching
	hashSalt string
	logger   *zap.Logger
}

// NewIndex creates a new data inventory index
func NewIndex(repo repositories.InventoryRepository, keys keymgmt.Provider, cache DataMapCache, hashSalt string, logger *zap.Logger) *Index {
	return &Index{
		repo:     repo,
		keys:     keys,
		cache:    cache,
		hashSalt: hashSalt,
		logger:   logger,
	}
}

// RegisterLocation adds a static field registration to the catalogue
func (i *Index) RegisterLocation(ctx context.Context, reg *entities.DataLocationRegistration) error {
	switch {
	case strings.TrimSpace(reg.TableName) == "":
		return apperrors.NewValidation("table name is required")
	case strings.TrimSpace(reg.FieldName) == "":
		return apperrors.NewValidation("field name is required")
	case strings.TrimSpace(reg.DataCategory) == "":
		return apperrors.NewValidation("data category is required")
	case strings.TrimSpace(reg.DataSubjectIDColumn) == "":
		return apperrors.NewValidation("data subject id column is required")
	case strings.TrimSpace(string(reg.IDType)) == "":
		return apperrors.NewValidation("id type is required")
	case strings.TrimSpace(reg.KeyIDColumn) == "":
		return apperrors.NewValidation("key id column is required")
	}

	if reg.RegisteredAt.IsZero() {
		reg.RegisteredAt = time.Now()
	}
	if err := i.repo.SaveRegistration(ctx, reg); err != nil {
		return apperrors.WrapExternal(err, "failed to save registration")
	}

	i.invalidateDataMap(ctx)
	i.logger.Info("Data location registered",
		zap.String("table", reg.TableName),
		zap.String("field", reg.FieldName),
		zap.String("category", reg.DataCategory))
	return nil
}

// UnregisterLocation removes a registration from the catalogue
func (i *Index) UnregisterLocation(ctx context.Context, tableName, fieldName string) error {
	if strings.TrimSpace(tableName) == "" || strings.TrimSpace(fieldName) == "" {
		return apperrors.NewValidation("table and field names are required")
	}
	if err := i.repo.DeleteRegistration(ctx, tableName, fieldName); err != nil {
		return err
	}
	i.invalidateDataMap(ctx)
	return nil
}

// RecordDiscoveredLocation stores a concrete per-subject data location found
// by a scan or pipeline hook. Duplicates by (table, field, record) are
// absorbed by the store.
func (i *Index) RecordDiscoveredLocation(ctx context.Context, subjectID string, idType entities.IDType, loc *entities.DataLocation) error {
	if strings.TrimSpace(subjectID) == "" {
		return apperrors.NewValidation("data subject id is required")
	}
	if strings.TrimSpace(loc.TableName) == "" || strings.TrimSpace(loc.FieldName) == "" || strings.TrimSpace(loc.RecordID) == "" {
		return apperrors.NewValidation("table, field and record are required")
	}

	subjectHash := crypto.HashSubjectID(subjectID, string(idType), i.hashSalt)
	loc.IsAutoDiscovered = true
	if err := i.repo.RecordDiscoveredLocation(ctx, subjectHash, loc); err != nil {
		return apperrors.WrapExternal(err, "failed to record discovered location")
	}
	return nil
}

// Discover consolidates everything known about one subject: registrations
// narrowed by id type and tenant, the recorded discovered locations, and the
// keys protecting them. A key lookup failure is logged and skipped so one bad
// key never aborts discovery of the rest.
func (i *Index) Discover(ctx context.Context, subjectID string, idType entities.IDType, tenantID string) (*entities.DataInventory, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, apperrors.NewValidation("data subject id is required")
	}
	subjectHash := crypto.HashSubjectID(subjectID, string(idType), i.hashSalt)
	return i.DiscoverByHash(ctx, subjectHash, idType, tenantID)
}

// DiscoverByHash is the same consolidation keyed by an already-hashed subject
// reference. Execution and verification work off persisted hashes and never
// see the cleartext identifier.
func (i *Index) DiscoverByHash(ctx context.Context, subjectHash string, idType entities.IDType, tenantID string) (*entities.DataInventory, error) {
	if strings.TrimSpace(subjectHash) == "" {
		return nil, apperrors.NewValidation("data subject hash is required")
	}

	registrations, err := i.repo.FindRegistrationsForSubject(ctx, idType, tenantID)
	if err != nil {
		return nil, apperrors.WrapExternal(err, "failed to load registrations")
	}

	discovered, err := i.repo.GetDiscoveredLocations(ctx, subjectHash)
	if err != nil {
		return nil, apperrors.WrapExternal(err, "failed to load discovered locations")
	}

	// Registered fields narrow which discovered locations count as personal
	// data; locations in unregistered tables are kept too since a discovery
	// record is itself evidence that data lives there.
	registered := make(map[string]bool, len(registrations))
	for _, reg := range registrations {
		registered[reg.TableName+"/"+reg.FieldName] = true
	}

	seen := make(map[string]bool)
	var locations []entities.DataLocation
	for _, loc := range discovered {
		if loc == nil || seen[loc.DedupeKey()] {
			continue
		}
		seen[loc.DedupeKey()] = true
		if !loc.IsAutoDiscovered && !registered[loc.TableName+"/"+loc.FieldName] {
			continue
		}
		locations = append(locations, *loc)
	}

	inventory := &entities.DataInventory{
		DataSubjectIDHash: subjectHash,
		Locations:         locations,
		Keys:              i.resolveKeys(ctx, locations),
		DiscoveredAt:      time.Now(),
		HasData:           len(locations) > 0,
	}
	return inventory, nil
}

// resolveKeys classifies each distinct key by its declared purpose and counts
// how many locations it protects
func (i *Index) resolveKeys(ctx context.Context, locations []entities.DataLocation) []entities.KeyReference {
	counts := make(map[string]int)
	var order []string
	for _, loc := range locations {
		if loc.KeyID == "" {
			continue
		}
		if _, ok := counts[loc.KeyID]; !ok {
			order = append(order, loc.KeyID)
		}
		counts[loc.KeyID]++
	}

	var refs []entities.KeyReference
	for _, keyID := range order {
		key, err := i.keys.GetKey(ctx, keyID)
		if err != nil {
			i.logger.Warn("Key lookup failed during discovery, skipping",
				zap.String("key_id", keyID),
				zap.Error(err))
			continue
		}
		refs = append(refs, entities.KeyReference{
			KeyID:       keyID,
			KeyScope:    entities.KeyScopeFromPurpose(key.Purpose),
			RecordCount: counts[keyID],
		})
	}
	return refs
}

// GetDataMap returns the system-wide view of registered and discovered data
// locations, deduplicated by (table, field)
func (i *Index) GetDataMap(ctx context.Context, tenantID string) (*entities.DataMap, error) {
	if i.cache != nil {
		if cached, err := i.cache.Get(ctx, tenantID); err != nil {
			i.logger.Warn("Data map cache read failed", zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	entries, err := i.repo.GetDataMapEntries(ctx, tenantID)
	if err != nil {
		return nil, apperrors.WrapExternal(err, "failed to load data map")
	}

	dataMap := &entities.DataMap{
		TenantID:    tenantID,
		Entries:     make([]entities.DataMapEntry, 0, len(entries)),
		GeneratedAt: time.Now(),
	}
	for _, e := range entries {
		dataMap.Entries = append(dataMap.Entries, *e)
	}

	if i.cache != nil {
		if err := i.cache.Set(ctx, tenantID, dataMap); err != nil {
			i.logger.Warn("Data map cache write failed", zap.Error(err))
		}
	}
	return dataMap, nil
}

func (i *Index) invalidateDataMap(ctx context.Context) {
	if i.cache == nil {
		return
	}
	if err := i.cache.Invalidate(ctx, ""); err != nil {
		i.logger.Warn("Data map cache invalidation failed", zap.Error(err))
	}
}
