package entities

import (
	"strings"
	"time"
)

// DataLocationRegistration is a static declaration that a table/field pair can
// hold personal data. One registration exists per (table, field).
type DataLocationRegistration struct {
	TableName           string    `json:"table_name" db:"table_name"`
	FieldName           string    `json:"field_name" db:"field_name"`
	DataCategory        string    `json:"data_category" db:"data_category"`
	DataSubjectIDColumn string    `json:"data_subject_id_column" db:"data_subject_id_column"`
	IDType              IDType    `json:"id_type" db:"id_type"`
	KeyIDColumn         string    `json:"key_id_column" db:"key_id_column"`
	TenantIDColumn      string    `json:"tenant_id_column,omitempty" db:"tenant_id_column"`
	Description         string    `json:"description,omitempty" db:"description"`
	RegisteredAt        time.Time `json:"registered_at" db:"registered_at"`
}

// DataLocation is a concrete discovered instance of personal data, deduplicated
// by (table, field, record)
type DataLocation struct {
	TableName        string `json:"table_name" db:"table_name"`
	FieldName        string `json:"field_name" db:"field_name"`
	RecordID         string `json:"record_id" db:"record_id"`
	DataCategory     string `json:"data_category" db:"data_category"`
	KeyID            string `json:"key_id" db:"key_id"`
	IsAutoDiscovered bool   `json:"is_auto_discovered" db:"is_auto_discovered"`
}

// DedupeKey identifies a location for (table, field, record) deduplication
func (l DataLocation) DedupeKey() string {
	return l.TableName + "/" + l.FieldName + "/" + l.RecordID
}

// KeyScope classifies what a key protects, inferred from its purpose prefix
type KeyScope string

const (
	KeyScopeUser    KeyScope = "user"
	KeyScopeTenant  KeyScope = "tenant"
	KeyScopeField   KeyScope = "field"
	KeyScopeUnknown KeyScope = "unknown"
)

// KeyScopeFromPurpose maps a key purpose such as "USER:profile" or
// "TENANT-acme" onto its scope
func KeyScopeFromPurpose(purpose string) KeyScope {
	upper := strings.ToUpper(purpose)
	switch {
	case strings.HasPrefix(upper, "USER"):
		return KeyScopeUser
	case strings.HasPrefix(upper, "TENANT"):
		return KeyScopeTenant
	case strings.HasPrefix(upper, "FIELD"):
		return KeyScopeField
	default:
		return KeyScopeUnknown
	}
}

// KeyReference describes one encryption key protecting a subject's data
type KeyReference struct {
	KeyID       string   `json:"key_id"`
	KeyScope    KeyScope `json:"key_scope"`
	RecordCount int      `json:"record_count"`
}

// DataInventory is the consolidated per-subject view: every place the
// subject's data lives and every key protecting it
type DataInventory struct {
	DataSubjectIDHash string         `json:"data_subject_id_hash"`
	Locations         []DataLocation `json:"locations"`
	Keys              []KeyReference `json:"keys"`
	DiscoveredAt      time.Time      `json:"discovered_at"`
	HasData           bool           `json:"has_data"`
}

// InventorySummary is the operator-facing digest attached to a scheduling
// result; it is informational only and never blocks scheduling
type InventorySummary struct {
	FieldCount int `json:"field_count"`
	KeyCount   int `json:"key_count"`
}

// DataMapEntry is one (table, field) in the system-wide data map
type DataMapEntry struct {
	TableName        string `json:"table_name" db:"table_name"`
	FieldName        string `json:"field_name" db:"field_name"`
	DataCategory     string `json:"data_category" db:"data_category"`
	IDType           IDType `json:"id_type" db:"id_type"`
	IsAutoDiscovered bool   `json:"is_auto_discovered" db:"is_auto_discovered"`
	RecordCount      int    `json:"record_count" db:"record_count"`
}

// DataMap is the system-wide catalogue of where personal data lives
type DataMap struct {
	TenantID    string         `json:"tenant_id,omitempty"`
	Entries     []DataMapEntry `json:"entries"`
	GeneratedAt time.Time      `json:"generated_at"`
}
