package entities

import "time"

// Audit actions and outcomes the verification engine correlates against.
// Values match what the erasure pipeline writes to the audit trail.
const (
	AuditActionErasureCompleted  = "erasure.completed"
	AuditActionErasureFailed     = "erasure.failed"
	AuditActionErasureRolledBack = "erasure.rolled_back"
	AuditActionKeyDeleted        = "erasure.key_deleted"

	AuditOutcomeSuccess = "success"
	AuditOutcomeFailure = "failure"
)

// AuditEvent is one immutable entry from the audit trail
type AuditEvent struct {
	EventID      string    `json:"event_id" db:"event_id"`
	ResourceID   string    `json:"resource_id" db:"resource_id"`
	ResourceType string    `json:"resource_type" db:"resource_type"`
	Action       string    `json:"action" db:"action"`
	Outcome      string    `json:"outcome" db:"outcome"`
	ActorID      string    `json:"actor_id" db:"actor_id"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
}

// AuditQueryFilter narrows an audit trail query. Zero values mean "any".
type AuditQueryFilter struct {
	ResourceID   string     `json:"resource_id,omitempty"`
	ResourceType string     `json:"resource_type,omitempty"`
	Actions      []string   `json:"actions,omitempty"`
	From         *time.Time `json:"from,omitempty"`
	To           *time.Time `json:"to,omitempty"`
	Limit        int        `json:"limit,omitempty"`
}
