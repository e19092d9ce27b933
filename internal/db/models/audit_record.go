// Package models - audit_record.go defines the AuditRecord model, the immutable unit of
// tracked history, along with the closed Operation enumeration and snapshot types.
package models

import "time"

// Operation is the closed set of tracked action kinds. It is stored as a
// lowercase string in the database; use IsValid before persisting values
// received from external callers.
type Operation string

const (
	OperationInsert        Operation = "insert"
	OperationUpdate        Operation = "update"
	OperationDelete        Operation = "delete"
	OperationLogin         Operation = "login"
	OperationLogout        Operation = "logout"
	OperationExport        Operation = "export"
	OperationImport        Operation = "import"
	OperationBulkOperation Operation = "bulk_operation"
)

// Operations lists every valid operation kind in declaration order.
var Operations = []Operation{
	OperationInsert,
	OperationUpdate,
	OperationDelete,
	OperationLogin,
	OperationLogout,
	OperationExport,
	OperationImport,
	OperationBulkOperation,
}

// IsValid reports whether op is a member of the closed enumeration.
func (op Operation) IsValid() bool {
	switch op {
	case OperationInsert, OperationUpdate, OperationDelete,
		OperationLogin, OperationLogout,
		OperationExport, OperationImport, OperationBulkOperation:
		return true
	}
	return false
}

// Label returns the human-readable display label for the operation kind.
// Unknown values fall back to the raw string so display code never breaks.
func (op Operation) Label() string {
	switch op {
	case OperationInsert:
		return "Created"
	case OperationUpdate:
		return "Updated"
	case OperationDelete:
		return "Deleted"
	case OperationLogin:
		return "Logged in"
	case OperationLogout:
		return "Logged out"
	case OperationExport:
		return "Exported"
	case OperationImport:
		return "Imported"
	case OperationBulkOperation:
		return "Bulk operation"
	}
	return string(op)
}

// Snapshot is a point-in-time mapping of field names to values for an entity,
// captured immediately before or after a mutation. Stored as JSONB.
type Snapshot map[string]interface{}

// ActorContext identifies the agent performing a tracked operation, together
// with the request-context metadata captured at recording time. It is supplied
// by the identity collaborator and treated as opaque input.
type ActorContext struct {
	ID        *string
	Name      *string
	Email     *string
	IPAddress *string
	UserAgent *string
	SessionID *string
}

// AuditRecord represents one immutable entry in the audit trail. Records are
// append-only: once created they are never updated or deleted by this service.
type AuditRecord struct {
	ID        string    `json:"id"`
	Operation Operation `json:"operation"`
	TableName string    `json:"table_name"`
	// RecordID is nil for session-level operations (login/logout).
	RecordID   *string  `json:"record_id,omitempty"`
	ActorID    *string  `json:"actor_id,omitempty"`
	ActorName  *string  `json:"actor_name,omitempty"`
	ActorEmail *string  `json:"actor_email,omitempty"`
	OldValues  Snapshot `json:"old_values,omitempty"` // present for update and delete
	NewValues  Snapshot `json:"new_values,omitempty"` // present for insert and update
	IPAddress  *string  `json:"ip_address,omitempty"`
	UserAgent  *string  `json:"user_agent,omitempty"`
	SessionID  *string  `json:"session_id,omitempty"`
	// Metadata carries operation-specific extra context (e.g. export format).
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	// ActionDescription, when set by the producer, overrides the generated summary.
	ActionDescription *string   `json:"action_description,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Actor returns the display identity for the record's actor, falling back
// from name to email to "System" for unattributed operations.
func (r *AuditRecord) Actor() string {
	if r.ActorName != nil && *r.ActorName != "" {
		return *r.ActorName
	}
	if r.ActorEmail != nil && *r.ActorEmail != "" {
		return *r.ActorEmail
	}
	return "System"
}
