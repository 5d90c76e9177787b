// Package models - audit_log.go defines the AuditLog row and the Snapshotter
// capability every auditable entity implements.
package models

import "time"

// Audit actions. CREATE/UPDATE/DELETE rows are written by the change-capture
// hook inside the business transaction; ACCESS rows are written by the
// access-log middleware in their own transaction after the response.
const (
	AuditActionCreate = "CREATE"
	AuditActionUpdate = "UPDATE"
	AuditActionDelete = "DELETE"
	AuditActionAccess = "ACCESS"
)

// AuditLog is an append-only record of who changed (or accessed) what. Rows
// are never mutated after insert. Username is denormalized so the record stays
// readable even if the user row disappears later.
type AuditLog struct {
	ID       string  `json:"id"`
	UserID   *string `json:"user_id"` // nil for anonymous/system actors
	Username *string `json:"username"`
	Action   string  `json:"action"` // CREATE, UPDATE, DELETE, ACCESS
	// EntityType is the concrete type name ("Task", "User") or "Endpoint" for
	// ACCESS rows.
	EntityType string `json:"entity_type"`
	// EntityID is the affected entity's primary key, stringified; the request
	// path for ACCESS rows.
	EntityID string `json:"entity_id"`
	// Changes is the structured payload: a full snapshot for CREATE/DELETE, a
	// map of field name to old/new pair for UPDATE, method and status code for
	// ACCESS.
	Changes   map[string]any `json:"changes,omitempty"`
	IPAddress *string        `json:"ip_address"`
	UserAgent *string        `json:"user_agent"`
	Timestamp time.Time      `json:"timestamp"`
}

// AuditEntityType is the entity type name of audit rows themselves. The
// change-capture hook refuses to audit entities reporting this name.
const AuditEntityType = "AuditLog"

// Snapshotter is the serialization capability every auditable entity type must
// implement. The change-capture hook refuses to guess at struct fields via
// reflection: a type that cannot produce its own snapshot is not auditable.
type Snapshotter interface {
	// EntityType returns the concrete type name used in audit rows.
	EntityType() string
	// EntityID returns the primary key, stringified.
	EntityID() string
	// Snapshot returns the entity's persisted field values. Secrets and
	// high-churn bookkeeping fields are omitted by the implementation.
	Snapshot() map[string]any
}
