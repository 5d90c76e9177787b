// Package models - role.go defines Role and the RoleModule grant rows that carry
// the permission bits evaluated by the RBAC engine.
package models

import "time"

// Role is a named bundle of module grants. The slug is the stable external
// identifier: UserRole and RoleModule reference roles by slug, not by id, so a
// slug must never change once referenced.
type Role struct {
	ID          string
	Slug        string
	Name        string
	Description *string
	Icon        *string
	SortOrder   int
	IsActive    bool

	CreatedAt time.Time
	UpdatedAt time.Time

	// Modules holds the role's grants when loaded with the role graph.
	Modules []*RoleModule
}

// EntityType implements Snapshotter.
func (r *Role) EntityType() string { return "Role" }

// EntityID implements Snapshotter.
func (r *Role) EntityID() string { return r.ID }

// Snapshot implements Snapshotter.
func (r *Role) Snapshot() map[string]any {
	return map[string]any{
		"id":          r.ID,
		"slug":        r.Slug,
		"name":        r.Name,
		"description": strOrNil(r.Description),
		"icon":        strOrNil(r.Icon),
		"sort_order":  r.SortOrder,
		"is_active":   r.IsActive,
	}
}

// RoleModule grants a role access to a module. READ is not stored: holding any
// active grant for a module implies read access. Duplicate rows for the same
// (role, module) pair are tolerated and OR-aggregated by the evaluator.
type RoleModule struct {
	ID         string
	RoleSlug   string
	ModuleSlug string
	CanCreate  bool
	CanUpdate  bool
	CanDelete  bool
	// ScopeAll widens list visibility from own records to all records.
	ScopeAll bool
	IsActive bool

	CreatedAt time.Time
	UpdatedAt time.Time

	// Module is populated when the role graph is loaded.
	Module *Module
}

// EntityType implements Snapshotter.
func (rm *RoleModule) EntityType() string { return "RoleModule" }

// EntityID implements Snapshotter.
func (rm *RoleModule) EntityID() string { return rm.ID }

// Snapshot implements Snapshotter.
func (rm *RoleModule) Snapshot() map[string]any {
	return map[string]any{
		"id":          rm.ID,
		"role_slug":   rm.RoleSlug,
		"module_slug": rm.ModuleSlug,
		"can_create":  rm.CanCreate,
		"can_update":  rm.CanUpdate,
		"can_delete":  rm.CanDelete,
		"scope_all":   rm.ScopeAll,
		"is_active":   rm.IsActive,
	}
}
