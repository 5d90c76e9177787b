// Package models - module.go defines Module and ModuleGroup. Groups exist only
// for menu presentation; permission logic never consults them.
package models

import "time"

// ModuleGroup is a presentation grouping of modules in the navigation menu.
type ModuleGroup struct {
	ID          string
	Slug        string
	Name        string
	Description *string
	Icon        *string
	SortOrder   int
	IsActive    bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EntityType implements Snapshotter.
func (g *ModuleGroup) EntityType() string { return "ModuleGroup" }

// EntityID implements Snapshotter.
func (g *ModuleGroup) EntityID() string { return g.ID }

// Snapshot implements Snapshotter.
func (g *ModuleGroup) Snapshot() map[string]any {
	return map[string]any{
		"id":          g.ID,
		"slug":        g.Slug,
		"name":        g.Name,
		"description": strOrNil(g.Description),
		"icon":        strOrNil(g.Icon),
		"sort_order":  g.SortOrder,
		"is_active":   g.IsActive,
	}
}

// Module is a permissioned application area (tasks, products, staff, ...).
// Like roles, modules are referenced by slug.
type Module struct {
	ID          string
	Slug        string
	Name        string
	Description *string
	Icon        *string
	Route       *string
	SortOrder   int
	IsActive    bool
	GroupSlug   *string

	CreatedAt time.Time
	UpdatedAt time.Time

	// Group is populated when the menu graph is loaded. It may stay nil for
	// orphaned rows; the menu builder skips those instead of failing.
	Group *ModuleGroup
}

// EntityType implements Snapshotter.
func (m *Module) EntityType() string { return "Module" }

// EntityID implements Snapshotter.
func (m *Module) EntityID() string { return m.ID }

// Snapshot implements Snapshotter.
func (m *Module) Snapshot() map[string]any {
	return map[string]any{
		"id":          m.ID,
		"slug":        m.Slug,
		"name":        m.Name,
		"description": strOrNil(m.Description),
		"icon":        strOrNil(m.Icon),
		"route":       strOrNil(m.Route),
		"sort_order":  m.SortOrder,
		"is_active":   m.IsActive,
		"group_slug":  strOrNil(m.GroupSlug),
	}
}
