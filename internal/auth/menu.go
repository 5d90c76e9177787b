// Package auth - menu.go builds the navigation menu for a single role: active
// modules grouped by their presentation group, each carrying the permission
// bits the role grants.
package auth

import (
	"sort"

	"github.com/backoffice-platform/backoffice/internal/db/models"
)

// MenuModule is one module entry in a role menu.
type MenuModule struct {
	Slug        string                `json:"slug"`
	Name        string                `json:"name"`
	Description *string               `json:"description"`
	Icon        *string               `json:"icon"`
	Route       *string               `json:"route"`
	SortOrder   int                   `json:"sort_order"`
	Permissions *UserModulePermission `json:"permissions"`
}

// MenuGroup is one group of modules in a role menu.
type MenuGroup struct {
	Slug      string        `json:"slug"`
	Name      string        `json:"name"`
	Icon      *string       `json:"icon"`
	SortOrder int           `json:"sort_order"`
	Modules   []*MenuModule `json:"modules"`
}

// BuildRoleMenu builds the menu for one role. The role must be loaded with the
// menu graph (active grants, active modules, groups). Non-superusers must hold
// the role through an active assignment; superusers may build any active
// role's menu.
//
// Modules whose group relation is missing are skipped rather than failing:
// orphaned rows must never break the menu. Groups and modules are ordered by
// sort key ascending, ties kept in input order.
func BuildRoleMenu(user *models.User, role *models.Role) ([]*MenuGroup, error) {
	if role == nil || !role.IsActive {
		return nil, &NotFoundError{Detail: "role not found"}
	}

	if !user.IsSuperuser && !holdsRole(user, role.Slug) {
		return nil, NewActiveRoleDenied(role.Slug)
	}

	groupsBySlug := make(map[string]*MenuGroup)
	var groups []*MenuGroup

	for _, grant := range role.Modules {
		if !grant.IsActive {
			continue
		}
		mod := grant.Module
		if mod == nil || !mod.IsActive || mod.Group == nil || !mod.Group.IsActive {
			continue
		}

		group, ok := groupsBySlug[mod.Group.Slug]
		if !ok {
			group = &MenuGroup{
				Slug:      mod.Group.Slug,
				Name:      mod.Group.Name,
				Icon:      mod.Group.Icon,
				SortOrder: mod.Group.SortOrder,
			}
			groupsBySlug[mod.Group.Slug] = group
			groups = append(groups, group)
		}

		group.Modules = append(group.Modules, &MenuModule{
			Slug:        mod.Slug,
			Name:        mod.Name,
			Description: mod.Description,
			Icon:        mod.Icon,
			Route:       mod.Route,
			SortOrder:   mod.SortOrder,
			Permissions: &UserModulePermission{
				ModuleSlug: mod.Slug,
				CanCreate:  grant.CanCreate,
				CanRead:    true,
				CanUpdate:  grant.CanUpdate,
				CanDelete:  grant.CanDelete,
				ScopeAll:   grant.ScopeAll,
			},
		})
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].SortOrder < groups[j].SortOrder
	})
	for _, group := range groups {
		modules := group.Modules
		sort.SliceStable(modules, func(i, j int) bool {
			return modules[i].SortOrder < modules[j].SortOrder
		})
	}

	return groups, nil
}

func holdsRole(user *models.User, roleSlug string) bool {
	for _, ur := range user.Roles {
		if ur.RoleSlug == roleSlug && ur.IsActive && ur.Role != nil && ur.Role.IsActive {
			return true
		}
	}
	return false
}
