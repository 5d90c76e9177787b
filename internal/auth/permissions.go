// Package auth - permissions.go implements the RBAC permission evaluator: a
// pure function over the user's role grant graph, with a superuser
// short-circuit, an optional single-role personification mode, and OR
// aggregation across roles and duplicate grants in legacy mode.
package auth

import (
	"github.com/backoffice-platform/backoffice/internal/db/models"
)

// Action is a permission action requested against a module.
type Action string

// Actions understood by the evaluator. READ is never stored on grants; it is
// derived from module access.
const (
	ActionCreate Action = "CREATE"
	ActionRead   Action = "READ"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// UserModulePermission is the evaluator's output: the aggregated permission
// bits one user holds on one module. Transient, recomputed per request, never
// persisted.
type UserModulePermission struct {
	ModuleSlug string `json:"module_slug"`
	CanCreate  bool   `json:"can_create"`
	CanRead    bool   `json:"can_read"`
	CanUpdate  bool   `json:"can_update"`
	CanDelete  bool   `json:"can_delete"`
	// ScopeAll widens list visibility from own records to all records.
	ScopeAll bool `json:"scope_all"`
}

// Allows reports whether the aggregated bits permit the action.
func (p *UserModulePermission) Allows(action Action) bool {
	switch action {
	case ActionCreate:
		return p.CanCreate
	case ActionRead:
		return p.CanRead
	case ActionUpdate:
		return p.CanUpdate
	case ActionDelete:
		return p.CanDelete
	default:
		return false
	}
}

// Evaluate computes the permission the user holds on the module and checks it
// against the required action. The user must be loaded with the role grant
// graph.
//
// When activeRole is non-empty ("personification mode") exactly that role
// participates; the user must hold it via an active assignment and the role
// itself must be active, otherwise the evaluation fails regardless of the
// requested action. When activeRole is empty ("aggregate mode") every active
// assignment to an active role participates and bits are ORed together; there
// is no precedence among roles, any one grant suffices.
func Evaluate(user *models.User, moduleSlug string, action Action, activeRole string) (*UserModulePermission, error) {
	if user.IsSuperuser {
		return &UserModulePermission{
			ModuleSlug: moduleSlug,
			CanCreate:  true,
			CanRead:    true,
			CanUpdate:  true,
			CanDelete:  true,
			ScopeAll:   true,
		}, nil
	}

	roles, err := selectRoles(user, activeRole)
	if err != nil {
		return nil, err
	}

	perm := aggregate(roles, moduleSlug)
	if !perm.Allows(action) {
		return nil, NewActionDenied(moduleSlug, action)
	}
	return perm, nil
}

// selectRoles picks the roles participating in aggregation. Inactive
// assignments and inactive roles never participate.
func selectRoles(user *models.User, activeRole string) ([]*models.Role, error) {
	var roles []*models.Role
	for _, ur := range user.Roles {
		if !ur.IsActive || ur.Role == nil || !ur.Role.IsActive {
			continue
		}
		if activeRole != "" && ur.RoleSlug != activeRole {
			continue
		}
		roles = append(roles, ur.Role)
	}
	if activeRole != "" && len(roles) == 0 {
		return nil, NewActiveRoleDenied(activeRole)
	}
	return roles, nil
}

// aggregate ORs the grant bits of every active grant the roles carry for the
// module. Grants on inactive modules contribute nothing even when the grant
// row itself is active. READ is derived: any surviving grant implies it.
func aggregate(roles []*models.Role, moduleSlug string) *UserModulePermission {
	perm := &UserModulePermission{ModuleSlug: moduleSlug}
	for _, role := range roles {
		for _, grant := range role.Modules {
			if grant.ModuleSlug != moduleSlug || !grant.IsActive {
				continue
			}
			if grant.Module == nil || !grant.Module.IsActive {
				continue
			}
			perm.CanCreate = perm.CanCreate || grant.CanCreate
			perm.CanUpdate = perm.CanUpdate || grant.CanUpdate
			perm.CanDelete = perm.CanDelete || grant.CanDelete
			perm.ScopeAll = perm.ScopeAll || grant.ScopeAll
			perm.CanRead = true
		}
	}
	return perm
}
