// role_repository.go implements RoleRepository, providing queries for roles and
// the menu graph (role grants joined to modules and their presentation groups).
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/backoffice-platform/backoffice/internal/db/models"
)

// RoleRepository handles database operations for roles
type RoleRepository struct {
	db *sqlx.DB
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *sqlx.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// GetBySlug retrieves a role by its slug. Returns nil when not found.
func (r *RoleRepository) GetBySlug(ctx context.Context, slug string) (*models.Role, error) {
	query := `
		SELECT id, slug, name, description, icon, sort_order, is_active, created_at, updated_at
		FROM roles
		WHERE slug = $1
	`

	role := &models.Role{}
	err := r.db.QueryRowContext(ctx, query, slug).Scan(
		&role.ID,
		&role.Slug,
		&role.Name,
		&role.Description,
		&role.Icon,
		&role.SortOrder,
		&role.IsActive,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// GetMenuGraph retrieves a role by slug with its active module grants, the
// referenced active modules, and each module's group. Inactive grants and
// inactive modules never enter a menu, so they are filtered at the query.
// Returns nil when the role does not exist.
func (r *RoleRepository) GetMenuGraph(ctx context.Context, slug string) (*models.Role, error) {
	role, err := r.GetBySlug(ctx, slug)
	if err != nil || role == nil {
		return nil, err
	}

	query := `
		SELECT rm.id, rm.role_slug, rm.module_slug, rm.can_create, rm.can_update,
		       rm.can_delete, rm.scope_all, rm.is_active,
		       m.id, m.slug, m.name, m.description, m.icon, m.route, m.sort_order,
		       m.is_active, m.group_slug,
		       g.id, g.slug, g.name, g.description, g.icon, g.sort_order, g.is_active
		FROM role_modules rm
		JOIN modules m ON rm.module_slug = m.slug
		LEFT JOIN module_groups g ON m.group_slug = g.slug
		WHERE rm.role_slug = $1 AND rm.is_active = TRUE AND m.is_active = TRUE
		ORDER BY m.sort_order, m.slug
	`

	rows, err := r.db.QueryContext(ctx, query, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to load menu graph: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rm := &models.RoleModule{}
		mod := &models.Module{}
		var gID, gSlug, gName, gDescription, gIcon *string
		var gSortOrder *int
		var gIsActive *bool
		err := rows.Scan(
			&rm.ID, &rm.RoleSlug, &rm.ModuleSlug, &rm.CanCreate, &rm.CanUpdate,
			&rm.CanDelete, &rm.ScopeAll, &rm.IsActive,
			&mod.ID, &mod.Slug, &mod.Name, &mod.Description, &mod.Icon, &mod.Route,
			&mod.SortOrder, &mod.IsActive, &mod.GroupSlug,
			&gID, &gSlug, &gName, &gDescription, &gIcon, &gSortOrder, &gIsActive,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan menu row: %w", err)
		}
		if gID != nil {
			mod.Group = &models.ModuleGroup{
				ID:          *gID,
				Slug:        *gSlug,
				Name:        *gName,
				Description: gDescription,
				Icon:        gIcon,
				SortOrder:   *gSortOrder,
				IsActive:    *gIsActive,
			}
		}
		rm.Module = mod
		role.Modules = append(role.Modules, rm)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating menu rows: %w", err)
	}

	return role, nil
}

// ListActive retrieves all active roles ordered by sort order.
func (r *RoleRepository) ListActive(ctx context.Context) ([]*models.Role, error) {
	query := `
		SELECT id, slug, name, description, icon, sort_order, is_active, created_at, updated_at
		FROM roles
		WHERE is_active = TRUE
		ORDER BY sort_order, slug
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*models.Role
	for rows.Next() {
		role := &models.Role{}
		err := rows.Scan(
			&role.ID,
			&role.Slug,
			&role.Name,
			&role.Description,
			&role.Icon,
			&role.SortOrder,
			&role.IsActive,
			&role.CreatedAt,
			&role.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}

	return roles, rows.Err()
}

// SlugExists reports whether an active role with the given slug exists. Used
// to validate slug references before writing user_roles or role_modules rows.
func (r *RoleRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM roles WHERE slug = $1 AND is_active = TRUE)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, slug).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check role slug: %w", err)
	}
	return exists, nil
}
