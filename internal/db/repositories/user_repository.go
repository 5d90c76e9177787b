// user_repository.go implements UserRepository, providing database queries for
// staff accounts, their role grant graph, the login attempt log, and the token
// revocation list.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/backoffice-platform/backoffice/internal/db/models"
)

// UserRepository handles database operations for users
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, email, first_name, last_name, is_verified, is_active,
	       is_superuser, password_hash, failed_login_attempts, locked_until, last_login_at,
	       created_at, updated_at`

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.IsVerified,
		&user.IsActive,
		&user.IsSuperuser,
		&user.PasswordHash,
		&user.FailedLoginAttempts,
		&user.LockedUntil,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return user, nil
}

// GetByUsername retrieves a user by username together with the full role grant
// graph (roles, module grants, modules). Returns nil when no account matches.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE username = $1`, userColumns)

	user, err := scanUser(r.db.QueryRowContext(ctx, query, username))
	if err != nil || user == nil {
		return nil, err
	}

	if err := r.loadRoleGraph(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetByID retrieves a user by id together with the full role grant graph.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil || user == nil {
		return nil, err
	}

	if err := r.loadRoleGraph(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// loadRoleGraph populates user.Roles with role assignments, the referenced
// roles, and each role's module grants. Inactive assignment rows are loaded
// too: the permission evaluator decides what counts, not the query.
func (r *UserRepository) loadRoleGraph(ctx context.Context, user *models.User) error {
	query := `
		SELECT ur.id, ur.user_id, ur.role_slug, ur.is_active,
		       r.id, r.slug, r.name, r.description, r.icon, r.sort_order, r.is_active
		FROM user_roles ur
		JOIN roles r ON ur.role_slug = r.slug
		WHERE ur.user_id = $1
		ORDER BY r.sort_order, r.slug
	`

	rows, err := r.db.QueryContext(ctx, query, user.ID)
	if err != nil {
		return fmt.Errorf("failed to load user roles: %w", err)
	}
	defer rows.Close()

	rolesBySlug := make(map[string]*models.Role)
	for rows.Next() {
		ur := &models.UserRole{}
		role := &models.Role{}
		err := rows.Scan(
			&ur.ID, &ur.UserID, &ur.RoleSlug, &ur.IsActive,
			&role.ID, &role.Slug, &role.Name, &role.Description, &role.Icon,
			&role.SortOrder, &role.IsActive,
		)
		if err != nil {
			return fmt.Errorf("failed to scan user role: %w", err)
		}
		ur.Role = role
		rolesBySlug[role.Slug] = role
		user.Roles = append(user.Roles, ur)
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("error iterating user roles: %w", err)
	}

	if len(rolesBySlug) == 0 {
		return nil
	}

	slugs := make([]string, 0, len(rolesBySlug))
	for slug := range rolesBySlug {
		slugs = append(slugs, slug)
	}

	grantQuery := `
		SELECT rm.id, rm.role_slug, rm.module_slug, rm.can_create, rm.can_update,
		       rm.can_delete, rm.scope_all, rm.is_active,
		       m.id, m.slug, m.name, m.description, m.icon, m.route, m.sort_order,
		       m.is_active, m.group_slug
		FROM role_modules rm
		JOIN modules m ON rm.module_slug = m.slug
		WHERE rm.role_slug = ANY($1)
		ORDER BY m.sort_order, m.slug
	`

	grantRows, err := r.db.QueryContext(ctx, grantQuery, pq.Array(slugs))
	if err != nil {
		return fmt.Errorf("failed to load role grants: %w", err)
	}
	defer grantRows.Close()

	for grantRows.Next() {
		rm := &models.RoleModule{}
		mod := &models.Module{}
		err := grantRows.Scan(
			&rm.ID, &rm.RoleSlug, &rm.ModuleSlug, &rm.CanCreate, &rm.CanUpdate,
			&rm.CanDelete, &rm.ScopeAll, &rm.IsActive,
			&mod.ID, &mod.Slug, &mod.Name, &mod.Description, &mod.Icon, &mod.Route,
			&mod.SortOrder, &mod.IsActive, &mod.GroupSlug,
		)
		if err != nil {
			return fmt.Errorf("failed to scan role grant: %w", err)
		}
		rm.Module = mod
		if role, ok := rolesBySlug[rm.RoleSlug]; ok {
			role.Modules = append(role.Modules, rm)
		}
	}
	if err = grantRows.Err(); err != nil {
		return fmt.Errorf("error iterating role grants: %w", err)
	}

	return nil
}

// RecordFailedLogin increments the consecutive failure counter and, once the
// counter reaches maxAttempts, sets locked_until. Returns the new counter
// value and the lock expiry (nil while still unlocked).
func (r *UserRepository) RecordFailedLogin(ctx context.Context, userID string, maxAttempts int, lockUntil time.Time) (int, *time.Time, error) {
	query := `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE
		        WHEN failed_login_attempts + 1 >= $2 THEN $3
		        ELSE locked_until
		    END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING failed_login_attempts, locked_until
	`

	var attempts int
	var lockedUntil *time.Time
	err := r.db.QueryRowContext(ctx, query, userID, maxAttempts, lockUntil).Scan(&attempts, &lockedUntil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to record failed login: %w", err)
	}
	return attempts, lockedUntil, nil
}

// RecordSuccessfulLogin clears the failure counter and lock, and stamps
// last_login_at.
func (r *UserRepository) RecordSuccessfulLogin(ctx context.Context, userID string, at time.Time) error {
	query := `
		UPDATE users
		SET failed_login_attempts = 0, locked_until = NULL, last_login_at = $2, updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, userID, at); err != nil {
		return fmt.Errorf("failed to record successful login: %w", err)
	}
	return nil
}

// IsTokenRevoked checks whether a token is on the revocation list.
func (r *UserRepository) IsTokenRevoked(ctx context.Context, token string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM user_revoked_tokens WHERE token = $1)`

	var revoked bool
	if err := r.db.QueryRowContext(ctx, query, token).Scan(&revoked); err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return revoked, nil
}

// RevokeToken adds a token to the revocation list. Revoking an already revoked
// token is a no-op.
func (r *UserRepository) RevokeToken(ctx context.Context, userID, token string) error {
	query := `
		INSERT INTO user_revoked_tokens (id, user_id, token)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO NOTHING
	`

	if _, err := r.db.ExecContext(ctx, query, uuid.New().String(), userID, token); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// CreateLoginLog inserts a login attempt record.
func (r *UserRepository) CreateLoginLog(ctx context.Context, entry *models.LoginLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	query := `
		INSERT INTO user_login_logs
		  (id, user_id, username, token, token_expires_at, ip_address, user_agent, successful)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		entry.ID,
		entry.UserID,
		entry.Username,
		entry.Token,
		entry.TokenExpiresAt,
		entry.IPAddress,
		entry.UserAgent,
		entry.Successful,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create login log: %w", err)
	}
	return nil
}

// MarkLoggedOut stamps logged_out_at on the login log row that issued the
// given token. Missing rows are ignored; logout must not fail on bookkeeping.
func (r *UserRepository) MarkLoggedOut(ctx context.Context, token string, at time.Time) error {
	query := `
		UPDATE user_login_logs
		SET logged_out_at = $2
		WHERE token = $1 AND logged_out_at IS NULL
	`

	if _, err := r.db.ExecContext(ctx, query, token, at); err != nil {
		return fmt.Errorf("failed to mark login log as logged out: %w", err)
	}
	return nil
}
