// Package models - user.go defines the User model for back-office accounts along
// with the UserRole link rows, the token revocation list, and the login attempt log.
package models

import "time"

// User represents a staff account. Accounts are never hard-deleted; they are
// deactivated via IsActive instead so audit history stays resolvable.
type User struct {
	ID          string
	Username    string
	Email       string
	FirstName   *string
	LastName    *string
	IsVerified  bool
	IsActive    bool
	IsSuperuser bool
	// PasswordHash is the bcrypt hash of the password. Excluded from snapshots.
	PasswordHash string

	// Lockout bookkeeping. FailedLoginAttempts counts consecutive failures;
	// LockedUntil is set once the configured maximum is reached and cleared on
	// the next successful login.
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	// Roles holds the user's role assignments when loaded with the role graph.
	Roles []*UserRole
}

// EntityType implements Snapshotter.
func (u *User) EntityType() string { return "User" }

// EntityID implements Snapshotter.
func (u *User) EntityID() string { return u.ID }

// Snapshot implements Snapshotter. The password hash and lockout counters are
// deliberately absent: the hash is a secret and the counters churn on every
// failed login, which would bury meaningful audit diffs in noise.
func (u *User) Snapshot() map[string]any {
	return map[string]any{
		"id":           u.ID,
		"username":     u.Username,
		"email":        u.Email,
		"first_name":   strOrNil(u.FirstName),
		"last_name":    strOrNil(u.LastName),
		"is_verified":  u.IsVerified,
		"is_active":    u.IsActive,
		"is_superuser": u.IsSuperuser,
	}
}

// UserRole links a user to a role by the role's slug. The link carries its own
// IsActive flag so a grant can be suspended without deleting history.
type UserRole struct {
	ID       string
	UserID   string
	RoleSlug string
	IsActive bool

	CreatedAt time.Time
	UpdatedAt time.Time

	// Role is populated when the role graph is loaded.
	Role *Role
}

// EntityType implements Snapshotter.
func (ur *UserRole) EntityType() string { return "UserRole" }

// EntityID implements Snapshotter.
func (ur *UserRole) EntityID() string { return ur.ID }

// Snapshot implements Snapshotter.
func (ur *UserRole) Snapshot() map[string]any {
	return map[string]any{
		"id":        ur.ID,
		"user_id":   ur.UserID,
		"role_slug": ur.RoleSlug,
		"is_active": ur.IsActive,
	}
}

// RevokedToken is an entry in the token revocation list. Both access and
// refresh tokens land here on logout and refresh rotation.
type RevokedToken struct {
	ID        string
	UserID    string
	Token     string
	RevokedAt time.Time
}

// LoginLog records a single login attempt, successful or not.
type LoginLog struct {
	ID             string
	UserID         *string // nil when the username did not resolve to an account
	Username       string
	Token          *string
	TokenExpiresAt *time.Time
	IPAddress      string
	UserAgent      string
	Successful     bool
	LoggedOutAt    *time.Time
	CreatedAt      time.Time
}

func strOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

