// Package auth - errors.go defines the client-facing error taxonomy shared by
// the permission evaluator, the menu builder, and the login service.
package auth

import (
	"fmt"
	"time"
)

// PermissionDeniedError is returned when a user lacks a role or a permission
// bit. Non-retryable; the detail string is safe to return to the client.
type PermissionDeniedError struct {
	Detail string
}

func (e *PermissionDeniedError) Error() string { return e.Detail }

// NewActiveRoleDenied reports that the user does not hold the requested active
// role. Distinct from holding the role but lacking a specific permission.
func NewActiveRoleDenied(roleSlug string) *PermissionDeniedError {
	return &PermissionDeniedError{
		Detail: fmt.Sprintf("you do not have access to the active role '%s'", roleSlug),
	}
}

// NewActionDenied reports that the user holds no grant carrying the required
// bit for the module.
func NewActionDenied(moduleSlug string, action Action) *PermissionDeniedError {
	return &PermissionDeniedError{
		Detail: fmt.Sprintf("you do not have permission to perform %s on module '%s'", action, moduleSlug),
	}
}

// ErrInvalidCredentials is returned for a bad username or password. The same
// error covers both cases so login responses do not reveal which accounts exist.
var ErrInvalidCredentials = &PermissionDeniedError{Detail: "invalid username or password"}

// NotFoundError is returned when a referenced role or module is absent or
// inactive.
type NotFoundError struct {
	Detail string
}

func (e *NotFoundError) Error() string { return e.Detail }

// AccountLockedError is returned while an account is locked out after repeated
// failed logins. UnlockAt drives the Retry-After hint on the response.
type AccountLockedError struct {
	UnlockAt time.Time
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account is locked until %s", e.UnlockAt.UTC().Format(time.RFC3339))
}

// RetryAfter returns the remaining lockout duration, floored at zero.
func (e *AccountLockedError) RetryAfter() time.Duration {
	remaining := time.Until(e.UnlockAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}
