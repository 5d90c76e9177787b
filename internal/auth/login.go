// Package auth - login.go implements the login service: credential checks,
// account lockout after repeated failures, token issuance, refresh rotation,
// and logout with revocation.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/backoffice-platform/backoffice/internal/config"
	"github.com/backoffice-platform/backoffice/internal/db/models"
	"github.com/backoffice-platform/backoffice/internal/db/repositories"
	"github.com/backoffice-platform/backoffice/internal/telemetry"
)

// LoginService authenticates users and manages their tokens.
type LoginService struct {
	users *repositories.UserRepository
	cfg   *config.Config
}

// NewLoginService creates a login service.
func NewLoginService(users *repositories.UserRepository, cfg *config.Config) *LoginService {
	return &LoginService{users: users, cfg: cfg}
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token"`
	TokenType     string    `json:"token_type"`
	AccessExpires time.Time `json:"access_expires_at"`
}

// Login verifies credentials and issues a token pair.
//
// A locked account rejects the attempt before the password is even checked,
// so the right password cannot probe whether the lock has expired early. Each
// failed attempt increments the account's counter; reaching the configured
// maximum locks the account for the lockout window. A successful login resets
// the counter to zero. Every attempt lands in the login log.
func (s *LoginService) Login(ctx context.Context, username, password, ip, userAgent string) (*TokenPair, *models.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if user == nil || !user.IsActive {
		s.logAttempt(ctx, nil, username, ip, userAgent, false, nil, nil)
		telemetry.LoginFailuresTotal.Inc()
		return nil, nil, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if user.LockedUntil != nil && now.Before(*user.LockedUntil) {
		s.logAttempt(ctx, &user.ID, username, ip, userAgent, false, nil, nil)
		return nil, nil, &AccountLockedError{UnlockAt: *user.LockedUntil}
	}

	if !CheckPassword(user.PasswordHash, password) {
		if s.cfg.Security.LoginMaxAttempts > 0 {
			lockUntil := now.Add(s.cfg.Security.LockoutDuration())
			attempts, lockedUntil, err := s.users.RecordFailedLogin(ctx, user.ID, s.cfg.Security.LoginMaxAttempts, lockUntil)
			if err != nil {
				slog.Error("Failed to record failed login", "username", username, "error", err)
			} else if lockedUntil != nil {
				telemetry.AccountLockoutsTotal.Inc()
				slog.Warn("Account locked after repeated failed logins",
					"username", username, "attempts", attempts, "locked_until", *lockedUntil)
			}
		}
		s.logAttempt(ctx, &user.ID, username, ip, userAgent, false, nil, nil)
		telemetry.LoginFailuresTotal.Inc()
		return nil, nil, ErrInvalidCredentials
	}

	if err := s.users.RecordSuccessfulLogin(ctx, user.ID, now); err != nil {
		return nil, nil, fmt.Errorf("failed to record login: %w", err)
	}

	pair, err := s.issueTokens(user)
	if err != nil {
		return nil, nil, err
	}

	s.logAttempt(ctx, &user.ID, username, ip, userAgent, true, &pair.AccessToken, &pair.AccessExpires)
	return pair, user, nil
}

// Refresh exchanges a valid refresh token for a new token pair. The used
// refresh token is revoked so it cannot be replayed.
func (s *LoginService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := ValidateJWT(refreshToken)
	if err != nil {
		return nil, &PermissionDeniedError{Detail: "invalid refresh token"}
	}
	if claims.TokenType != TokenTypeRefresh {
		return nil, &PermissionDeniedError{Detail: "token is not a refresh token"}
	}

	revoked, err := s.users.IsTokenRevoked(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to check token revocation: %w", err)
	}
	if revoked {
		return nil, &PermissionDeniedError{Detail: "refresh token has been revoked"}
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil, &PermissionDeniedError{Detail: "account is not active"}
	}

	if err := s.users.RevokeToken(ctx, user.ID, refreshToken); err != nil {
		return nil, err
	}

	return s.issueTokens(user)
}

// Logout revokes the presented access token and stamps the login log.
func (s *LoginService) Logout(ctx context.Context, userID, accessToken string) error {
	if err := s.users.RevokeToken(ctx, userID, accessToken); err != nil {
		return err
	}
	if err := s.users.MarkLoggedOut(ctx, accessToken, time.Now().UTC()); err != nil {
		slog.Error("Failed to stamp logout on login log", "user_id", userID, "error", err)
	}
	return nil
}

func (s *LoginService) issueTokens(user *models.User) (*TokenPair, error) {
	accessExpiry := s.cfg.Auth.AccessTokenExpiry
	if accessExpiry == 0 {
		accessExpiry = time.Hour
	}
	refreshExpiry := s.cfg.Auth.RefreshTokenExpiry
	if refreshExpiry == 0 {
		refreshExpiry = 7 * 24 * time.Hour
	}

	access, err := GenerateJWT(user.ID, user.Username, TokenTypeAccess, accessExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refresh, err := GenerateJWT(user.ID, user.Username, TokenTypeRefresh, refreshExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:   access,
		RefreshToken:  refresh,
		TokenType:     "bearer",
		AccessExpires: time.Now().Add(accessExpiry).UTC(),
	}, nil
}

// logAttempt records a login attempt. Bookkeeping only; failures are logged
// and swallowed so they cannot interfere with the login outcome.
func (s *LoginService) logAttempt(ctx context.Context, userID *string, username, ip, userAgent string, successful bool, token *string, expiresAt *time.Time) {
	entry := &models.LoginLog{
		UserID:         userID,
		Username:       username,
		Token:          token,
		TokenExpiresAt: expiresAt,
		IPAddress:      ip,
		UserAgent:      userAgent,
		Successful:     successful,
	}
	if err := s.users.CreateLoginLog(ctx, entry); err != nil {
		slog.Error("Failed to write login log", "username", username, "error", err)
	}
}
