// accesslog.go provides the access-audit middleware. It binds the request
// actor into the audit context for the change-capture hook and, after the
// response is produced, writes an ACCESS audit row in its own transaction.
package middleware

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/backoffice-platform/backoffice/internal/audit"
	"github.com/backoffice-platform/backoffice/internal/auth"
	"github.com/backoffice-platform/backoffice/internal/config"
	"github.com/backoffice-platform/backoffice/internal/db/models"
	"github.com/backoffice-platform/backoffice/internal/db/repositories"
	"github.com/backoffice-platform/backoffice/internal/safego"
	"github.com/backoffice-platform/backoffice/internal/telemetry"
)

// SkipAuditContextKey marks the in-flight request as exempt from access
// auditing. Handlers set it via SkipAudit for endpoints like health checks.
const SkipAuditContextKey = "skip_audit"

// SkipAudit marks the current request so no ACCESS row is written for it.
func SkipAudit(c *gin.Context) {
	c.Set(SkipAuditContextKey, true)
}

// pathRule is one parsed exclusion entry: "/prefix" or "METHOD:/prefix".
type pathRule struct {
	method string // empty matches all methods
	prefix string
}

func (r pathRule) matches(method, path string) bool {
	if r.method != "" && r.method != method {
		return false
	}
	return strings.HasPrefix(path, r.prefix)
}

// accessRules is one immutable snapshot of the audit decision configuration.
type accessRules struct {
	enabled         bool
	excluded        []pathRule
	includedMethods map[string]bool // empty means all methods
	excludedStatus  map[int]bool
}

func compileRules(cfg *config.AuditConfig) accessRules {
	rules := accessRules{
		enabled:         cfg.EnableAccessAudit,
		includedMethods: make(map[string]bool, len(cfg.IncludedMethods)),
		excludedStatus:  make(map[int]bool, len(cfg.ExcludeStatusCodes)),
	}
	for _, entry := range cfg.ExcludedPaths {
		rule := pathRule{prefix: entry}
		if i := strings.Index(entry, ":"); i >= 0 && !strings.HasPrefix(entry, "/") {
			rule.method = strings.ToUpper(entry[:i])
			rule.prefix = entry[i+1:]
		}
		rules.excluded = append(rules.excluded, rule)
	}
	for _, m := range cfg.IncludedMethods {
		rules.includedMethods[strings.ToUpper(m)] = true
	}
	for _, code := range cfg.ExcludeStatusCodes {
		rules.excludedStatus[code] = true
	}
	return rules
}

// AccessLogger decides per request whether to record an ACCESS audit row and
// writes it decoupled from the response. Rules can be swapped at runtime by
// the config watcher via UpdateRules.
type AccessLogger struct {
	audits  *repositories.AuditRepository
	shipper audit.Shipper // optional

	// writeFn is swapped out in tests to capture entries synchronously.
	writeFn func(*models.AuditLog)

	mu    sync.RWMutex
	rules accessRules
}

// NewAccessLogger creates an access logger with rules compiled from cfg.
// shipper may be nil.
func NewAccessLogger(audits *repositories.AuditRepository, shipper audit.Shipper, cfg *config.AuditConfig) *AccessLogger {
	l := &AccessLogger{
		audits:  audits,
		shipper: shipper,
		rules:   compileRules(cfg),
	}
	l.writeFn = l.write
	return l
}

// UpdateRules replaces the decision rules. In-flight requests keep the
// snapshot they started with.
func (l *AccessLogger) UpdateRules(cfg *config.AuditConfig) {
	rules := compileRules(cfg)
	l.mu.Lock()
	l.rules = rules
	l.mu.Unlock()
}

func (l *AccessLogger) snapshot() accessRules {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rules
}

// Middleware returns the gin handler. It always binds the actor into the
// request context (the change-capture hook reads it even when access auditing
// is off), then applies the decision pipeline for the ACCESS row itself.
func (l *AccessLogger) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := extractActor(c)
		c.Request = c.Request.WithContext(audit.WithActor(c.Request.Context(), actor))

		rules := l.snapshot()
		method := c.Request.Method
		path := c.Request.URL.Path

		if !rules.enabled || excludedPath(rules, method, path) {
			c.Next()
			return
		}

		c.Next()

		if c.GetBool(SkipAuditContextKey) {
			return
		}
		if len(rules.includedMethods) > 0 && !rules.includedMethods[method] {
			return
		}
		status := c.Writer.Status()
		if rules.excludedStatus[status] {
			return
		}

		entry := &models.AuditLog{
			UserID:    actor.UserID,
			Username:  actor.Username,
			Action:    models.AuditActionAccess,
			EntityType: "Endpoint",
			EntityID:  path,
			Changes: map[string]any{
				"method":      method,
				"status_code": status,
			},
			IPAddress: strPtr(actor.IPAddress),
			UserAgent: strPtr(actor.UserAgent),
		}

		// Written outside the request lifecycle: an audit outage must never
		// turn into a user-visible failure here.
		l.writeFn(entry)
	}
}

func (l *AccessLogger) write(entry *models.AuditLog) {
	safego.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := l.audits.Insert(ctx, entry); err != nil {
			telemetry.AuditWriteFailuresTotal.WithLabelValues("access").Inc()
			slog.Error("failed to write access audit row", "path", entry.EntityID, "error", err)
		} else {
			telemetry.AuditRecordsTotal.WithLabelValues(models.AuditActionAccess).Inc()
		}

		if l.shipper != nil {
			if err := l.shipper.Ship(ctx, entry); err != nil {
				slog.Error("failed to ship access audit record", "path", entry.EntityID, "error", err)
			}
		}
	})
}

func excludedPath(rules accessRules, method, path string) bool {
	for _, rule := range rules.excluded {
		if rule.matches(method, path) {
			return true
		}
	}
	return false
}

// extractActor attributes the request without verifying the token signature.
// Verification happens later in the auth middleware; for attribution a forged
// token only mislabels its own audit row, and anonymous is the safe fallback.
func extractActor(c *gin.Context) audit.Actor {
	actor := audit.Actor{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}

	if token, ok := bearerTokenFrom(c); ok {
		if claims, err := auth.DecodeJWTUnverified(token); err == nil {
			userID := claims.UserID
			username := claims.Username
			actor.UserID = &userID
			actor.Username = &username
		}
	}
	return actor
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
