package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/backoffice-platform/backoffice/internal/audit"
	"github.com/backoffice-platform/backoffice/internal/auth"
	"github.com/backoffice-platform/backoffice/internal/config"
	"github.com/backoffice-platform/backoffice/internal/db/models"
)

// ---------------------------------------------------------------------------
// Test fixtures
// ---------------------------------------------------------------------------

func defaultAuditConfig() *config.AuditConfig {
	return &config.AuditConfig{
		EnableAccessAudit:  true,
		ExcludedPaths:      []string{"/docs", "GET:/health"},
		IncludedMethods:    []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		ExcludeStatusCodes: []int{404},
	}
}

// capturingLogger returns an AccessLogger whose write path records entries
// synchronously instead of hitting a database.
func capturingLogger(cfg *config.AuditConfig) (*AccessLogger, *[]*models.AuditLog) {
	logger := NewAccessLogger(nil, nil, cfg)
	var entries []*models.AuditLog
	logger.writeFn = func(e *models.AuditLog) {
		entries = append(entries, e)
	}
	return logger, &entries
}

func accessRouter(logger *AccessLogger) *gin.Engine {
	router := gin.New()
	router.Use(logger.Middleware())
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/api/tasks", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.POST("/api/tasks", func(c *gin.Context) { c.Status(http.StatusCreated) })
	router.GET("/quiet", func(c *gin.Context) {
		SkipAudit(c)
		c.Status(http.StatusOK)
	})
	return router
}

func doRequest(router *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// ACCESS row emission
// ---------------------------------------------------------------------------

func TestAccessLog_WritesAccessRow(t *testing.T) {
	logger, entries := capturingLogger(defaultAuditConfig())
	router := accessRouter(logger)

	doRequest(router, "POST", "/api/tasks", map[string]string{"User-Agent": "curl/8.0"})

	if len(*entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(*entries))
	}
	entry := (*entries)[0]
	if entry.Action != models.AuditActionAccess {
		t.Errorf("Action = %s, want ACCESS", entry.Action)
	}
	if entry.EntityType != "Endpoint" {
		t.Errorf("EntityType = %s, want Endpoint", entry.EntityType)
	}
	if entry.EntityID != "/api/tasks" {
		t.Errorf("EntityID = %s, want /api/tasks", entry.EntityID)
	}
	if entry.Changes["method"] != "POST" {
		t.Errorf("changes.method = %v, want POST", entry.Changes["method"])
	}
	if entry.Changes["status_code"] != http.StatusCreated {
		t.Errorf("changes.status_code = %v, want 201", entry.Changes["status_code"])
	}
	if entry.UserID != nil {
		t.Errorf("UserID = %v, want nil for anonymous request", *entry.UserID)
	}
}

func TestAccessLog_DisabledWritesNothing(t *testing.T) {
	cfg := defaultAuditConfig()
	cfg.EnableAccessAudit = false
	logger, entries := capturingLogger(cfg)
	router := accessRouter(logger)

	doRequest(router, "GET", "/api/tasks", nil)

	if len(*entries) != 0 {
		t.Errorf("entries = %d, want 0 when access audit is disabled", len(*entries))
	}
}

// ---------------------------------------------------------------------------
// Exclusion rules
// ---------------------------------------------------------------------------

func TestAccessLog_MethodScopedExclusion(t *testing.T) {
	logger, entries := capturingLogger(defaultAuditConfig())
	router := accessRouter(logger)

	// GET:/health is excluded; a POST to the same prefix is not.
	doRequest(router, "GET", "/health", nil)
	if len(*entries) != 0 {
		t.Fatalf("entries after GET /health = %d, want 0", len(*entries))
	}

	doRequest(router, "POST", "/health", nil)
	if len(*entries) != 1 {
		t.Errorf("entries after POST /health = %d, want 1", len(*entries))
	}
}

func TestAccessLog_PrefixExclusionAllMethods(t *testing.T) {
	logger, entries := capturingLogger(defaultAuditConfig())
	router := accessRouter(logger)

	doRequest(router, "GET", "/docs", nil)
	doRequest(router, "POST", "/docs/openapi", nil)

	if len(*entries) != 0 {
		t.Errorf("entries = %d, want 0 for excluded prefix", len(*entries))
	}
}

func TestAccessLog_SkipAuditFlag(t *testing.T) {
	logger, entries := capturingLogger(defaultAuditConfig())
	router := accessRouter(logger)

	doRequest(router, "GET", "/quiet", nil)

	if len(*entries) != 0 {
		t.Errorf("entries = %d, want 0 for opted-out handler", len(*entries))
	}
}

func TestAccessLog_MethodNotIncluded(t *testing.T) {
	cfg := defaultAuditConfig()
	cfg.IncludedMethods = []string{"POST"}
	logger, entries := capturingLogger(cfg)
	router := accessRouter(logger)

	doRequest(router, "GET", "/api/tasks", nil)
	if len(*entries) != 0 {
		t.Fatalf("entries after GET = %d, want 0", len(*entries))
	}

	doRequest(router, "POST", "/api/tasks", nil)
	if len(*entries) != 1 {
		t.Errorf("entries after POST = %d, want 1", len(*entries))
	}
}

func TestAccessLog_ExcludedStatusCode(t *testing.T) {
	logger, entries := capturingLogger(defaultAuditConfig())
	router := accessRouter(logger)

	doRequest(router, "GET", "/no/such/route", nil)

	if len(*entries) != 0 {
		t.Errorf("entries = %d, want 0 for 404 response", len(*entries))
	}
}

// ---------------------------------------------------------------------------
// Actor attribution
// ---------------------------------------------------------------------------

func TestAccessLog_AttributesBearerActor(t *testing.T) {
	logger, entries := capturingLogger(defaultAuditConfig())
	router := accessRouter(logger)

	// Expired tokens still attribute: the signature is not verified here.
	token, err := auth.GenerateJWT("user-7", "carol", auth.TokenTypeAccess, -time.Minute)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	doRequest(router, "GET", "/api/tasks", map[string]string{"Authorization": "Bearer " + token})

	if len(*entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(*entries))
	}
	entry := (*entries)[0]
	if entry.UserID == nil || *entry.UserID != "user-7" {
		t.Errorf("UserID = %v, want user-7", entry.UserID)
	}
	if entry.Username == nil || *entry.Username != "carol" {
		t.Errorf("Username = %v, want carol", entry.Username)
	}
}

func TestAccessLog_GarbageTokenDegradesToAnonymous(t *testing.T) {
	logger, entries := capturingLogger(defaultAuditConfig())
	router := accessRouter(logger)

	rec := doRequest(router, "GET", "/api/tasks", map[string]string{"Authorization": "Bearer not.a.token"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(*entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(*entries))
	}
	if (*entries)[0].UserID != nil {
		t.Errorf("UserID should be nil for undecodable token")
	}
}

func TestAccessLog_BindsActorEvenWhenDisabled(t *testing.T) {
	cfg := defaultAuditConfig()
	cfg.EnableAccessAudit = false
	logger, _ := capturingLogger(cfg)

	var seen audit.Actor
	router := gin.New()
	router.Use(logger.Middleware())
	router.GET("/probe", func(c *gin.Context) {
		seen = audit.ActorFrom(c.Request.Context())
		c.Status(http.StatusOK)
	})

	token, err := auth.GenerateJWT("user-9", "dave", auth.TokenTypeAccess, time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	doRequest(router, "GET", "/probe", map[string]string{"Authorization": "Bearer " + token})

	if seen.UserID == nil || *seen.UserID != "user-9" {
		t.Errorf("actor UserID = %v, want user-9 (change capture depends on it)", seen.UserID)
	}
}

// ---------------------------------------------------------------------------
// Live rule reload
// ---------------------------------------------------------------------------

func TestAccessLog_UpdateRules(t *testing.T) {
	logger, entries := capturingLogger(defaultAuditConfig())
	router := accessRouter(logger)

	doRequest(router, "GET", "/api/tasks", nil)
	if len(*entries) != 1 {
		t.Fatalf("entries = %d, want 1 before reload", len(*entries))
	}

	updated := defaultAuditConfig()
	updated.ExcludedPaths = append(updated.ExcludedPaths, "/api/tasks")
	logger.UpdateRules(updated)

	doRequest(router, "GET", "/api/tasks", nil)
	if len(*entries) != 1 {
		t.Errorf("entries = %d, want 1 after excluding the path", len(*entries))
	}
}
