// Package api wires the HTTP surface: middleware chain, route registration,
// and the background services that live for the life of the process.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/backoffice-platform/backoffice/internal/api/auditapi"
	"github.com/backoffice-platform/backoffice/internal/api/authapi"
	"github.com/backoffice-platform/backoffice/internal/api/tasksapi"
	"github.com/backoffice-platform/backoffice/internal/archive"
	"github.com/backoffice-platform/backoffice/internal/audit"
	"github.com/backoffice-platform/backoffice/internal/auth"
	"github.com/backoffice-platform/backoffice/internal/config"
	"github.com/backoffice-platform/backoffice/internal/db"
	"github.com/backoffice-platform/backoffice/internal/db/repositories"
	"github.com/backoffice-platform/backoffice/internal/jobs"
	"github.com/backoffice-platform/backoffice/internal/middleware"
)

// Login attempts get a much tighter budget than the general API limit so
// credential stuffing burns out quickly.
const (
	loginRequestsPerMinute = 10
	loginBurst             = 5
)

// BackgroundServices holds references to background jobs and resources that
// must be stopped during graceful shutdown. The caller (cmd/server) calls
// Shutdown() after the HTTP server has drained in-flight requests.
type BackgroundServices struct {
	archiver *jobs.AuditArchiver
	shipper  *audit.MultiShipper
	limiters []middleware.Limiter

	// AccessLogger is exposed so cmd/server can hook config reloads into
	// UpdateRules.
	AccessLogger *middleware.AccessLogger
}

// Shutdown stops all background goroutines and releases shared resources.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.archiver != nil {
		bg.archiver.Stop()
	}
	for _, l := range bg.limiters {
		l.Stop()
	}
	if bg.shipper != nil {
		if err := bg.shipper.Close(); err != nil {
			slog.Error("Failed to close audit shippers", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router and starts the background
// services it depends on.
func NewRouter(cfg *config.Config, database *sqlx.DB) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()
	bg := &BackgroundServices{}

	// Repositories
	userRepo := repositories.NewUserRepository(database)
	roleRepo := repositories.NewRoleRepository(database)
	taskRepo := repositories.NewTaskRepository(database)
	auditRepo := repositories.NewAuditRepository(database)

	// Unit of work factory. The change-capture hook is only registered when
	// data auditing is on; with it off, writes commit without audit rows.
	uowFactory := db.NewUnitOfWorkFactory(database)
	if cfg.Audit.EnableDataAudit {
		audit.NewRecorder(auditRepo).Register(uowFactory)
	}

	shipper, err := audit.NewMultiShipper(cfg.Audit.Shippers)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize audit shippers: %w", err)
	}
	bg.shipper = shipper

	accessLogger := middleware.NewAccessLogger(auditRepo, shipper, &cfg.Audit)
	bg.AccessLogger = accessLogger

	loginService := auth.NewLoginService(userRepo, cfg)

	// Audit archiver, when an interval is configured.
	if cfg.Audit.ArchiveIntervalHours > 0 {
		sink, err := archive.NewSink(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize archive sink: %w", err)
		}
		archiver := jobs.NewAuditArchiver(database, auditRepo, sink, cfg.Archive.Backend,
			cfg.Audit.RetentionDays, cfg.Audit.ArchiveIntervalHours)
		go archiver.Start(context.Background())
		bg.archiver = archiver
		slog.Info("Audit archiver started",
			"interval_hours", cfg.Audit.ArchiveIntervalHours,
			"retention_days", cfg.Audit.RetentionDays,
			"backend", cfg.Archive.Backend)
	}

	// Middleware chain. Security headers first so they cover every response
	// including errors; the access logger runs last so it observes the final
	// status and the actor of unauthenticated requests.
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))

	if cfg.Security.RateLimiting.Enabled {
		limiter := middleware.NewLimiter(&cfg.Security.RateLimiting)
		bg.limiters = append(bg.limiters, limiter)
		router.Use(middleware.RateLimitMiddleware(limiter, cfg.Security.RateLimiting.RequestsPerMinute))
	}

	router.Use(accessLogger.Middleware())

	// System endpoints
	router.GET("/health", healthCheckHandler(database))
	router.GET("/version", versionHandler())

	// Handlers
	authHandlers := authapi.NewAuthHandlers(loginService, roleRepo)
	taskHandlers := tasksapi.NewTaskHandlers(taskRepo, uowFactory)
	auditHandlers := auditapi.NewAuditHandlers(auditRepo)

	requireAuth := middleware.AuthMiddleware(userRepo)

	api := router.Group("/api")
	{
		authGroup := api.Group("/auth")
		{
			login := authGroup.Group("")
			if cfg.Security.RateLimiting.Enabled {
				loginLimiter := middleware.NewLimiter(&config.RateLimitingConfig{
					RequestsPerMinute: loginRequestsPerMinute,
					Burst:             loginBurst,
					RedisAddr:         cfg.Security.RateLimiting.RedisAddr,
					RedisPassword:     cfg.Security.RateLimiting.RedisPassword,
					RedisDB:           cfg.Security.RateLimiting.RedisDB,
				})
				bg.limiters = append(bg.limiters, loginLimiter)
				login.Use(middleware.RateLimitMiddleware(loginLimiter, loginRequestsPerMinute))
			}
			login.POST("/login", authHandlers.Login)
			login.POST("/refresh", authHandlers.Refresh)

			authGroup.POST("/logout", requireAuth, authHandlers.Logout)
			authGroup.GET("/roles", requireAuth, authHandlers.ListRoles)
			authGroup.GET("/roles/:slug/menu", requireAuth, authHandlers.RoleMenu)
		}

		tasks := api.Group("/tasks", requireAuth)
		{
			tasks.GET("", taskHandlers.List)
			tasks.POST("", taskHandlers.Create)
			tasks.GET("/:id", taskHandlers.Get)
			tasks.PUT("/:id", taskHandlers.Update)
			tasks.DELETE("/:id", taskHandlers.Delete)
		}

		api.GET("/audit", requireAuth, auditHandlers.List)
	}

	return router, bg, nil
}

// healthCheckHandler returns the health status of the service. Health probes
// never land in the audit trail.
func healthCheckHandler(database *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		middleware.SkipAudit(c)

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := database.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured request logging through slog.
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		requestID, _ := c.Get(middleware.RequestIDKey)
		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", latency),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", fmt.Sprintf("%v", requestID)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Active-Role")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
