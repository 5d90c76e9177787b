// Package main is the entry point for the backoffice server binary. It
// dispatches subcommands (serve, migrate, archive-audit, version) via a simple
// switch on os.Args so the binary's full CLI surface is readable in one place
// without requiring a cobra dependency. The serve command runs auto-migration
// on startup so freshly deployed containers never need a separate migration
// step.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/backoffice-platform/backoffice/internal/api"
	"github.com/backoffice-platform/backoffice/internal/archive"
	"github.com/backoffice-platform/backoffice/internal/auth"
	"github.com/backoffice-platform/backoffice/internal/config"
	"github.com/backoffice-platform/backoffice/internal/db"
	"github.com/backoffice-platform/backoffice/internal/db/repositories"
	"github.com/backoffice-platform/backoffice/internal/jobs"
	"github.com/backoffice-platform/backoffice/internal/telemetry"

	// Archive sink backends register themselves at init time.
	_ "github.com/backoffice-platform/backoffice/internal/archive/azure"
	_ "github.com/backoffice-platform/backoffice/internal/archive/gcs"
	_ "github.com/backoffice-platform/backoffice/internal/archive/local"
	_ "github.com/backoffice-platform/backoffice/internal/archive/s3"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch command {
	case "serve":
		return serve(cfg, configPath)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	case "archive-audit":
		return archiveAudit(cfg)
	case "version":
		fmt.Printf("Backoffice v%s\n", version)
		return nil
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, archive-audit, version", command)
	}
}

func serve(cfg *config.Config, configPath string) error {
	// Initialise structured logging first so all subsequent output uses the
	// configured format and level.
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Refuse to start in production without a real JWT secret.
	if err := auth.ValidateJWTSecret(); err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()
	slog.Info("Connected to database", "host", cfg.Database.Host, "name", cfg.Database.Name)

	telemetry.StartDBStatsCollector(database.DB)

	slog.Info("Running database migrations")
	if err := db.RunMigrations(database.DB, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	schemaVersion, dirty, err := db.GetMigrationVersion(database.DB)
	if err != nil {
		slog.Warn("Failed to read migration version", "error", err)
	} else {
		slog.Info("Database schema ready", "version", schemaVersion, "dirty", dirty)
	}

	// Prometheus metrics on a dedicated port, off the public ingress path and
	// outside the rate-limiting middleware.
	if cfg.Telemetry.Metrics.Enabled {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("starting Prometheus metrics server", "addr", metricsAddr)
			srv := &http.Server{
				Addr:         metricsAddr,
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	router, bgServices, err := api.NewRouter(cfg, database)
	if err != nil {
		return err
	}

	// Reload the access-audit rules when the config file changes on disk, so
	// path exclusions and method filters apply without a restart.
	watcher, err := config.Watch(configPath, func(next *config.Config) {
		bgServices.AccessLogger.UpdateRules(&next.Audit)
		slog.Info("Access audit rules reloaded")
	})
	if err != nil {
		slog.Warn("Config watch unavailable, audit rule changes need a restart", "error", err)
	} else {
		defer watcher.Close()
	}

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("Starting server", "addr", cfg.Server.GetAddress(), "base_url", cfg.Server.BaseURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// Background jobs stop after the HTTP server so in-flight requests drain
	// first.
	bgServices.Shutdown()

	slog.Info("Server stopped gracefully")
	return nil
}

func runMigrations(cfg *config.Config, direction string) error {
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	log.Printf("Running migrations: %s", direction)

	if err := db.RunMigrations(database.DB, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	schemaVersion, dirty, err := db.GetMigrationVersion(database.DB)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	log.Printf("Migration completed successfully. Current version: %d (dirty: %v)", schemaVersion, dirty)
	return nil
}

// archiveAudit runs one archiver pass and exits. Useful for cron-driven
// deployments that keep the in-process job disabled.
func archiveAudit(cfg *config.Config) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	sink, err := archive.NewSink(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize archive sink: %w", err)
	}

	archiver := jobs.NewAuditArchiver(database, repositories.NewAuditRepository(database), sink,
		cfg.Archive.Backend, cfg.Audit.RetentionDays, 0)

	archived, err := archiver.RunOnce(context.Background())
	if err != nil {
		return fmt.Errorf("archive run failed: %w", err)
	}

	log.Printf("Archived %d audit rows (retention: %d days, backend: %s)",
		archived, cfg.Audit.RetentionDays, cfg.Archive.Backend)
	return nil
}
