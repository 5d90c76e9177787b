package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Security.LoginMaxAttempts != 5 {
		t.Errorf("login_max_attempts = %d, want 5", cfg.Security.LoginMaxAttempts)
	}
	if cfg.Security.LockoutMinutes != 15 {
		t.Errorf("lockout_minutes = %d, want 15", cfg.Security.LockoutMinutes)
	}
	if !cfg.Audit.EnableAccessAudit || !cfg.Audit.EnableDataAudit {
		t.Error("audit switches should default to enabled")
	}
	if len(cfg.Audit.ExcludeStatusCodes) != 1 || cfg.Audit.ExcludeStatusCodes[0] != 404 {
		t.Errorf("exclude_status_codes = %v, want [404]", cfg.Audit.ExcludeStatusCodes)
	}
	if cfg.Archive.Backend != "local" {
		t.Errorf("archive.backend = %q, want local", cfg.Archive.Backend)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("APP_SECURITY_LOGIN_MAX_ATTEMPTS", "3")
	t.Setenv("APP_SECURITY_LOCKOUT_MINUTES", "30")
	t.Setenv("APP_AUDIT_ENABLE_DATA_AUDIT", "false")
	t.Setenv("APP_DATABASE_HOST", "db.internal")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Security.LoginMaxAttempts != 3 {
		t.Errorf("login_max_attempts = %d, want 3", cfg.Security.LoginMaxAttempts)
	}
	if cfg.Security.LockoutMinutes != 30 {
		t.Errorf("lockout_minutes = %d, want 30", cfg.Security.LockoutMinutes)
	}
	if cfg.Audit.EnableDataAudit {
		t.Error("enable_data_audit should be overridden to false")
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("database.host = %q, want db.internal", cfg.Database.Host)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9000
audit:
  excluded_paths:
    - "GET:/health"
    - "/metrics"
  retention_days: 30
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("server.port = %d, want 9000", cfg.Server.Port)
	}
	if len(cfg.Audit.ExcludedPaths) != 2 {
		t.Fatalf("excluded_paths = %v, want 2 entries", cfg.Audit.ExcludedPaths)
	}
	if cfg.Audit.RetentionDays != 30 {
		t.Errorf("retention_days = %d, want 30", cfg.Audit.RetentionDays)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		return cfg
	}

	cfg := base()
	cfg.Server.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for port 0")
	}

	cfg = base()
	cfg.Audit.ExcludedPaths = []string{"GET:health"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for relative exclusion path")
	}

	cfg = base()
	cfg.Archive.Backend = "ftp"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unsupported archive backend")
	}

	cfg = base()
	cfg.Audit.Shippers = []AuditShipperConfig{{Enabled: true, Type: "webhook"}}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for webhook shipper without url")
	}
}

func TestGetDSN(t *testing.T) {
	c := DatabaseConfig{Host: "h", Port: 5432, Name: "n", User: "u", Password: "p", SSLMode: "disable"}
	want := "host=h port=5432 dbname=n user=u password=p sslmode=disable"
	if got := c.GetDSN(); got != want {
		t.Errorf("GetDSN() = %q, want %q", got, want)
	}
}

func TestLockoutDuration(t *testing.T) {
	c := SecurityConfig{LockoutMinutes: 15}
	if got := c.LockoutDuration(); got != 15*time.Minute {
		t.Errorf("LockoutDuration() = %v, want 15m", got)
	}
}
