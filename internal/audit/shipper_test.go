package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/backoffice-platform/backoffice/internal/config"
	"github.com/backoffice-platform/backoffice/internal/db/models"
)

func accessEntry() *models.AuditLog {
	username := "alice"
	return &models.AuditLog{
		ID:         "audit-1",
		Username:   &username,
		Action:     models.AuditActionAccess,
		EntityType: "Endpoint",
		EntityID:   "/api/tasks",
		Changes:    map[string]any{"method": "GET", "status_code": 200},
		Timestamp:  time.Now().UTC(),
	}
}

func TestFileShipper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	shipper, err := NewFileShipper(&config.AuditFileConfig{Path: path})
	if err != nil {
		t.Fatalf("NewFileShipper: %v", err)
	}
	defer shipper.Close()

	if err := shipper.Ship(context.Background(), accessEntry()); err != nil {
		t.Fatalf("Ship: %v", err)
	}
	if err := shipper.Ship(context.Background(), accessEntry()); err != nil {
		t.Fatalf("Ship: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var decoded map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("line %d is not JSON: %v", lines+1, err)
		}
		lines++
	}
	if lines != 2 {
		t.Errorf("lines = %d, want 2", lines)
	}
}

func TestWebhookShipper(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	shipper, err := NewWebhookShipper(&config.AuditWebhookConfig{
		URL:     server.URL,
		Headers: map[string]string{"Authorization": "Bearer shhh"},
	})
	if err != nil {
		t.Fatalf("NewWebhookShipper: %v", err)
	}
	defer shipper.Close()

	if err := shipper.Ship(context.Background(), accessEntry()); err != nil {
		t.Fatalf("Ship: %v", err)
	}
	if gotAuth != "Bearer shhh" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody["action"] != models.AuditActionAccess {
		t.Errorf("body action = %v", gotBody["action"])
	}
}

func TestWebhookShipper_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	shipper, err := NewWebhookShipper(&config.AuditWebhookConfig{URL: server.URL})
	if err != nil {
		t.Fatalf("NewWebhookShipper: %v", err)
	}
	if err := shipper.Ship(context.Background(), accessEntry()); err == nil {
		t.Error("expected error for 5xx response")
	}
}

func TestMultiShipper_SkipsDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	ms, err := NewMultiShipper([]config.AuditShipperConfig{
		{Enabled: false, Type: "webhook"},
		{Enabled: true, Type: "file", File: &config.AuditFileConfig{Path: path}},
	})
	if err != nil {
		t.Fatalf("NewMultiShipper: %v", err)
	}
	defer ms.Close()

	if err := ms.Ship(context.Background(), accessEntry()); err != nil {
		t.Fatalf("Ship: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected file output")
	}
}

func TestMultiShipper_UnknownType(t *testing.T) {
	_, err := NewMultiShipper([]config.AuditShipperConfig{
		{Enabled: true, Type: "carrier-pigeon"},
	})
	if err == nil {
		t.Error("expected error for unknown shipper type")
	}
}
