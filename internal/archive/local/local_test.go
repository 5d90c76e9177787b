package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/backoffice-platform/backoffice/internal/config"
)

func TestPutWritesObject(t *testing.T) {
	dir := t.TempDir()
	sink, err := New(&config.LocalArchiveConfig{BasePath: dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sink.Close()

	if err := sink.Put(context.Background(), "2026/08/audit-001.jsonl.gz", []byte("payload")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "2026", "08", "audit-001.jsonl.gz"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("data = %q", data)
	}
}

func TestPutRejectsTraversal(t *testing.T) {
	sink, err := New(&config.LocalArchiveConfig{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sink.Close()

	if err := sink.Put(context.Background(), "../escape", []byte("x")); err == nil {
		t.Error("expected error for traversal key")
	}
}

func TestNewRequiresBasePath(t *testing.T) {
	if _, err := New(&config.LocalArchiveConfig{}); err == nil {
		t.Error("expected error for empty base path")
	}
}
