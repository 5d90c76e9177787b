// Package local implements the local filesystem archive sink. Objects land
// under a configurable base path; intermediate directories are created as
// needed. Intended for single-node deployments and development.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/backoffice-platform/backoffice/internal/archive"
	"github.com/backoffice-platform/backoffice/internal/config"
)

func init() {
	// Register local archive sink
	archive.Register("local", func(cfg *config.Config) (archive.Sink, error) {
		return New(&cfg.Archive.Local)
	})
}

// LocalSink implements the Sink interface on the local filesystem
type LocalSink struct {
	basePath string
}

// New creates a new local filesystem archive sink
func New(cfg *config.LocalArchiveConfig) (*LocalSink, error) {
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("archive base path is required")
	}
	if err := os.MkdirAll(cfg.BasePath, 0750); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &LocalSink{basePath: cfg.BasePath}, nil
}

// Put stores one archive object as a file under the base path
func (s *LocalSink) Put(ctx context.Context, key string, data []byte) error {
	// Keys are archiver-generated but reject traversal anyway.
	cleaned := filepath.Clean(key)
	if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return fmt.Errorf("invalid archive key: %s", key)
	}

	fullPath := filepath.Join(s.basePath, cleaned)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0750); err != nil {
		return fmt.Errorf("failed to create archive subdirectory: %w", err)
	}

	tmp := fullPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0640); err != nil {
		return fmt.Errorf("failed to write archive object: %w", err)
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize archive object: %w", err)
	}
	return nil
}

// Close is a no-op for the local sink
func (s *LocalSink) Close() error {
	return nil
}
