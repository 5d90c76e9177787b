// Package gcs implements the Google Cloud Storage archive sink. Supports
// Application Default Credentials and service account JSON key files.
package gcs

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/backoffice-platform/backoffice/internal/archive"
	appconfig "github.com/backoffice-platform/backoffice/internal/config"
)

func init() {
	// Register GCS archive sink
	archive.Register("gcs", func(cfg *appconfig.Config) (archive.Sink, error) {
		return New(&cfg.Archive.GCS)
	})
}

// GCSSink implements the Sink interface for Google Cloud Storage
type GCSSink struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a new Google Cloud Storage archive sink
func New(cfg *appconfig.GCSArchiveConfig) (*GCSSink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket name is required")
	}

	ctx := context.Background()
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSSink{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Put stores one archive object in the bucket
func (s *GCSSink) Put(ctx context.Context, key string, data []byte) error {
	objectName := key
	if s.prefix != "" {
		objectName = s.prefix + "/" + key
	}

	writer := s.client.Bucket(s.bucket).Object(objectName).NewWriter(ctx)
	writer.ContentType = "application/gzip"

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write archive object to GCS: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

// Close closes the GCS client
func (s *GCSSink) Close() error {
	return s.client.Close()
}
