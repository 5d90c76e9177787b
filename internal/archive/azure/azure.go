// Package azure implements the Azure Blob Storage archive sink. Objects are
// uploaded as block blobs using shared key authentication.
package azure

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/backoffice-platform/backoffice/internal/archive"
	"github.com/backoffice-platform/backoffice/internal/config"
)

func init() {
	// Register Azure archive sink
	archive.Register("azure", func(cfg *config.Config) (archive.Sink, error) {
		return New(&cfg.Archive.Azure)
	})
}

// AzureSink implements the Sink interface for Azure Blob Storage
type AzureSink struct {
	client        *azblob.Client
	containerName string
	prefix        string
}

// New creates a new Azure Blob Storage archive sink
func New(cfg *config.AzureArchiveConfig) (*AzureSink, error) {
	if cfg.AccountName == "" {
		return nil, fmt.Errorf("azure storage account name is required")
	}
	if cfg.AccountKey == "" {
		return nil, fmt.Errorf("azure storage account key is required")
	}
	if cfg.ContainerName == "" {
		return nil, fmt.Errorf("azure storage container name is required")
	}

	credential, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure Blob client: %w", err)
	}

	return &AzureSink{
		client:        client,
		containerName: cfg.ContainerName,
		prefix:        strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Put stores one archive object as a block blob
func (s *AzureSink) Put(ctx context.Context, key string, data []byte) error {
	blobName := key
	if s.prefix != "" {
		blobName = s.prefix + "/" + key
	}

	blobClient := s.client.ServiceClient().NewContainerClient(s.containerName).NewBlockBlobClient(blobName)

	_, err := blobClient.Upload(ctx, streaming.NopCloser(bytes.NewReader(data)), nil)
	if err != nil {
		return fmt.Errorf("failed to upload archive object to Azure Blob: %w", err)
	}
	return nil
}

// Close is a no-op for the Azure sink
func (s *AzureSink) Close() error {
	return nil
}
