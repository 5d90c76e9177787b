// Package archive defines the Sink interface and registry for audit cold
// storage. The archiver exports expired audit rows as compressed JSONL
// objects; a sink only has to store a named blob.
//
// New sinks are added by implementing the Sink interface and registering with
// the factory via an init() function in the sink's own package:
//
//	func init() {
//	    archive.Register("mysink", func(cfg *config.Config) (archive.Sink, error) {
//	        return NewMySink(cfg)
//	    })
//	}
//
// The main package imports each sink with a blank import to trigger init(),
// so adding a sink requires no changes to the factory or main package.
package archive

import (
	"context"
	"fmt"

	"github.com/backoffice-platform/backoffice/internal/config"
)

// Sink stores archive objects in cold storage.
type Sink interface {
	// Put stores one archive object under the given key
	Put(ctx context.Context, key string, data []byte) error

	// Close cleans up any resources
	Close() error
}

// Factory function type for creating archive sinks
type FactoryFunc func(*config.Config) (Sink, error)

var factories = make(map[string]FactoryFunc)

// Register registers an archive sink factory
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// NewSink creates an archive sink based on configuration
func NewSink(cfg *config.Config) (Sink, error) {
	factory, ok := factories[cfg.Archive.Backend]
	if !ok {
		return nil, fmt.Errorf("unsupported archive backend: %s (must be 'local', 'azure', 's3', or 'gcs')", cfg.Archive.Backend)
	}

	return factory(cfg)
}
