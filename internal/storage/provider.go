// Package storage selects the artifact store backend. The crawler treats
// certificate images as opaque blobs; which backend holds them (local
// filesystem, Google Cloud Storage, or memory for tests) is a deployment
// choice.
package storage

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"

	"github.com/jaekyeom/splitfeed/internal/storage/gcs"
	"github.com/jaekyeom/splitfeed/internal/storage/local"
	"github.com/jaekyeom/splitfeed/internal/storage/memory"
	"github.com/jaekyeom/splitfeed/internal/tracker"
)

// Supported backends.
const (
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)

// Config names the backend and its parameters.
type Config struct {
	Backend string
	CertDir string
	Bucket  string
	Prefix  string
}

// New constructs the configured artifact store. An empty backend means
// local.
func New(ctx context.Context, cfg Config) (tracker.FileStore, error) {
	switch cfg.Backend {
	case BackendLocal, "":
		return local.New(local.Config{BaseDir: cfg.CertDir})
	case BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		return gcs.New(client, gcs.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
	case BackendMemory:
		return memory.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
