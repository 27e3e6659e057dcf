package engine

import (
	"context"

	"github.com/awsmug/torro-forms-sub006/internal/blob"
	"github.com/awsmug/torro-forms-sub006/internal/store"
	"github.com/awsmug/torro-forms-sub006/pkg/formdomain"
)

// OpenStore opens the submission store the config selects. Hosts call this
// once at startup and hand the result to New.
func OpenStore(ctx context.Context, cfg Config) (formdomain.Store, error) {
	return store.Open(ctx, store.Driver(cfg.StorageDriver), store.Options{
		SQLitePath:  cfg.SQLitePath,
		PostgresDSN: cfg.PostgresDSN,
	})
}

// OpenBlobStore opens the export artifact backend the config selects.
func OpenBlobStore(ctx context.Context, cfg Config) (blob.Store, error) {
	return blob.Open(ctx, blob.Driver(cfg.BlobDriver), blob.OpenOptions{
		FSRoot: cfg.BlobFSRoot,
		S3: blob.S3Config{
			Region:   cfg.BlobS3Region,
			Bucket:   cfg.BlobS3Bucket,
			Endpoint: cfg.BlobS3Endpoint,
		},
	})
}
