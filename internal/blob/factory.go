package blob

import (
	"context"
	"fmt"
)

// OpenOptions carries the driver-specific parameters for Open.
type OpenOptions struct {
	// FSRoot is the artifact directory for the filesystem driver.
	FSRoot string
	// S3 configures the s3 driver.
	S3 S3Config
}

// Open constructs the blob store selected by driver. An empty driver falls
// back to the filesystem store.
func Open(ctx context.Context, driver Driver, opts OpenOptions) (Store, error) {
	switch driver {
	case "", DriverFilesystem:
		return NewFS(opts.FSRoot)
	case DriverS3:
		return NewS3(ctx, opts.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", driver)
	}
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*FSStore)(nil)
	_ Store = (*S3Store)(nil)
)
