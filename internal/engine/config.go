package engine

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Defaults for the library-level configuration surface.
const (
	DefaultBreakpoint     = 100
	DefaultPageSize       = 25
	DefaultRebuildTimeout = 30 * time.Second
)

// Config is the library-level configuration object. There is no CLI; hosts
// either fill the struct directly or parse it from the environment.
type Config struct {
	// Breakpoint is the completed-submission count above which evaluation
	// reads serve the stored aggregate instead of recomputing live.
	Breakpoint int `env:"TORRO_RESULTS_BREAKPOINT" envDefault:"100"`
	// PageSize is the page length substituted when a query passes no limit.
	PageSize int `env:"TORRO_RESULTS_PAGE_SIZE" envDefault:"25"`
	// RebuildTimeout bounds a full aggregate rebuild scan.
	RebuildTimeout time.Duration `env:"TORRO_RESULTS_REBUILD_TIMEOUT" envDefault:"30s"`
	// Locale selects display/export token localization (BCP 47).
	Locale string `env:"TORRO_RESULTS_LOCALE" envDefault:"en-US"`

	// StorageDriver selects the store adapter: memory|sqlite|postgres.
	StorageDriver string `env:"TORRO_STORAGE_DRIVER" envDefault:"memory"`
	// SQLitePath is the sqlite database file when driver=sqlite.
	SQLitePath string `env:"TORRO_SQLITE_PATH" envDefault:"forms.db"`
	// PostgresDSN is the connection string when driver=postgres.
	PostgresDSN string `env:"TORRO_POSTGRES_DSN"`

	// BlobDriver selects the export artifact backend: memory|fs|s3.
	BlobDriver string `env:"TORRO_BLOB_DRIVER" envDefault:"fs"`
	// BlobFSRoot is the artifact directory when driver=fs.
	BlobFSRoot string `env:"TORRO_BLOB_FS_ROOT" envDefault:"./artifacts"`
	// BlobS3Bucket is required when driver=s3.
	BlobS3Bucket string `env:"TORRO_BLOB_S3_BUCKET"`
	// BlobS3Region defaults to us-east-1 when unset.
	BlobS3Region string `env:"TORRO_BLOB_S3_REGION"`
	// BlobS3Endpoint enables S3-compatible endpoints such as MinIO.
	BlobS3Endpoint string `env:"TORRO_BLOB_S3_ENDPOINT"`
}

// DefaultConfig returns the configuration defaults without consulting the
// environment.
func DefaultConfig() Config {
	return Config{
		Breakpoint:     DefaultBreakpoint,
		PageSize:       DefaultPageSize,
		RebuildTimeout: DefaultRebuildTimeout,
		Locale:         "en-US",
		StorageDriver:  "memory",
		SQLitePath:     "forms.db",
		BlobDriver:     "fs",
		BlobFSRoot:     "./artifacts",
	}
}

// ConfigFromEnv parses the configuration from environment variables,
// applying defaults for unset keys.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
