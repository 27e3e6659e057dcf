// Package store selects and opens a concrete submission store backend.
package store

import (
	"context"
	"fmt"

	"github.com/awsmug/torro-forms-sub006/internal/store/memory"
	"github.com/awsmug/torro-forms-sub006/internal/store/postgres"
	"github.com/awsmug/torro-forms-sub006/internal/store/sqlite"
	"github.com/awsmug/torro-forms-sub006/pkg/formdomain"
)

// Driver identifies a concrete store implementation.
type Driver string

const (
	DriverMemory   Driver = "memory"   // in-memory only (tests / ephemeral)
	DriverSQLite   Driver = "sqlite"   // embedded sqlite file
	DriverPostgres Driver = "postgres" // PostgreSQL server
)

// Options carries driver-specific parameters for Open.
type Options struct {
	// SQLitePath is the database file for the sqlite driver.
	SQLitePath string
	// PostgresDSN is the connection string for the postgres driver.
	PostgresDSN string
}

// Open constructs the store selected by driver. An empty driver falls back
// to the in-memory store.
func Open(ctx context.Context, driver Driver, opts Options) (formdomain.Store, error) {
	switch driver {
	case "", DriverMemory:
		return memory.NewStore(), nil
	case DriverSQLite:
		return sqlite.NewStore(opts.SQLitePath)
	case DriverPostgres:
		return postgres.NewStore(ctx, opts.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
