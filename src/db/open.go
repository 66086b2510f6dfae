package db

import (
	"context"
	"fmt"
	"log/slog"

	"places_bot/src/types"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverElastic  = "elastic"
)

// Drivers lists the accepted values of Options.Driver.
var Drivers = []string{DriverSQLite, DriverPostgres, DriverElastic}

type Options struct {
	Driver string
	// DSN is a file path for sqlite, a connection string for postgres and
	// a cluster URL for elastic.
	DSN   string
	Index string
}

// Open returns the store selected by opts.Driver, with its table or index
// created if absent.
func Open(ctx context.Context, opts Options, log *slog.Logger) (types.DataStore, error) {
	switch opts.Driver {
	case "", DriverSQLite:
		return OpenSQLite(ctx, opts.DSN)
	case DriverPostgres:
		return OpenPostgres(ctx, opts.DSN)
	case DriverElastic:
		url := opts.DSN
		if url == "" {
			url = "http://localhost:9200"
		}
		return NewElasticStore(ctx, url, opts.Index, log)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
