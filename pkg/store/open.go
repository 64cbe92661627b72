package store

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverS3       = "s3"
)

// Config selects and configures a backend for Open.
type Config struct {
	Driver string
	DSN    string
	Table  string

	Bucket   string
	Prefix   string
	Region   string
	Endpoint string

	// Migrate creates the SQL table on open.
	Migrate bool
}

// Open builds the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil

	case DriverSQLite, DriverPostgres:
		return openSQL(ctx, cfg)

	case DriverS3:
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("store: s3 driver requires a bucket")
		}
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("store: load aws config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = &cfg.Endpoint
				o.UsePathStyle = true
			}
		})
		return NewS3Store(client, cfg.Bucket, cfg.Prefix), nil

	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

func openSQL(ctx context.Context, cfg Config) (*SQLStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store: %s driver requires a dsn", cfg.Driver)
	}

	opts := []SQLStoreOption{WithTableName(cfg.Table), WithOwnedDB()}
	var st *SQLStore
	if cfg.Driver == DriverPostgres {
		db, err := OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		st = NewSQLStore(db, append(opts, WithDialect(DialectPostgreSQL))...)
	} else {
		db, err := OpenSQLite(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		st = NewSQLStore(db, append(opts, WithDialect(DialectSQLite))...)
	}

	if cfg.Migrate {
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, err
		}
	}
	return st, nil
}
