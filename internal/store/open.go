package store

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Backend drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverS3       = "s3"
)

// Options selects and configures a backend.
type Options struct {
	Driver string       `yaml:"driver" mapstructure:"driver"`
	Dir    string       `yaml:"dir" mapstructure:"dir"`
	DSN    string       `yaml:"dsn" mapstructure:"dsn"`
	Pool   PoolConfig   `yaml:"pool" mapstructure:"pool"`
	Redis  RedisOptions `yaml:"redis" mapstructure:"redis"`
	S3     S3Options    `yaml:"s3" mapstructure:"s3"`
}

// Open builds the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (KeyValueStore, error) {
	driver := strings.ToLower(strings.TrimSpace(opts.Driver))
	zap.L().Debug("store: opening cache backend", zap.String("driver", driver))

	switch driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverFile:
		if opts.Dir == "" {
			return nil, eris.New("store: file driver requires dir")
		}
		return NewFile(opts.Dir)
	case DriverSQLite, "":
		dsn := opts.DSN
		if dsn == "" {
			dir := opts.Dir
			if dir == "" {
				dir = "."
			}
			dsn = filepath.Join(dir, "housmart-cache.db")
		}
		return NewSQLite(ctx, dsn)
	case DriverPostgres:
		if opts.DSN == "" {
			return nil, eris.New("store: postgres driver requires dsn")
		}
		return NewPostgres(ctx, opts.DSN, &opts.Pool)
	case DriverRedis:
		if opts.Redis.Addr == "" {
			return nil, eris.New("store: redis driver requires redis.addr")
		}
		return NewRedis(ctx, opts.Redis)
	case DriverS3:
		if opts.S3.Endpoint == "" || opts.S3.Bucket == "" {
			return nil, eris.New("store: s3 driver requires s3.endpoint and s3.bucket")
		}
		return NewS3(ctx, opts.S3)
	default:
		return nil, eris.Errorf("store: unknown driver %q", opts.Driver)
	}
}
