// Package factory opens the storage backend named in configuration.
package factory

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/mongodriver"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/bidbank/store"
	"github.com/xraph/bidbank/store/memory"
	"github.com/xraph/bidbank/store/mongo"
	"github.com/xraph/bidbank/store/postgres"
	"github.com/xraph/bidbank/store/sqlite"
)

// Backend types accepted in Config.Type.
const (
	TypeMemory   = "memory"
	TypePostgres = "postgres"
	TypeSQLite   = "sqlite"
	TypeMongo    = "mongo"
)

// DefaultMongoPort is used when Mongo.Port is zero.
const DefaultMongoPort = 27017

// ErrUnknownType is returned for an unrecognized Config.Type.
var ErrUnknownType = errors.New("bidbank/factory: unknown storage type")

// Config selects and configures a storage backend.
type Config struct {
	// Type is one of memory, postgres, sqlite or mongo (default: memory).
	Type string `json:"type" mapstructure:"type" yaml:"type" validate:"omitempty,oneof=memory postgres sqlite mongo"`

	// DSN is the connection string for postgres, or the database file for sqlite.
	DSN string `json:"dsn" mapstructure:"dsn" yaml:"dsn" validate:"required_if=Type postgres,required_if=Type sqlite"`

	// PoolSize caps SQL connections. Zero keeps the driver default.
	PoolSize int `json:"pool_size" mapstructure:"pool_size" yaml:"pool_size" validate:"gte=0"`

	// Mongo holds the settings used when Type is mongo.
	Mongo MongoConfig `json:"mongo" mapstructure:"mongo" yaml:"mongo"`
}

// MongoConfig holds MongoDB connection settings. Host and Database are
// mandatory when the mongo backend is selected.
type MongoConfig struct {
	Host     string `json:"host" mapstructure:"host" yaml:"host"`
	Port     int    `json:"port" mapstructure:"port" yaml:"port" validate:"gte=0,lte=65535"`
	Database string `json:"database" mapstructure:"database" yaml:"database"`
	Username string `json:"username" mapstructure:"username" yaml:"username"`
	Password string `json:"password" mapstructure:"password" yaml:"password"`
}

// URI builds the mongodb:// connection URI.
func (m MongoConfig) URI() string {
	port := m.Port
	if port == 0 {
		port = DefaultMongoPort
	}
	u := url.URL{
		Scheme: "mongodb",
		Host:   net.JoinHostPort(m.Host, strconv.Itoa(port)),
	}
	if m.Username != "" {
		u.User = url.UserPassword(m.Username, m.Password)
	}
	return u.String()
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		cfg := sl.Current().Interface().(Config)
		if cfg.Type != TypeMongo {
			return
		}
		if cfg.Mongo.Host == "" {
			sl.ReportError(cfg.Mongo.Host, "Mongo.Host", "Host", "required_mongo", "")
		}
		if cfg.Mongo.Database == "" {
			sl.ReportError(cfg.Mongo.Database, "Mongo.Database", "Database", "required_mongo", "")
		}
	}, Config{})
	return v
}

// Validate checks cfg. The mongo backend without host or database is
// rejected, as is a SQL backend without DSN.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("bidbank/factory: invalid storage config: %w", err)
	}
	return nil
}

// Open validates cfg and returns a connected store. The caller owns the
// store and must Close it.
func Open(ctx context.Context, cfg Config) (store.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []driver.Option
	if cfg.PoolSize > 0 {
		opts = append(opts, driver.WithPoolSize(cfg.PoolSize))
	}

	switch cfg.Type {
	case "", TypeMemory:
		return memory.New(), nil

	case TypePostgres:
		pgdb := pgdriver.New()
		if err := pgdb.Open(ctx, cfg.DSN, opts...); err != nil {
			return nil, fmt.Errorf("bidbank/factory: open postgres: %w", err)
		}
		db, err := grove.Open(pgdb)
		if err != nil {
			return nil, fmt.Errorf("bidbank/factory: open postgres: %w", err)
		}
		return postgres.New(db), nil

	case TypeSQLite:
		sdb := sqlitedriver.New()
		if err := sdb.Open(ctx, cfg.DSN, opts...); err != nil {
			return nil, fmt.Errorf("bidbank/factory: open sqlite: %w", err)
		}
		db, err := grove.Open(sdb)
		if err != nil {
			return nil, fmt.Errorf("bidbank/factory: open sqlite: %w", err)
		}
		return sqlite.New(db), nil

	case TypeMongo:
		mdb := mongodriver.New()
		if err := mdb.Open(ctx, cfg.Mongo.URI(), mongodriver.WithDatabase(cfg.Mongo.Database)); err != nil {
			return nil, fmt.Errorf("bidbank/factory: open mongo: %w", err)
		}
		db, err := grove.Open(mdb)
		if err != nil {
			return nil, fmt.Errorf("bidbank/factory: open mongo: %w", err)
		}
		return mongo.New(db), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownType, cfg.Type)
}
