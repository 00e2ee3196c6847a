package conn

import (
	"context"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Option describes a history database. Driver picks postgres (default) or
// sqlite; sqlite only reads Path, falling back to ConnString.
type Option struct {
	Driver     string            `mapstructure:"driver"`
	Host       string            `mapstructure:"host"`
	Port       int               `mapstructure:"port"`
	User       string            `mapstructure:"user"`
	Password   string            `mapstructure:"password"`
	Database   string            `mapstructure:"database"`
	SSLMode    string            `mapstructure:"ssl_mode"`
	Params     map[string]string `mapstructure:"params"`
	ConnString string            `mapstructure:"conn_string"`
	Path       string            `mapstructure:"path"`
	Config     *gorm.Config      `mapstructure:"-"`
}

func (opt Option) gormConfig() *gorm.Config {
	if opt.Config != nil {
		return opt.Config
	}
	return &gorm.Config{}
}

// Client owns one gorm connection pool.
type Client struct {
	driver string
	db     *gorm.DB
}

// Open connects with the driver named by the option.
func Open(opt Option) (*Client, error) {
	switch opt.Driver {
	case "", DriverPostgres:
		return NewPostgres(opt)
	case DriverSQLite:
		path := opt.Path
		if path == "" {
			path = opt.ConnString
		}
		return NewSQLite(path, opt.Config)
	default:
		return nil, errors.Errorf("unsupported database driver %q", opt.Driver)
	}
}

func (c *Client) DB() *gorm.DB {
	if c == nil {
		return nil
	}
	return c.db
}

func (c *Client) Driver() string {
	if c == nil {
		return ""
	}
	return c.driver
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.db == nil {
		return errors.New("nil database client")
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return errors.Wrap(err, "get sql db")
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the pool. Closing a nil client is a no-op.
func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return errors.Wrap(err, "get sql db")
	}
	return sqlDB.Close()
}
