package conn

import (
	"sort"
	"strconv"
	"strings"

	"github.com/yanun0323/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewPostgres connects to PostgreSQL. ConnString, when set, is used as is.
func NewPostgres(opt Option) (*Client, error) {
	db, err := gorm.Open(postgres.Open(opt.postgresDSN()), opt.gormConfig())
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	return &Client{driver: DriverPostgres, db: db}, nil
}

// postgresDSN renders a libpq keyword/value string, e.g.
// "host=localhost port=5432 sslmode=disable user=ab dbname=bars".
func (opt Option) postgresDSN() string {
	if opt.ConnString != "" {
		return opt.ConnString
	}

	host, port, ssl := opt.Host, opt.Port, opt.SSLMode
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = 5432
	}
	if ssl == "" {
		ssl = "disable"
	}

	pairs := []string{"host=" + quote(host), "port=" + strconv.Itoa(port), "sslmode=" + quote(ssl)}
	if opt.User != "" {
		pairs = append(pairs, "user="+quote(opt.User))
	}
	if opt.Password != "" {
		pairs = append(pairs, "password="+quote(opt.Password))
	}
	if opt.Database != "" {
		pairs = append(pairs, "dbname="+quote(opt.Database))
	}

	keys := make([]string, 0, len(opt.Params))
	for k := range opt.Params {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		pairs = append(pairs, k+"="+quote(opt.Params[k]))
	}
	return strings.Join(pairs, " ")
}

// quote wraps values containing spaces or quotes as libpq expects.
func quote(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
