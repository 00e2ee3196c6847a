package conn

import (
	"github.com/glebarez/sqlite"
	"github.com/yanun0323/errors"
	"gorm.io/gorm"
)

const memoryPath = ":memory:"

// NewSQLite opens a pure-Go sqlite database. ":memory:" gives a private
// in-memory database pinned to one connection.
func NewSQLite(path string, config *gorm.Config) (*Client, error) {
	db, err := gorm.Open(sqlite.Open(path), Option{Config: config}.gormConfig())
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", path)
	}
	if path == memoryPath {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(err, "get sql db")
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return &Client{driver: DriverSQLite, db: db}, nil
}
