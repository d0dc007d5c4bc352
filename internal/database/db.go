// Package database opens the gorm connection, migrates the schema and seeds
// the department roster.
package database

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres" // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"              // SQLite driver

	"brigade/internal/store"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Options configures Open.
type Options struct {
	Driver  string
	DSN     string
	LogMode bool
}

// Open connects to the database and migrates every table.
func Open(opts Options, logger *slog.Logger) (*gorm.DB, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	var dsn string
	switch driver {
	case DriverSQLite:
		dsn = sqliteDSN(opts.DSN)
	case DriverPostgres:
		dsn = opts.DSN
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.LogMode(opts.LogMode)

	if driver == DriverSQLite {
		// One writer at a time; also keeps in-memory databases on one connection.
		db.DB().SetMaxOpenConns(1)
	} else {
		db.DB().SetMaxIdleConns(10)
		db.DB().SetMaxOpenConns(100)
		db.DB().SetConnMaxLifetime(time.Hour)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	if logger != nil {
		logger.Info("database ready", "driver", driver)
	}
	return db, nil
}

// Migrate creates or extends every table the store uses.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(store.Models()...).Error; err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

func sqliteDSN(path string) string {
	if path == "" || path == ":memory:" {
		return "file::memory:?cache=shared&_busy_timeout=5000"
	}
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_journal_mode=WAL&_busy_timeout=5000"
}
