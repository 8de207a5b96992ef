package storage

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported drivers for Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// slogWriter routes GORM's logger output through slog.
type slogWriter struct {
	l *slog.Logger
}

func (w slogWriter) Printf(format string, args ...any) {
	w.l.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "gorm")
}

// NewGormLogger returns a GORM logger that reports slow queries and errors
// to l. Missing records are not treated as errors.
func NewGormLogger(l *slog.Logger) logger.Interface {
	if l == nil {
		l = slog.Default()
	}
	return logger.New(slogWriter{l: l}, logger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

// Open connects to the database named by driver and dsn, applies the pool
// options and returns a storage ready for Migrate.
//
// An in-memory SQLite database only lives as long as its connection, so for
// ":memory:" DSNs the pool is pinned to a single connection that never
// expires.
func Open(driver, dsn string, log *slog.Logger, opts ...PoolOption) (*GormStorage, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case DriverSQLite, "sqlite3":
		dialector = sqlite.Open(dsn)
		if strings.Contains(dsn, ":memory:") {
			opts = append(opts,
				MaxOpenConns(1), MaxIdleConns(1),
				ConnMaxLifetime(0), ConnMaxIdleTime(0))
		}
	case DriverPostgres, "postgresql", "pgx":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("deferred: unsupported storage driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: NewGormLogger(log)})
	if err != nil {
		return nil, fmt.Errorf("deferred: open %s storage: %w", driver, err)
	}
	return NewGormStorageWithPool(db, opts...)
}
