// Package database holds the SQL plumbing shared by the ledger, bounty and outbox repositories.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// Supported drivers. Repositories pick their SQL dialect from these names.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

const defaultPingTimeout = 5 * time.Second

// ErrUnsupportedDriver is returned when the configured driver has no repository implementation.
var ErrUnsupportedDriver = errors.New("unsupported database driver")

// Config describes the ledger database and its pool.
type Config struct {
	Driver             string
	ConnectionString   string
	MaxOpenConnections int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	// PingTimeout bounds the initial reachability check. Zero means five seconds.
	PingTimeout time.Duration
}

// Connect opens the pool and verifies the database answers before returning it.
func Connect(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.Driver != DriverPostgres && cfg.Driver != DriverMySQL {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	if err := Ping(ctx, db, timeout); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Ping checks reachability within timeout. A nil pool is reported as unreachable.
func Ping(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	if db == nil {
		return errors.New("database not configured")
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}
