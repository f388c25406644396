package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunMigrations applies every pending migration under dir/<dialect> to the ledger database.
// connectionString is the same DSN the service uses.
func RunMigrations(logger *slog.Logger, driver, connectionString, dir string) error {
	source, databaseURL, err := migrationTarget(driver, connectionString, dir)
	if err != nil {
		return err
	}

	logger.Info("running database migrations", slog.String("driver", driver), slog.String("source", source))

	m, err := migrate.New(source, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer closeMigrate(m, logger)

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	logger.Info("migrations completed", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
	return nil
}

// migrationTarget resolves the source and database URLs. go-sql-driver DSNs carry no scheme,
// so one is added for golang-migrate.
func migrationTarget(driver, connectionString, dir string) (source, databaseURL string, err error) {
	switch driver {
	case "postgres":
		return "file://" + path.Join(dir, "postgresql"), connectionString, nil
	case "mysql":
		if !strings.HasPrefix(connectionString, "mysql://") {
			connectionString = "mysql://" + connectionString
		}
		return "file://" + path.Join(dir, "mysql"), connectionString, nil
	default:
		return "", "", fmt.Errorf("unsupported database driver: %q", driver)
	}
}
