package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed all:migrations
var migrationsFS embed.FS

func RunMigrations(db *sql.DB, driverName string) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations/"+driverName)
	if err != nil {
		return fmt.Errorf("could not create source driver: %w", err)
	}

	var driver database.Driver
	switch driverName {
	case DriverPostgres:
		driver, err = postgres.WithInstance(db, &postgres.Config{})
	case DriverSQLite:
		driver, err = sqlite.WithInstance(db, &sqlite.Config{})
	default:
		return fmt.Errorf("unsupported database driver %q", driverName)
	}
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance(
		"iofs", sourceDriver,
		driverName, driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run up migrations: %w", err)
	}

	slog.Info("migrations ran successfully", slog.String("driver", driverName))
	return nil
}
