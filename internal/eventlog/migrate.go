package eventlog

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"database/sql"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// RunMigrations applies the pool_events schema migrations for the given
// driver ("postgres" or "sqlite") against an already-open *sql.DB,
// grounded on the teacher's internal/storage/migrate.go wiring of
// golang-migrate with embedded file-source migrations.
func RunMigrations(driverName string, db *sql.DB) error {
	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("eventlog: load migration source: %w", err)
	}

	var dbDriver migrate.Driver
	switch driverName {
	case "postgres":
		dbDriver, err = postgres.WithInstance(db, &postgres.Config{})
	case "sqlite":
		dbDriver, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	default:
		return fmt.Errorf("eventlog: migrations not supported for driver %q", driverName)
	}
	if err != nil {
		return fmt.Errorf("eventlog: build migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, driverName, dbDriver)
	if err != nil {
		return fmt.Errorf("eventlog: build migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("eventlog: run migrations: %w", err)
	}
	return nil
}
