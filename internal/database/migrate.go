package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate brings the schema up to the latest embedded version. The
// migrations are the single source of truth for the schema.
func (db *DB) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations/"+string(db.dialect))
	if err != nil {
		return fmt.Errorf("failed to open migrations for %s: %w", db.dialect, err)
	}

	var driver migratedb.Driver
	switch db.dialect {
	case MySQL:
		driver, err = migratemysql.WithInstance(db.conn.DB, &migratemysql.Config{})
	default:
		driver, err = migratesqlite.WithInstance(db.conn.DB, &migratesqlite.Config{})
	}
	if err != nil {
		return fmt.Errorf("failed to prepare migration driver for %s: %w", db.name, err)
	}

	// The migrate instance is not closed: closing it would close db.conn.
	m, err := migrate.NewWithInstance("iofs", src, string(db.dialect), driver)
	if err != nil {
		return fmt.Errorf("failed to initialise migrations for %s: %w", db.name, err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to migrate %s: %w", db.name, err)
	}
	return nil
}
