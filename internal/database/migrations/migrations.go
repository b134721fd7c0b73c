// Package migrations holds the embedded schema migrations of the bookmark
// database and applies them with golang-migrate.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var migrationFiles embed.FS

var (
	// ErrNoVersion is returned for a database that was never migrated.
	ErrNoVersion = errors.New("database has no schema version")

	// ErrNewerSchema is returned for a database written by a newer bm,
	// such as an imported snapshot.
	ErrNewerSchema = errors.New("database schema is newer than this binary")
)

// LatestVersion returns the highest migration version embedded in the binary.
func LatestVersion() (uint, error) {
	src, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return 0, fmt.Errorf("reading migration files: %w", err)
	}
	defer src.Close()

	v, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("reading first migration: %w", err)
	}
	for {
		next, err := src.Next(v)
		if err != nil {
			return v, nil
		}
		v = next
	}
}

// CheckDBMigrationStatus returns nil when db is exactly at LatestVersion.
func CheckDBMigrationStatus(db *sql.DB) error {
	version, err := currentVersion(db)
	if err != nil {
		return err
	}
	latest, err := LatestVersion()
	if err != nil {
		return err
	}

	switch {
	case version < latest:
		return fmt.Errorf("database is at version %d but latest is %d (%d migrations behind)",
			version, latest, latest-version)
	case version > latest:
		return fmt.Errorf("%w: version %d, binary supports %d", ErrNewerSchema, version, latest)
	}
	return nil
}

// MigrateUp brings db to LatestVersion. It refuses databases that are
// already ahead of the binary.
func MigrateUp(db *sql.DB) error {
	version, err := currentVersion(db)
	if err != nil && !errors.Is(err, ErrNoVersion) {
		return err
	}
	latest, err := LatestVersion()
	if err != nil {
		return err
	}
	if version > latest {
		return fmt.Errorf("%w: version %d, binary supports %d", ErrNewerSchema, version, latest)
	}

	// m is not closed: that would close db, which the caller owns.
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// currentVersion reads the schema version, failing on a dirty database.
func currentVersion(db *sql.DB) (uint, error) {
	m, err := newMigrate(db)
	if err != nil {
		return 0, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, ErrNoVersion
	}
	if err != nil {
		return 0, fmt.Errorf("reading database version: %w", err)
	}
	if dirty {
		return 0, fmt.Errorf("database is in dirty state at version %d (migration failed previously)", version)
	}
	return version, nil
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return nil, fmt.Errorf("creating source driver: %w", err)
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("creating database driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("creating migrate instance: %w", err)
	}
	return m, nil
}
