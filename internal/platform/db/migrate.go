package db

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// MigrationResult reports the schema version after a migration run.
type MigrationResult struct {
	Version uint
	Dirty   bool
	Changed bool
}

// Migrate applies the embedded migrations. direction is "up" or "down".
func Migrate(dsn, direction string) (MigrationResult, error) {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return MigrationResult{}, fmt.Errorf("platform/db: migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrationURL(dsn))
	if err != nil {
		return MigrationResult{}, fmt.Errorf("platform/db: migrate instance: %w", err)
	}
	defer func() {
		_, _ = m.Close()
	}()

	switch direction {
	case "", "up":
		err = m.Up()
	case "down":
		err = m.Down()
	default:
		return MigrationResult{}, fmt.Errorf("platform/db: unknown migration direction %q", direction)
	}
	result := MigrationResult{Changed: true}
	if errors.Is(err, migrate.ErrNoChange) {
		result.Changed = false
		err = nil
	}
	if err != nil {
		return MigrationResult{}, fmt.Errorf("platform/db: migrate %s: %w", direction, err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return MigrationResult{}, fmt.Errorf("platform/db: migration version: %w", err)
	}
	result.Version = version
	result.Dirty = dirty
	return result, nil
}

// migrationURL rewrites a libpq-style URL to the scheme registered by the pgx/v5 driver.
func migrationURL(dsn string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}
