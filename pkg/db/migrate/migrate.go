package migrate

import (
	"embed"
	"errors"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrations embed.FS

// MigrateDB applies the embedded migrations.
func MigrateDB(dbURI string) error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, toMigrateURL(dbURI))
	if err != nil {
		return err
	}
	defer m.Close()
	return up(m)
}

// MigrateDBFromSource applies migrations found at sourceURL (e.g. file:///migrations).
func MigrateDBFromSource(sourceURL, dbURI string) error {
	m, err := migrate.New(sourceURL, toMigrateURL(dbURI))
	if err != nil {
		return err
	}
	defer m.Close()
	return up(m)
}

func up(m *migrate.Migrate) error {
	err := m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func toMigrateURL(dbURI string) string {
	return strings.Replace(dbURI, "postgresql://", "pgx5://", 1)
}
