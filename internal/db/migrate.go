package db

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-fruver/db/migrations"
)

// Migrator applies the embedded SQL migrations against a Postgres database.
type Migrator struct {
	DatabaseURL string
	Logger      zerolog.Logger
}

func (m Migrator) open() (*migrate.Migrate, error) {
	if m.DatabaseURL == "" {
		return nil, errors.New("db: database url is required")
	}
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("db: open migrations: %w", err)
	}
	mg, err := migrate.NewWithSourceInstance("iofs", src, m.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: init migrate: %w", err)
	}
	return mg, nil
}

// Up applies every pending migration. An already up-to-date schema is not an error.
func (m Migrator) Up() error {
	mg, err := m.open()
	if err != nil {
		return err
	}
	defer closeMigrate(mg)
	if err := mg.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("db: migrate up: %w", err)
	}
	m.logVersion(mg)
	return nil
}

// Down rolls back the given number of migrations.
func (m Migrator) Down(steps int) error {
	if steps <= 0 {
		return errors.New("db: steps must be positive")
	}
	mg, err := m.open()
	if err != nil {
		return err
	}
	defer closeMigrate(mg)
	if err := mg.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("db: migrate down: %w", err)
	}
	m.logVersion(mg)
	return nil
}

// Version reports the applied schema version.
func (m Migrator) Version() (uint, bool, error) {
	mg, err := m.open()
	if err != nil {
		return 0, false, err
	}
	defer closeMigrate(mg)
	version, dirty, err := mg.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (m Migrator) logVersion(mg *migrate.Migrate) {
	version, dirty, err := mg.Version()
	if err != nil {
		return
	}
	m.Logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("schema migrated")
}

func closeMigrate(mg *migrate.Migrate) {
	_, _ = mg.Close()
}
