package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"

	"inventory/internal/logger"
)

//go:embed migrations
var migrationsFS embed.FS

const (
	postgresMigrations = "migrations/postgres"
	sqliteMigrations   = "migrations/sqlite"
)

// goose keeps dialect and base FS in package globals.
var gooseMu sync.Mutex

func runMigrations(db *sql.DB, dialect, dir string) error {
	const op = "storage.migrations"

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(logger.Goose{L: log.With().Str("component", "migrations").Logger()})
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err := goose.Up(db, dir)
	if err != nil {
		if errors.Is(err, goose.ErrNoNextVersion) {
			log.Debug().Str("dialect", dialect).Msg("no migrations to apply")
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Debug().Str("dialect", dialect).Msg("database migrations applied")
	return nil
}
