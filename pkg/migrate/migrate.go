package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

// goose keeps its dialect and filesystem in package globals
var gooseMu sync.Mutex

type target struct {
	dialect string
	dir     string
}

func targetFor(driver string) (target, error) {
	switch driver {
	case "postgres", "":
		return target{dialect: "postgres", dir: "migrations/postgres"}, nil
	case "sqlite":
		return target{dialect: "sqlite3", dir: "migrations/sqlite"}, nil
	default:
		return target{}, fmt.Errorf("no migrations for driver %q", driver)
	}
}

// Up applies every embedded migration for driver that has not run yet.
func Up(ctx context.Context, db *sql.DB, driver string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	t, err := targetFor(driver)
	if err != nil {
		return err
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()
	if err := setup(t); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, t.dir); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Version returns the schema version recorded by goose.
func Version(db *sql.DB, driver string) (int64, error) {
	t, err := targetFor(driver)
	if err != nil {
		return 0, err
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()
	if err := setup(t); err != nil {
		return 0, err
	}
	version, err := goose.GetDBVersion(db)
	if err != nil {
		return 0, fmt.Errorf("get db version: %w", err)
	}
	return version, nil
}

func setup(t target) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{})
	if err := goose.SetDialect(t.dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return nil
}

// gooseLogger routes goose output through zerolog.
type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...any) {
	log.Debug().Str("component", "migrate").Msgf(format, v...)
}

func (gooseLogger) Fatalf(format string, v ...any) {
	log.Fatal().Str("component", "migrate").Msgf(format, v...)
}
