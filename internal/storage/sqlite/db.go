// Package sqlite holds the SQLite-backed long-term archive and hi-low
// stores.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/chrissnell/vantaged/pkg/migrate"
)

//go:embed migrations
var migrations embed.FS

// ErrNoRecords is returned when a query matches nothing.
var ErrNoRecords = errors.New("sqlite: no records")

// Schemas names the embedded migration sets.
var Schemas = []string{"archive", "hilow"}

// NewMigrator returns a migrator for one of Schemas on db.
func NewMigrator(db *sql.DB, schema string, logger *zap.SugaredLogger) (*migrate.Migrator, error) {
	if !slices.Contains(Schemas, schema) {
		return nil, fmt.Errorf("unknown schema %q", schema)
	}
	provider := migrate.NewFSProvider(migrations, "migrations/"+schema, "schema_migrations")
	return migrate.NewMigrator(db, provider, logger), nil
}

// open connects to the database at path and applies the migrations under
// migrations/<schema>.
func open(ctx context.Context, path, schema string, logger *zap.SugaredLogger) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// One writer; SQLite serializes anyway and this avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	m, err := NewMigrator(db, schema, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := m.MigrateUp(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s database: %w", schema, err)
	}
	return db, nil
}

func nullFloat(v float64, isNull bool) any {
	if isNull {
		return nil
	}
	return v
}

// snapshot writes a consistent copy of db to path, which must not exist.
func snapshot(ctx context.Context, db *sql.DB, path string) error {
	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("snapshot to %s: %w", path, err)
	}
	return nil
}
