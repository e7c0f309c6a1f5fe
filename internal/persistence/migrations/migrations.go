// Package migrations applies versioned schema migrations for the
// PostgreSQL backend using golang-migrate with embedded SQL files,
// grounded on codeready-toolchain-tarsy's pkg/database/client.go
// (embed.FS source via iofs, migrate.NewWithInstance, ErrNoChange
// treated as success).
//
// The sqlite backend has no entry here: golang-migrate's only sqlite
// driver requires mattn/go-sqlite3 (cgo), which would contradict the
// pure-Go modernc.org/sqlite choice made for internal/persistence/sqlite.
// sqlite.Store.Init instead creates its schema idempotently at startup,
// which is sufficient for a single-file embedded deployment that never
// needs rollback tracking.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
)

//go:embed postgres/*.sql
var postgresFS embed.FS

// ApplyPostgres runs every pending up migration against db, which must
// already be opened via database/sql with a postgres-compatible driver
// (e.g. jackc/pgx/v5/stdlib registered as "pgx"). databaseName identifies
// the target database for golang-migrate's internal lock/version table.
func ApplyPostgres(db *sql.DB, databaseName string) error {
	driver, err := pgmigrate.WithInstance(db, &pgmigrate.Config{})
	if err != nil {
		return cerr.Wrap("migrations.ApplyPostgres", cerr.KindFatal, fmt.Errorf("postgres driver: %w", err))
	}
	source, err := iofs.New(postgresFS, "postgres")
	if err != nil {
		return cerr.Wrap("migrations.ApplyPostgres", cerr.KindFatal, fmt.Errorf("migration source: %w", err))
	}
	defer source.Close()

	m, err := migrate.NewWithInstance("iofs", source, databaseName, driver)
	if err != nil {
		return cerr.Wrap("migrations.ApplyPostgres", cerr.KindFatal, fmt.Errorf("migrate instance: %w", err))
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return cerr.Wrap("migrations.ApplyPostgres", cerr.KindFatal, fmt.Errorf("apply: %w", err))
	}
	return nil
}
