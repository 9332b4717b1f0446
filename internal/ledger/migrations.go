package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/btcsuite/btclog/v2"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	sqlite_migrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/httpfs"
)

const (
	// LatestMigrationVersion is the newest schema version this binary
	// knows. A database at a higher version is refused.
	//
	// NOTE: This MUST be updated when a new migration is added.
	LatestMigrationVersion uint = 1
)

// ErrMigrationDowngrade is returned when the database was written by a
// newer binary.
var ErrMigrationDowngrade = errors.New("database downgrade detected")

//go:embed migrations/*.sql
var sqlSchemas embed.FS

// migrationLogger adapts a btclog logger to the migrate.Logger interface.
type migrationLogger struct {
	log btclog.Logger
}

// Printf implements the migrate.Logger interface.
func (m *migrationLogger) Printf(format string, v ...any) {
	format = strings.TrimRight(format, "\n")
	m.log.DebugS(context.Background(), fmt.Sprintf(format, v...))
}

// Verbose implements the migrate.Logger interface.
func (m *migrationLogger) Verbose() bool {
	return false
}

// migrateUp brings the schema to the latest version.
func migrateUp(ctx context.Context, db *sql.DB, log btclog.Logger) error {
	driver, err := sqlite_migrate.WithInstance(db, &sqlite_migrate.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	return applyMigrations(ctx, driver, "migrations", "sqlite3", log)
}

// applyMigrations runs the embedded migrations against driver. The
// migrate instance is not closed since that would close the shared
// database handle.
func applyMigrations(ctx context.Context, driver database.Driver, path,
	dbName string, log btclog.Logger) error {

	source, err := httpfs.New(http.FS(sqlSchemas), path)
	if err != nil {
		return err
	}

	sqlMigrate, err := migrate.NewWithInstance(
		"migrations", source, dbName, driver,
	)
	if err != nil {
		return err
	}

	version, dirty, err := sqlMigrate.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("unable to determine current migration "+
			"version: %w", err)
	}

	// A dirty version means an earlier migration stopped half way and
	// needs manual repair.
	if dirty {
		return fmt.Errorf("database is in a dirty state at version "+
			"%v, manual intervention required", version)
	}

	if version > LatestMigrationVersion {
		return fmt.Errorf("%w: db_version=%v, "+
			"latest_migration_version=%v", ErrMigrationDowngrade,
			version, LatestMigrationVersion)
	}

	sqlMigrate.Log = &migrationLogger{log: log}

	err = sqlMigrate.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	if err == nil {
		log.InfoS(ctx, "Ledger schema migrated",
			"from_version", version,
			"to_version", LatestMigrationVersion)
	}

	return nil
}
