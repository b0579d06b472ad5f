package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib" // "pgx" driver for database/sql
	"go.uber.org/zap"
)

// DefaultMigrationsPath is relative to the server's working directory.
const DefaultMigrationsPath = "migrations"

// migrationsTable keeps bugsneak's version row apart from any other migrate user
// sharing the database.
const migrationsTable = "bugsneak_schema_migrations"

// ErrDirtySchema means a previous migration failed halfway and needs manual repair.
var ErrDirtySchema = errors.New("schema is dirty")

type migrator struct {
	m      *migrate.Migrate
	db     *sql.DB
	logger *zap.Logger
}

func openMigrator(connStr, migrationsPath string, logger *zap.Logger) (*migrator, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open migration connection: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load migrations from %s: %w", migrationsPath, err)
	}

	return &migrator{m: m, db: db, logger: logger}, nil
}

func (mg *migrator) close() {
	srcErr, dbErr := mg.m.Close()
	if err := errors.Join(srcErr, dbErr); err != nil {
		mg.logger.Warn("Failed to close migrator", zap.Error(err))
	}
	mg.db.Close()
}

// version returns the applied version. A database with no migrations reports 0.
func (mg *migrator) version() (uint, bool, error) {
	v, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, dirty, nil
}

// RunMigrations brings the schema at connStr up to the newest file in migrationsPath.
// An up-to-date schema is a no-op; a dirty one is refused with ErrDirtySchema.
func RunMigrations(connStr, migrationsPath string, logger *zap.Logger) error {
	logger = logger.Named("migrations")

	mg, err := openMigrator(connStr, migrationsPath, logger)
	if err != nil {
		return err
	}
	defer mg.close()

	from, dirty, err := mg.version()
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("%w at version %d", ErrDirtySchema, from)
	}

	if err := mg.m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("Schema up to date", zap.Uint("version", from))
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	to, _, err := mg.version()
	if err != nil {
		return err
	}
	logger.Info("Applied migrations", zap.Uint("from", from), zap.Uint("to", to))
	return nil
}

// SchemaVersion reports the applied migration version and whether it is dirty.
func SchemaVersion(connStr, migrationsPath string, logger *zap.Logger) (uint, bool, error) {
	mg, err := openMigrator(connStr, migrationsPath, logger.Named("migrations"))
	if err != nil {
		return 0, false, err
	}
	defer mg.close()
	return mg.version()
}
