// Package storage keeps its schema in embedded SQL migration files.
//
// Migration files live under migrations/<driver>/ and must match
// NNNN_name.up.sql or NNNN_name.down.sql. Adding or removing migration files
// requires rebuilding the binary.
//
// Heavily influenced by Authelia's migration system
// https://github.com/authelia/authelia/blob/master/internal/storage/migrations.go

package storage

import (
	"embed"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

//go:embed migrations/**/*.sql
var migrationsFS embed.FS

var reMigrationFilename = regexp.MustCompile(`^(?P<Version>\d{4})\_(?P<Name>[^.]+)\.(?P<Direction>(up|down))\.sql$`)

// SchemaMigration represents a single database migration
type SchemaMigration struct {
	Version int
	Name    string
	Up      bool
	SQL     string
}

// MigrationRunner handles database migrations
type MigrationRunner struct {
	driver     string
	migrations []SchemaMigration
	logger     *slog.Logger
}

func NewMigrationRunner(driver string) *MigrationRunner {
	return &MigrationRunner{
		driver:     driver,
		migrations: []SchemaMigration{},
		logger:     slog.With("component", "migrations", "driver", driver),
	}
}

func (mr *MigrationRunner) dirPath() (string, error) {
	switch mr.driver {
	case "sqlite3", "mysql":
		return filepath.Join("migrations", mr.driver), nil
	default:
		return "", fmt.Errorf("unsupported driver: %s", mr.driver)
	}
}

// LoadUpMigrations loads all pending up migrations above the prior version,
// sorted ascending.
func (mr *MigrationRunner) LoadUpMigrations(prior int) ([]SchemaMigration, error) {
	dirPath, err := mr.dirPath()
	if err != nil {
		return nil, err
	}

	entries, err := migrationsFS.ReadDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		migration, err := mr.parseMigrationFile(filepath.Join(dirPath, entry.Name()))
		if err != nil {
			mr.logger.Warn("Failed to parse migration file", "file", entry.Name(), "error", err)
			continue
		}

		if !migration.Up || migration.Version <= prior {
			continue
		}

		mr.migrations = append(mr.migrations, migration)
	}

	sort.Slice(mr.migrations, func(i, j int) bool {
		return mr.migrations[i].Version < mr.migrations[j].Version
	})

	mr.logger.Info("Loaded migrations", "count", len(mr.migrations), "from_version", prior)
	return mr.migrations, nil
}

// parseMigrationFile parses a migration filename and reads its content
// Expected format: NNNN_description.up.sql or NNNN_description.down.sql
func (mr *MigrationRunner) parseMigrationFile(path string) (SchemaMigration, error) {
	filename := filepath.Base(path)
	if !reMigrationFilename.MatchString(filename) {
		return SchemaMigration{}, fmt.Errorf("invalid migration filename: %s", filename)
	}

	filenameParts := reMigrationFilename.FindStringSubmatch(filename)
	if len(filenameParts) != 5 {
		return SchemaMigration{}, fmt.Errorf("invalid migration filename format: %s, parts: %v", filename, filenameParts)
	}

	sql, err := migrationsFS.ReadFile(path)
	if err != nil {
		return SchemaMigration{}, fmt.Errorf("failed to read migration file: %w", err)
	}

	version, _ := strconv.Atoi(filenameParts[reMigrationFilename.SubexpIndex("Version")])
	return SchemaMigration{
		Version: version,
		Name:    filenameParts[reMigrationFilename.SubexpIndex("Name")],
		Up:      filenameParts[reMigrationFilename.SubexpIndex("Direction")] == "up",
		SQL:     string(sql),
	}, nil
}

// runMigrations brings the schema up to the latest embedded version.
func (p *SQLProvider) runMigrations(driver string) error {
	if _, err := p.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL PRIMARY KEY, name TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("failed to ensure schema_migrations table: %w", err)
	}

	var prior int
	if err := p.db.Get(&prior, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	runner := NewMigrationRunner(driver)
	migrations, err := runner.LoadUpMigrations(prior)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		tx, err := p.db.Begin()
		if err != nil {
			return err
		}

		if _, err := tx.Exec(migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %04d_%s failed: %w", migration.Version, migration.Name, err)
		}
		if _, err := tx.Exec(p.db.Rebind(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`), migration.Version, migration.Name); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %04d: %w", migration.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}

		p.logger.Info("Applied migration", "version", migration.Version, "name", migration.Name)
	}

	return nil
}
