// Package migrate runs embedded SQL migrations against PostgreSQL. Files are
// named NNN_name.sql and carry "-- +migrate Up" / "-- +migrate Down" markers.
package migrate

import (
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/MasumNishat/signing-sub001/pkg/config"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// Migration is one versioned schema change.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// Migrator applies and rolls back migrations.
type Migrator struct {
	db         *sql.DB
	source     fs.FS
	sourceDir  string
	migrations []*Migration
}

// New connects to the database and loads the embedded migration files.
func New(cfg *config.DatabaseConfig, source fs.FS, sourceDir string) (*Migrator, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	m := &Migrator{db: db, source: source, sourceDir: sourceDir}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Migrator) load() error {
	entries, err := fs.ReadDir(m.source, m.sourceDir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			log.Warn().Str("file", name).Msg("Skipping migration file without numeric prefix")
			continue
		}

		content, err := fs.ReadFile(m.source, path.Join(m.sourceDir, name))
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", name, err)
		}

		up, down := splitSections(string(content))
		m.migrations = append(m.migrations, &Migration{
			Version: version,
			Name:    strings.TrimSuffix(name[strings.Index(name, "_")+1:], ".sql"),
			UpSQL:   up,
			DownSQL: down,
		})
	}

	sort.Slice(m.migrations, func(i, j int) bool {
		return m.migrations[i].Version < m.migrations[j].Version
	})
	return nil
}

func splitSections(content string) (up, down string) {
	var upLines, downLines []string
	inDown := false

	for _, line := range strings.Split(content, "\n") {
		switch strings.TrimSpace(line) {
		case "-- +migrate Up":
			inDown = false
		case "-- +migrate Down":
			inDown = true
		default:
			if inDown {
				downLines = append(downLines, line)
			} else {
				upLines = append(upLines, line)
			}
		}
	}

	return strings.Join(upLines, "\n"), strings.Join(downLines, "\n")
}

func (m *Migrator) appliedVersions() (map[int]bool, error) {
	if _, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := m.db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// Up applies every pending migration in version order.
func (m *Migrator) Up() error {
	applied, err := m.appliedVersions()
	if err != nil {
		return err
	}

	ran := 0
	for _, migration := range m.migrations {
		if applied[migration.Version] {
			continue
		}
		if err := m.runInTx(migration.UpSQL,
			"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)", migration.Version, migration.Name); err != nil {
			return fmt.Errorf("failed to run migration %d (%s): %w", migration.Version, migration.Name, err)
		}
		log.Info().Int("version", migration.Version).Str("name", migration.Name).Msg("Applied migration")
		ran++
	}

	if ran == 0 {
		log.Info().Msg("No pending migrations")
	}
	return nil
}

// Down rolls back the most recently applied migration.
func (m *Migrator) Down() error {
	applied, err := m.appliedVersions()
	if err != nil {
		return err
	}

	var target *Migration
	for _, migration := range m.migrations {
		if applied[migration.Version] {
			target = migration
		}
	}
	if target == nil {
		log.Info().Msg("No migrations to roll back")
		return nil
	}

	if err := m.runInTx(target.DownSQL,
		"DELETE FROM schema_migrations WHERE version = $1", target.Version); err != nil {
		return fmt.Errorf("failed to roll back migration %d (%s): %w", target.Version, target.Name, err)
	}

	log.Info().Int("version", target.Version).Str("name", target.Name).Msg("Rolled back migration")
	return nil
}

// runInTx executes the migration SQL and its bookkeeping statement in a
// single transaction.
func (m *Migrator) runInTx(migrationSQL, recordSQL string, recordArgs ...interface{}) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(migrationSQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if _, err := tx.Exec(recordSQL, recordArgs...); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}

// Close closes the database connection
func (m *Migrator) Close() error {
	return m.db.Close()
}
