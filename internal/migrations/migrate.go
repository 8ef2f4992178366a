package migrations

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"regexp"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	pg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

const (
	versionTable  = "schema_migrations_migrate"
	baselineTable = "formations"
)

var versionPrefix = regexp.MustCompile(`^0*([0-9]+)_`)

// RunMigrations applies the file-based migrations in dir. A database that
// already holds the formations table but has never been tracked by migrate is
// forced to the newest version in dir before going up.
func RunMigrations(databaseURL, dir string) error {
	if databaseURL == "" {
		return errors.New("database URL is empty")
	}
	if dir == "" {
		dir = "migrations"
	}

	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer sqlDB.Close()

	driver, err := pg.WithInstance(sqlDB, &pg.Config{MigrationsTable: versionTable})
	if err != nil {
		return fmt.Errorf("migrate driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}

	if needsBaseline(sqlDB) {
		if latest := findLatestMigrationVersion(dir); latest > 0 {
			log.Printf("[MIGRATE] Untracked schema found, baselining to version %d", latest)
			if err := m.Force(int(latest)); err != nil {
				log.Printf("[MIGRATE] Baseline to %d failed: %v", latest, err)
			}
		}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	log.Printf("[MIGRATE] Schema up to date (%s)", dir)
	return nil
}

// needsBaseline reports whether the schema exists without migrate's version
// table. A failed lookup counts as a missing table.
func needsBaseline(db *sql.DB) bool {
	return tableExists(db, baselineTable) && !tableExists(db, versionTable)
}

func tableExists(db *sql.DB, name string) bool {
	var exists bool
	err := db.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)", name,
	).Scan(&exists)
	return err == nil && exists
}

// findLatestMigrationVersion returns the highest numeric prefix (000001_...)
// among the files in dir, or 0 if there are none.
func findLatestMigrationVersion(dir string) int64 {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}

	var latest int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		match := versionPrefix.FindStringSubmatch(e.Name())
		if match == nil {
			continue
		}
		if v, err := strconv.ParseInt(match[1], 10, 64); err == nil && v > latest {
			latest = v
		}
	}
	return latest
}
