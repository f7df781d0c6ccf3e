// Package testutil provides shared test infrastructure for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// PGTest opens a test database connection, runs all migrations from the
// migrations/ directory, and returns the *sql.DB plus a cleanup function.
//
// Tests should call this at the top:
//
//	db, cleanup := testutil.PGTest(t)
//	defer cleanup()
//
// If POSTGRES_URL is set, that database is used. Otherwise a disposable
// Postgres 16 container is started; when Docker is unavailable too, the
// test is skipped. The cleanup function truncates all application tables
// (not system tables).
func PGTest(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	dbURL := os.Getenv("POSTGRES_URL")
	if dbURL == "" {
		dbURL = startContainer(t)
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("pgtest: open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		t.Fatalf("pgtest: connect to database: %v", err)
	}

	ctx := context.Background()

	// Find and run all migrations in order.
	migrationsDir := findMigrationsDir(t)
	if err := runMigrations(ctx, db, migrationsDir); err != nil {
		_ = db.Close()
		t.Fatalf("pgtest: run migrations: %v", err)
	}

	cleanup := func() {
		// Truncate all application tables.
		truncateAll(ctx, db)
		_ = db.Close()
	}

	return db, cleanup
}

// startContainer boots a throwaway Postgres and returns its DSN. The
// container is terminated when the test (and its subtests) finish.
func startContainer(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("short mode: skipping containerized integration test")
	}

	ctx := context.Background()
	pgC, err := postgres.Run(ctx,
		"postgres:16",
		postgres.WithDatabase("admincore_test"),
		postgres.WithUsername("admincore"),
		postgres.WithPassword("admincore"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("pgtest: could not start postgres container (set POSTGRES_URL to use an existing database): %v", err)
	}
	t.Cleanup(func() { _ = pgC.Terminate(context.Background()) })

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("pgtest: container connection string: %v", err)
	}
	return dsn
}

// findMigrationsDir walks up from the test working directory to find
// the project-level migrations/ directory.
func findMigrationsDir(t *testing.T) string {
	t.Helper()

	// Start from the current working directory and walk up.
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("pgtest: getwd: %v", err)
	}

	for {
		candidate := filepath.Join(dir, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("pgtest: could not find migrations/ directory walking up from cwd")
		}
		dir = parent
	}
}

// runMigrations applies all goose migrations from the directory, the same
// way cmd/migrate does in production.
func runMigrations(ctx context.Context, db *sql.DB, dir string) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	goose.SetLogger(goose.NopLogger())
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// truncateAll truncates all user-created tables to provide a clean slate
// between tests. Uses TRUNCATE ... CASCADE to handle foreign keys.
func truncateAll(ctx context.Context, db *sql.DB) {
	rows, err := db.QueryContext(ctx, `
		SELECT tablename FROM pg_tables
		WHERE schemaname = 'public'
		  AND tablename NOT LIKE 'pg_%'
		  AND tablename NOT LIKE 'sql_%'
		  AND tablename != 'goose_db_version'
	`)
	if err != nil {
		return
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err == nil {
			tables = append(tables, name)
		}
	}

	if len(tables) > 0 {
		// TRUNCATE all at once with CASCADE to handle FK dependencies.
		// Table names come from pg_tables system catalog, not user input.
		stmt := "TRUNCATE " + strings.Join(tables, ", ") + " CASCADE" // #nosec G202 -- table names from pg_tables, not user input
		_, _ = db.ExecContext(ctx, stmt)                              // #nosec G104 -- best-effort cleanup in test teardown
	}
}
