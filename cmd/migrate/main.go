// Command migrate manages the admincore schema via goose.
//
// Usage:
//
//	go run ./cmd/migrate up          # Apply all pending migrations
//	go run ./cmd/migrate down        # Roll back the last migration
//	go run ./cmd/migrate status      # Show migration status
//	go run ./cmd/migrate version     # Show current schema version
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: migrate <command> [args]")
		fmt.Println("Commands: up, down, status, version, redo, up-to <version>, down-to <version>")
		os.Exit(1)
	}

	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is required (the server runs in-memory without it, but migrations need a database)")
	}

	dir := os.Getenv("MIGRATIONS_DIR")
	if dir == "" {
		dir = "migrations"
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("goose dialect: %v", err)
	}

	command := os.Args[1]
	if err := goose.RunContext(context.Background(), command, db, dir, os.Args[2:]...); err != nil {
		log.Fatalf("Migration %s failed: %v", command, err)
	}
}
