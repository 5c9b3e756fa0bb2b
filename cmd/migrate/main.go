package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"

	"github.com/ignite/campaign-dispatch/internal/config"
)

func main() {
	dir := flag.String("dir", "migrations", "directory holding the .sql migration files")
	list := flag.Bool("list", false, "show applied migrations and dispatch tables, then exit")
	flag.Parse()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS dispatch_schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		log.Fatalf("Failed to create migration ledger: %v", err)
	}

	if *list {
		showState(db)
		return
	}

	applied, err := appliedMigrations(db)
	if err != nil {
		log.Fatalf("Failed to read migration ledger: %v", err)
	}

	files, err := migrationFiles(*dir)
	if err != nil {
		log.Fatalf("Failed to read migrations dir %s: %v", *dir, err)
	}

	var ran, skipped int
	for _, f := range files {
		if applied[f] {
			skipped++
			continue
		}
		data, err := os.ReadFile(filepath.Join(*dir, f))
		if err != nil {
			log.Fatalf("Failed to read %s: %v", f, err)
		}
		if err := apply(db, f, string(data)); err != nil {
			log.Fatalf("Migration %s failed: %v", f, err)
		}
		log.Printf("Applied %s", f)
		ran++
	}
	log.Printf("Done: %d applied, %d already up to date", ran, skipped)
}

// apply runs one migration and records it in the ledger, both inside a
// single transaction so a failed migration leaves no trace.
func apply(db *sql.DB, filename, content string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(content); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"INSERT INTO dispatch_schema_migrations (filename) VALUES ($1)", filename); err != nil {
		return err
	}
	return tx.Commit()
}

func appliedMigrations(db *sql.DB) (map[string]bool, error) {
	rows, err := db.Query("SELECT filename FROM dispatch_schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := map[string]bool{}
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		applied[f] = true
	}
	return applied, rows.Err()
}

func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func showState(db *sql.DB) {
	rows, err := db.Query("SELECT filename, applied_at FROM dispatch_schema_migrations ORDER BY filename")
	if err != nil {
		log.Fatal(err)
	}
	defer rows.Close()
	fmt.Println("Applied migrations:")
	for rows.Next() {
		var f, at string
		rows.Scan(&f, &at)
		fmt.Printf("  %s  (%s)\n", f, at)
	}

	tables, err := db.Query("SELECT tablename FROM pg_tables WHERE schemaname='public' AND tablename LIKE 'dispatch_%' ORDER BY tablename")
	if err != nil {
		log.Fatal(err)
	}
	defer tables.Close()
	fmt.Println("Dispatch tables:")
	for tables.Next() {
		var t string
		tables.Scan(&t)
		fmt.Printf("  %s\n", t)
	}
}
