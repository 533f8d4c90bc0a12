package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/subplane/subplane/internal/config"
	"github.com/subplane/subplane/internal/logger"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

func main() {
	// Parse command line flags
	dryRun := flag.Bool("dry-run", false, "Print migration SQL without executing it")
	dir := flag.String("dir", "./migrations", "Directory containing migration files")
	flag.Parse()

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	migrations, err := loadMigrations(*dir)
	if err != nil {
		logger.Fatalw("Failed to load migrations", "error", err, "dir", *dir)
	}

	if *dryRun {
		logger.Info("Dry run mode - printing migration SQL without executing")
		for _, m := range migrations {
			fmt.Printf("-- %s\n%s\n", m.name, m.sql)
		}
		return
	}

	dsn := cfg.Postgres.GetDSN()
	logger.Infow("Connecting to database", "host", cfg.Postgres.Host)

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		logger.Fatalw("Failed to connect to postgres", "error", err)
	}
	defer db.Close()

	logger.Info("Running database migrations...")
	for _, m := range migrations {
		if _, err := db.Exec(m.sql); err != nil {
			logger.Fatalw("Migration failed", "migration", m.name, "error", err)
		}
		logger.Infow("Applied migration", "migration", m.name)
	}

	fmt.Println("Migration process completed")
}

type migration struct {
	name string
	sql  string
}

// loadMigrations reads *.sql files in lexical order. Statements are
// idempotent (IF NOT EXISTS), so re-running the full set is safe.
func loadMigrations(dir string) ([]migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var migrations []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, migration{name: entry.Name(), sql: string(content)})
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].name < migrations[j].name })
	return migrations, nil
}
