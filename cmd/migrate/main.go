package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"sort"

	"wager-settlement/internal/config"
	"wager-settlement/internal/database"
)

func main() {
	sqlDir := flag.String("sql-dir", "", "directory of .sql files applied in name order after the schema migration")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	if err := database.Connect(cfg.Database.Driver, cfg.GetDSN()); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to migrate schema: %v", err)
	}
	log.Println("Schema migrated")

	if *sqlDir == "" {
		return
	}

	files, err := filepath.Glob(filepath.Join(*sqlDir, "*.sql"))
	if err != nil {
		log.Fatalf("Failed to list migration files: %v", err)
	}
	sort.Strings(files)

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			log.Fatalf("Failed to read migration file: %v", err)
		}

		log.Printf("Applying migration: %s", filepath.Base(file))
		if err := database.GetDB().Exec(string(sqlBytes)).Error; err != nil {
			log.Fatalf("Failed to apply migration %s: %v", filepath.Base(file), err)
		}
	}

	log.Printf("Applied %d migration files", len(files))
}
