package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Rrens/slack-gpt/internal/config"
	"github.com/Rrens/slack-gpt/internal/repository/postgres"
	"github.com/joho/godotenv"
)

func main() {
	down := flag.Bool("down", false, "roll back instead of applying migrations")
	steps := flag.Int("steps", 1, "number of migrations to roll back with -down")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	pg := cfg.Database.Postgres
	fmt.Printf("Connecting to database at %s:%d...\n", pg.Host, pg.Port)

	if *down {
		err = postgres.RollbackMigrations(pg.DSN(), *steps)
	} else {
		err = postgres.RunMigrations(pg.DSN())
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Migrations complete")
}
