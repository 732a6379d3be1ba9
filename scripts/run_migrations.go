package main

import (
	"context"
	"log"
	"os"

	"github.com/safar/marketplace-settlement/internal/config"
	"github.com/safar/marketplace-settlement/internal/database"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run scripts/run_migrations.go [up|down]")
	}

	direction := os.Args[1]
	if direction != "up" && direction != "down" {
		log.Fatal("Direction must be 'up' or 'down'")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	count, err := database.Migrate(context.Background(), db, direction)
	if err != nil {
		log.Fatalf("Migrate: %v", err)
	}

	log.Printf("Successfully ran %d migration(s) %s", count, direction)
}
