package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
	"github.com/safar/marketplace-settlement/internal/config"
)

// NewConnection opens the pool and pings it, retrying with backoff so the API
// and cron jobs survive a database that is still starting.
func NewConnection(cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	backoff := 500 * time.Millisecond
	for attempt := 0; ; attempt++ {
		err = ping(db)
		if err == nil {
			return db, nil
		}
		if attempt >= cfg.ConnectRetries {
			break
		}

		log.Printf("database: ping failed (attempt %d/%d): %v", attempt+1, cfg.ConnectRetries+1, err)
		time.Sleep(backoff)
		backoff *= 2
	}

	db.Close()
	return nil, fmt.Errorf("ping database: %w", err)
}

func ping(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}
