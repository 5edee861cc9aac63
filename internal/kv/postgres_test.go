package kv

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/cerberusteck/sirse-watch/internal/config"
	"github.com/cerberusteck/sirse-watch/internal/db"
)

// Integration test against a real Postgres; skipped unless TEST_DATABASE_URL is set.
func TestPGStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := db.New(ctx, &config.Config{DatabaseURL: dsn, DBPoolMinConns: 1, DBPoolMaxConns: 2, DBPoolMaxLife: 30 * time.Minute})
	if err != nil {
		t.Fatalf("database unavailable: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, "TRUNCATE kv_state"); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	store := NewPGStore(pool.Pool)
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	exerciseStore(t, store)
}
