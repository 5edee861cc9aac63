package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore keeps keys in the kv_state table. It relies on the health_check,
// kv_get, kv_set and kv_remove prepared statements registered by the db
// package.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wraps a pool created by db.New.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, "kv_get", key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv get %q: %w", key, err)
	}
	return value, nil
}

func (s *PGStore) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.pool.Exec(ctx, "kv_set", key, string(value)); err != nil {
		return fmt.Errorf("kv set %q: %w", key, err)
	}
	return nil
}

func (s *PGStore) Remove(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, "kv_remove", key); err != nil {
		return fmt.Errorf("kv remove %q: %w", key, err)
	}
	return nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (s *PGStore) HealthCheck(ctx context.Context) error {
	var n int
	if err := s.pool.QueryRow(ctx, "health_check").Scan(&n); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}
