package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bintracker/internal/fleet"
)

// IdempotencyStore persists collect replay keys with a TTL. A key row with a
// NULL collected column is held by a request that has not finished yet.
type IdempotencyStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

func NewIdempotencyStore(pool *pgxpool.Pool, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &IdempotencyStore{pool: pool, ttl: ttl}
}

// Reserve inserts a pending row for key, or takes over an expired one. When a
// live row exists it returns its result, or fleet.ErrCollectInFlight if that
// row is still pending.
func (s *IdempotencyStore) Reserve(ctx context.Context, key string) ([]int, bool, error) {
	var held string
	err := s.pool.QueryRow(ctx, `
INSERT INTO collect_keys (key, collected, expires_at)
VALUES ($1, NULL, $2)
ON CONFLICT (key) DO UPDATE SET collected = NULL, expires_at = EXCLUDED.expires_at
WHERE collect_keys.expires_at < NOW()
RETURNING key
`, key, time.Now().Add(s.ttl)).Scan(&held)
	if err == nil {
		return nil, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("reserve collect key: %w", err)
	}

	var collected []int64
	err = s.pool.QueryRow(ctx, `SELECT collected FROM collect_keys WHERE key = $1`, key).Scan(&collected)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// released between the insert and the read
			return nil, false, fleet.ErrCollectInFlight
		}
		return nil, false, fmt.Errorf("reserve collect key: %w", err)
	}
	if collected == nil {
		return nil, false, fleet.ErrCollectInFlight
	}
	return ints(collected), false, nil
}

func (s *IdempotencyStore) Complete(ctx context.Context, key string, collected []int) error {
	_, err := s.pool.Exec(ctx, `
UPDATE collect_keys SET collected = $2, expires_at = $3 WHERE key = $1
`, key, int64s(collected), time.Now().Add(s.ttl))
	if err != nil {
		return fmt.Errorf("complete collect key: %w", err)
	}
	return nil
}

// Release drops a pending key so the request can be retried.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM collect_keys WHERE key = $1 AND collected IS NULL`, key)
	if err != nil {
		return fmt.Errorf("release collect key: %w", err)
	}
	return nil
}

// Purge deletes expired keys and reports how many were removed.
func (s *IdempotencyStore) Purge(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM collect_keys WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("purge collect keys: %w", err)
	}
	return tag.RowsAffected(), nil
}
