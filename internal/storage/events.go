package storage

import (
	"context"
	"fmt"

	"bintracker/internal/fleet"
)

func (p *Postgres) AppendCollection(ctx context.Context, evt fleet.CollectionEvent) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO collection_events (id, requested, collected, created_at)
VALUES ($1,$2,$3,$4)
`, evt.ID, int64s(evt.Requested), int64s(evt.Collected), evt.CreatedAt)
	if err != nil {
		return fmt.Errorf("append collection: %w", err)
	}
	return nil
}

// ListCollections returns logged collections, newest first.
func (p *Postgres) ListCollections(ctx context.Context, limit, offset int) ([]fleet.CollectionEvent, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id::text, requested, collected, created_at
FROM collection_events
ORDER BY created_at DESC
LIMIT $1 OFFSET $2
`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()
	out := make([]fleet.CollectionEvent, 0, limit)
	for rows.Next() {
		var (
			evt                  fleet.CollectionEvent
			requested, collected []int64
		)
		if err := rows.Scan(&evt.ID, &requested, &collected, &evt.CreatedAt); err != nil {
			return nil, fmt.Errorf("list collections: %w", err)
		}
		evt.Requested = ints(requested)
		evt.Collected = ints(collected)
		out = append(out, evt)
	}
	return out, rows.Err()
}

func (p *Postgres) CountCollections(ctx context.Context) (int, error) {
	var count int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM collection_events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count collections: %w", err)
	}
	return count, nil
}

// Bin ids are stored as BIGINT so every Go int round-trips.
func int64s(in []int) []int64 {
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}

func ints(in []int64) []int {
	out := make([]int, len(in))
	for i, v := range in {
		out[i] = int(v)
	}
	return out
}
