package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bintracker/internal/fleet"
)

// Postgres mirrors the bin table and keeps the collection log.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func DefaultPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConnLifetime = time.Hour
	return pgxpool.NewWithConfig(ctx, cfg)
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

const upsertBin = `
INSERT INTO bins (id, location, bin_type, latitude, longitude, fill_level, last_emptied_days_ago, status, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
ON CONFLICT (id) DO UPDATE SET
	fill_level = EXCLUDED.fill_level,
	last_emptied_days_ago = EXCLUDED.last_emptied_days_ago,
	status = EXCLUDED.status,
	updated_at = EXCLUDED.updated_at
`

// SaveBins upserts the whole snapshot in one transaction. The stored status is
// the default-threshold classification at commit time.
func (p *Postgres) SaveBins(ctx context.Context, bins []fleet.Bin) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("save bins: %w", err)
	}
	defer tx.Rollback(ctx)

	th := fleet.DefaultThresholds()
	batch := &pgx.Batch{}
	for _, b := range bins {
		batch.Queue(upsertBin, b.ID, b.Location, b.Type, b.Lat, b.Lon, b.Fill, b.LastEmptiedDaysAgo, string(fleet.Classify(b, th)))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save bins: %w", err)
	}
	return tx.Commit(ctx)
}

// ReplaceBins empties the table and loads bins, so the mirror starts from the
// same seed as the in-memory store.
func (p *Postgres) ReplaceBins(ctx context.Context, bins []fleet.Bin) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("replace bins: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `TRUNCATE bins`); err != nil {
		return fmt.Errorf("replace bins: %w", err)
	}
	th := fleet.DefaultThresholds()
	rows := make([][]any, 0, len(bins))
	for _, b := range bins {
		rows = append(rows, []any{b.ID, b.Location, b.Type, b.Lat, b.Lon, b.Fill, b.LastEmptiedDaysAgo, string(fleet.Classify(b, th))})
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"bins"},
		[]string{"id", "location", "bin_type", "latitude", "longitude", "fill_level", "last_emptied_days_ago", "status"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("replace bins: copy: %w", err)
	}
	return tx.Commit(ctx)
}

func (p *Postgres) LoadBins(ctx context.Context) ([]fleet.Bin, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, location, bin_type, latitude, longitude, fill_level, last_emptied_days_ago, status
FROM bins
ORDER BY id
`)
	if err != nil {
		return nil, fmt.Errorf("load bins: %w", err)
	}
	defer rows.Close()
	var out []fleet.Bin
	for rows.Next() {
		var (
			b      fleet.Bin
			status string
		)
		if err := rows.Scan(&b.ID, &b.Location, &b.Type, &b.Lat, &b.Lon, &b.Fill, &b.LastEmptiedDaysAgo, &status); err != nil {
			return nil, fmt.Errorf("load bins: %w", err)
		}
		b.Status = fleet.Status(status)
		out = append(out, b)
	}
	return out, rows.Err()
}
