package storage

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bintracker/internal/fleet"
)

func TestSchemaEmbedded(t *testing.T) {
	schema := string(schemaSQL)
	for _, table := range []string{"bins", "collection_events", "collect_keys"} {
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table)
	}
	assert.Len(t, schemaHash(), 64)
	assert.Equal(t, schemaHash(), schemaHash())
}

func TestIntConversions(t *testing.T) {
	assert.Equal(t, []int64{1, 20, 0}, int64s([]int{1, 20, 0}))
	assert.Equal(t, []int{4, 2}, ints([]int64{4, 2}))
	assert.Empty(t, ints(nil))

	wide := []int{4294967298, -5}
	assert.Equal(t, wide, ints(int64s(wide)))
}

// openTestPostgres connects to TEST_DATABASE_URL or skips.
func openTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := DefaultPool(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, ApplySchema(ctx, pool))
	// second run is a no-op
	require.NoError(t, ApplySchema(ctx, pool))
	return NewPostgres(pool)
}

func TestPostgresBinMirror(t *testing.T) {
	pg := openTestPostgres(t)
	ctx := context.Background()

	seed := fleet.DefaultSeed()
	require.NoError(t, pg.ReplaceBins(ctx, seed))

	got, err := pg.LoadBins(ctx)
	require.NoError(t, err)
	require.Len(t, got, len(seed))
	assert.Equal(t, seed[1].Location, got[1].Location)

	seed[1].Fill = 90
	seed[2].LastEmptiedDaysAgo = 9
	require.NoError(t, pg.SaveBins(ctx, seed))

	got, err = pg.LoadBins(ctx)
	require.NoError(t, err)
	assert.Equal(t, 90, got[1].Fill)
	assert.Equal(t, fleet.StatusFull, got[1].Status)
	assert.Equal(t, fleet.StatusInactive, got[2].Status)
}

func TestPostgresCollectionLog(t *testing.T) {
	pg := openTestPostgres(t)
	ctx := context.Background()

	before, err := pg.CountCollections(ctx)
	require.NoError(t, err)

	evt := fleet.CollectionEvent{
		ID:        uuid.NewString(),
		Requested: []int{1, 4294967298},
		Collected: []int{1},
		CreatedAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, pg.AppendCollection(ctx, evt))

	after, err := pg.CountCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, after)

	latest, err := pg.ListCollections(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, evt.ID, strings.ToLower(latest[0].ID))
	assert.Equal(t, evt.Requested, latest[0].Requested)
	assert.Equal(t, evt.Collected, latest[0].Collected)
}

func TestPostgresCollectKeys(t *testing.T) {
	pg := openTestPostgres(t)
	ctx := context.Background()
	keys := NewIdempotencyStore(pg.pool, time.Minute)

	key := "test-" + uuid.NewString()
	_, claimed, err := keys.Reserve(ctx, key)
	require.NoError(t, err)
	assert.True(t, claimed)

	_, claimed, err = keys.Reserve(ctx, key)
	assert.ErrorIs(t, err, fleet.ErrCollectInFlight)
	assert.False(t, claimed)

	require.NoError(t, keys.Complete(ctx, key, []int{3, 4294967298}))
	got, claimed, err := keys.Reserve(ctx, key)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, []int{3, 4294967298}, got)

	// Release leaves a completed key alone
	require.NoError(t, keys.Release(ctx, key))
	_, claimed, err = keys.Reserve(ctx, key)
	require.NoError(t, err)
	assert.False(t, claimed)

	_, err = keys.Purge(ctx)
	require.NoError(t, err)
}

func TestPostgresCollectKeyRelease(t *testing.T) {
	pg := openTestPostgres(t)
	ctx := context.Background()
	keys := NewIdempotencyStore(pg.pool, time.Minute)

	key := "test-" + uuid.NewString()
	_, claimed, err := keys.Reserve(ctx, key)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, keys.Release(ctx, key))

	_, claimed, err = keys.Reserve(ctx, key)
	require.NoError(t, err)
	assert.True(t, claimed)
}
