package fleet

import (
	"encoding/json"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSeedBuildsStore(t *testing.T) {
	seed := DefaultSeed()
	require.Len(t, seed, 21)
	assert.True(t, seed[0].IsHub())
	assert.Equal(t, HubType, seed[0].Type)

	s, err := NewStore(seed)
	require.NoError(t, err)
	assert.Equal(t, "PreZero Service HUB", s.Hub().Location)
}

func TestLoadSeedAddsHub(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bins.json")
	raw, err := json.Marshal([]Bin{
		{ID: 1, Location: "Market Square", Type: "General", Lat: 52.02, Lon: 8.89, Fill: 85},
		{ID: 2, Location: "Museum", Type: "Organic", Lat: 52.03, Lon: 8.90, LastEmptiedDaysAgo: 9},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	bins, err := LoadSeed(path)
	require.NoError(t, err)
	require.Len(t, bins, 3)
	assert.Equal(t, DefaultHub(), bins[0])
	assert.Equal(t, StatusFull, bins[1].Status)
	assert.Equal(t, StatusInactive, bins[2].Status)

	_, err = NewStore(bins)
	require.NoError(t, err)
}

func TestLoadSeedErrors(t *testing.T) {
	_, err := LoadSeed(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":1}`), 0o644))
	_, err = LoadSeed(path)
	assert.Error(t, err)
}

func TestGenerateFixture(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 42))
	bins := GenerateFixture(rng, 25, FixtureCenterLat, FixtureCenterLon)
	require.Len(t, bins, 25)

	seen := make(map[string]bool)
	for i, b := range bins {
		assert.Equal(t, i+1, b.ID)
		assert.InDelta(t, FixtureCenterLat, b.Lat, 0.0041)
		assert.InDelta(t, FixtureCenterLon, b.Lon, 0.0041)
		assert.True(t, b.Fill <= 60 || b.Fill >= 80, "fill %d in the gap", b.Fill)
		assert.LessOrEqual(t, b.Fill, 100)
		assert.GreaterOrEqual(t, b.LastEmptiedDaysAgo, 0)
		assert.LessOrEqual(t, b.LastEmptiedDaysAgo, 10)
		assert.Contains(t, fixtureTypes, b.Type)
		assert.Equal(t, Classify(b, DefaultThresholds()), b.Status)
		assert.False(t, seen[b.Location], "duplicate location %q", b.Location)
		seen[b.Location] = true
	}
	assert.Equal(t, "Market Square 2", bins[20].Location)

	again := GenerateFixture(rand.New(rand.NewPCG(42, 42)), 25, FixtureCenterLat, FixtureCenterLon)
	assert.Equal(t, bins, again)
}
