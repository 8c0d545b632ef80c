package fleet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bintracker/internal/geo"
)

func TestComputeRouteEmpty(t *testing.T) {
	path := ComputeRoute(nil, DefaultHub())
	assert.NotNil(t, path)
	assert.Empty(t, path)
}

func TestComputeRouteSingleBin(t *testing.T) {
	hub := DefaultHub()
	b := Bin{ID: 5, Lat: 52.0245, Lon: 8.9017}

	path := ComputeRoute([]Bin{b}, hub)
	assert.Equal(t, []geo.Point{hub.Point(), b.Point(), hub.Point()}, path)
}

func TestComputeRouteGreedyOrder(t *testing.T) {
	hub := Bin{ID: HubID, Lat: 0, Lon: 0}
	bins := []Bin{
		{ID: 1, Lat: 0, Lon: 3},
		{ID: 2, Lat: 0, Lon: 1},
		{ID: 3, Lat: 0, Lon: 2},
		{ID: 4, Lat: 0, Lon: -0.5},
	}

	order := OrderStops(bins, hub)
	ids := make([]int, 0, len(order))
	for _, b := range order {
		ids = append(ids, b.ID)
	}
	// -0.5 is nearest to the hub; from there 1, 2, 3 follow along the equator.
	assert.Equal(t, []int{4, 2, 3, 1}, ids)
}

func TestComputeRouteTieBreakLowestID(t *testing.T) {
	hub := Bin{ID: HubID, Lat: 0, Lon: 0}
	bins := []Bin{
		{ID: 9, Lat: 0, Lon: 1},
		{ID: 3, Lat: 0, Lon: -1},
	}

	order := OrderStops(bins, hub)
	require.Len(t, order, 2)
	assert.Equal(t, 3, order[0].ID)
	assert.Equal(t, 9, order[1].ID)
}

func TestComputeRouteVisitsEveryBinOnce(t *testing.T) {
	seed := DefaultSeed()
	hub, bins := seed[0], seed[1:]

	path := ComputeRoute(bins, hub)
	require.Len(t, path, len(bins)+2)
	assert.Equal(t, hub.Point(), path[0])
	assert.Equal(t, hub.Point(), path[len(path)-1])

	seen := make(map[geo.Point]int)
	for _, p := range path[1 : len(path)-1] {
		seen[p]++
	}
	for _, b := range bins {
		assert.Equal(t, 1, seen[b.Point()], "bin %d", b.ID)
	}
}

func TestRouteDistance(t *testing.T) {
	assert.Equal(t, 0.0, RouteDistance(nil))

	hub := DefaultHub()
	b := DefaultSeed()[1]
	path := ComputeRoute([]Bin{b}, hub)
	assert.InDelta(t, 2*geo.Distance(hub.Point(), b.Point()), RouteDistance(path), 1e-9)
}
