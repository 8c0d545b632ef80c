package fleet

import (
	"math"

	"bintracker/internal/geo"
)

// ComputeRoute orders bins with the greedy nearest-neighbor heuristic and
// returns the coordinates of the tour, starting and ending at the hub. An
// empty input yields an empty path.
func ComputeRoute(bins []Bin, hub Bin) []geo.Point {
	return tourPath(OrderStops(bins, hub), hub)
}

// OrderStops returns bins in greedy visiting order from the hub. Equidistant
// candidates are resolved by lowest id.
func OrderStops(bins []Bin, hub Bin) []Bin {
	order := make([]Bin, 0, len(bins))
	visited := make([]bool, len(bins))
	current := hub.Point()
	for len(order) < len(bins) {
		best := -1
		bestDist := math.MaxFloat64
		for i, b := range bins {
			if visited[i] {
				continue
			}
			d := geo.Distance(current, b.Point())
			if best == -1 || d < bestDist || (d == bestDist && b.ID < bins[best].ID) {
				best = i
				bestDist = d
			}
		}
		visited[best] = true
		current = bins[best].Point()
		order = append(order, bins[best])
	}
	return order
}

func tourPath(order []Bin, hub Bin) []geo.Point {
	if len(order) == 0 {
		return []geo.Point{}
	}
	path := make([]geo.Point, 0, len(order)+2)
	path = append(path, hub.Point())
	for _, b := range order {
		path = append(path, b.Point())
	}
	return append(path, hub.Point())
}

// RouteDistance sums the leg lengths of path in kilometers.
func RouteDistance(path []geo.Point) float64 {
	total := 0.0
	for i := 1; i < len(path); i++ {
		total += geo.Distance(path[i-1], path[i])
	}
	return total
}
