package geo

import (
	"math"
	"sort"
	"sync"

	"github.com/dhconnelly/rtreego"
)

// Hit is a bin found by a radius query.
type Hit struct {
	ID         int     `json:"id"`
	DistanceKM float64 `json:"distance_km"`
}

// kmPerDegreeLat is the meridian length of one degree at R = 6371 km.
const kmPerDegreeLat = 2 * math.Pi * EarthRadiusKM / 360

// degenerate rects are rejected by rtreego, so points get a tiny extent
const pointTolerance = 1e-9

type indexedBin struct {
	id  int
	pt  Point
	box rtreego.Rect
}

func (b *indexedBin) Bounds() rtreego.Rect {
	return b.box
}

// InMemoryGeo is the fallback bin index used when Redis is unavailable. An
// R-tree over (lat, lon) narrows each query to a bounding box before the exact
// great-circle filter.
type InMemoryGeo struct {
	mu   sync.RWMutex
	tree *rtreego.Rtree
	bins map[int]*indexedBin
}

func NewInMemoryGeo() *InMemoryGeo {
	return &InMemoryGeo{
		tree: rtreego.NewTree(2, 25, 50),
		bins: make(map[int]*indexedBin),
	}
}

func (g *InMemoryGeo) Add(binID int, lat, lon float64) error {
	item := &indexedBin{
		id:  binID,
		pt:  Point{Lat: lat, Lon: lon},
		box: rtreego.Point{lat, lon}.ToRect(pointTolerance),
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.bins[binID]; ok {
		g.tree.Delete(prev)
	}
	g.bins[binID] = item
	g.tree.Insert(item)
	return nil
}

// Nearby returns bins within radiusKM of (lat, lon), nearest first with ties
// by id. A limit of zero or less returns every match.
func (g *InMemoryGeo) Nearby(lat, lon, radiusKM float64, limit int) ([]Hit, error) {
	origin := Point{Lat: lat, Lon: lon}
	box, err := searchBox(origin, radiusKM)
	if err != nil {
		return nil, err
	}

	g.mu.RLock()
	candidates := g.tree.SearchIntersect(box)
	g.mu.RUnlock()

	hits := make([]Hit, 0, len(candidates))
	for _, c := range candidates {
		b := c.(*indexedBin)
		if dist := Distance(origin, b.pt); dist <= radiusKM {
			hits = append(hits, Hit{ID: b.id, DistanceKM: dist})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].DistanceKM == hits[j].DistanceKM {
			return hits[i].ID < hits[j].ID
		}
		return hits[i].DistanceKM < hits[j].DistanceKM
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// searchBox is a lat/lon rectangle containing every point within radiusKM of
// origin. Near the poles it widens to all longitudes.
func searchBox(origin Point, radiusKM float64) (rtreego.Rect, error) {
	dLat := radiusKM/kmPerDegreeLat + pointTolerance
	dLon := 360.0
	if c := math.Cos(origin.Lat * math.Pi / 180); c > 1e-6 {
		dLon = math.Min(dLon, radiusKM/(kmPerDegreeLat*c)+pointTolerance)
	}
	return rtreego.NewRectFromPoints(
		rtreego.Point{origin.Lat - dLat, origin.Lon - dLon},
		rtreego.Point{origin.Lat + dLat, origin.Lon + dLon},
	)
}
