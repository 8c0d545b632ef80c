package geo

import "github.com/umahmood/haversine"

const EarthRadiusKM = 6371.0

// Point is a position in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Distance returns the great-circle distance between a and b in kilometers
// (Haversine, earth radius 6371 km).
func Distance(a, b Point) float64 {
	if a == b {
		return 0
	}
	_, km := haversine.Distance(
		haversine.Coord{Lat: a.Lat, Lon: a.Lon},
		haversine.Coord{Lat: b.Lat, Lon: b.Lon},
	)
	return km
}
