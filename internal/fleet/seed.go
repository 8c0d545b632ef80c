package fleet

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
)

// DefaultHub is the depot every route starts and ends at.
func DefaultHub() Bin {
	return Bin{
		ID:       HubID,
		Location: "PreZero Service HUB",
		Type:     HubType,
		Lat:      52.038469,
		Lon:      8.882418,
		Status:   StatusOK,
	}
}

// DefaultSeed returns the hub plus the built-in bin fleet, all just emptied.
func DefaultSeed() []Bin {
	bins := []Bin{
		DefaultHub(),
		{ID: 1, Location: "Market Square", Type: "Paper", Lat: 52.0257, Lon: 8.8969},
		{ID: 2, Location: "Main Street", Type: "Glass", Lat: 52.0272, Lon: 8.8999},
		{ID: 3, Location: "Train Station", Type: "Organic", Lat: 52.0255, Lon: 8.8948},
		{ID: 4, Location: "City Library", Type: "Paper", Lat: 52.0279, Lon: 8.8947},
		{ID: 5, Location: "Town Hall", Type: "Paper", Lat: 52.0245, Lon: 8.9017},
		{ID: 6, Location: "Museum", Type: "Paper", Lat: 52.0309, Lon: 8.8965},
		{ID: 7, Location: "Central Park", Type: "Plastic", Lat: 52.0311, Lon: 8.8973},
		{ID: 8, Location: "Shopping Mall", Type: "Glass", Lat: 52.0313, Lon: 8.8950},
		{ID: 9, Location: "Community Center", Type: "Plastic", Lat: 52.0315, Lon: 8.8923},
		{ID: 10, Location: "Library Road", Type: "Glass", Lat: 52.0285, Lon: 8.8930},
		{ID: 11, Location: "Church Lane", Type: "Organic", Lat: 52.0262, Lon: 8.8901},
		{ID: 12, Location: "Fire Station", Type: "Glass", Lat: 52.0281, Lon: 8.8919},
		{ID: 13, Location: "Stadium Road", Type: "Plastic", Lat: 52.0302, Lon: 8.8898},
		{ID: 14, Location: "University Avenue", Type: "Paper", Lat: 52.0325, Lon: 8.8953},
		{ID: 15, Location: "Hospital Grounds", Type: "Plastic", Lat: 52.0334, Lon: 8.8941},
		{ID: 16, Location: "Bridge Street", Type: "Glass", Lat: 52.0341, Lon: 8.8961},
		{ID: 17, Location: "East Park", Type: "Organic", Lat: 52.0350, Lon: 8.8975},
		{ID: 18, Location: "West End", Type: "Glass", Lat: 52.0363, Lon: 8.8988},
		{ID: 19, Location: "Railway Crossing", Type: "Plastic", Lat: 52.0306, Lon: 8.9001},
		{ID: 20, Location: "Main Street 2", Type: "Paper", Lat: 52.0312, Lon: 8.8968},
	}
	for i := range bins {
		bins[i].Status = StatusOK
	}
	return bins
}

// LoadSeed reads a JSON array of bins. The default hub is added when the file
// does not define bin 0.
func LoadSeed(path string) ([]Bin, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load seed: %w", err)
	}
	var bins []Bin
	if err := json.Unmarshal(raw, &bins); err != nil {
		return nil, fmt.Errorf("load seed %q: %w", path, err)
	}
	hasHub := false
	for i := range bins {
		if bins[i].IsHub() {
			hasHub = true
		}
		bins[i].Status = Classify(bins[i], DefaultThresholds())
	}
	if !hasHub {
		bins = append([]Bin{DefaultHub()}, bins...)
	}
	return bins, nil
}

var fixtureLocations = []string{
	"Market Square", "Central Park", "Train Station", "City Library", "Town Hall",
	"Museum", "University Campus", "Sports Arena", "Shopping Center", "Hospital",
	"Post Office", "Fire Station", "Police Station", "Community Center", "Cinema",
	"Bus Station", "Parking Lot", "City Square", "Railway Crossing", "Main Street",
}

var fixtureTypes = []string{"General", "Recycling", "Organic"}

// Random fixtures are scattered around the town centre.
const (
	FixtureCenterLat = 52.0280
	FixtureCenterLon = 8.8980
)

// GenerateFixture scatters n bins within ±0.004° of center. Fill levels skew
// low: 60% in [0,60], 25% in [80,94], 15% in [95,100]. Elapsed days are drawn
// from [0,10] so some bins start inactive.
func GenerateFixture(rng *rand.Rand, n int, centerLat, centerLon float64) []Bin {
	bins := make([]Bin, 0, n)
	for i := 0; i < n; i++ {
		location := fixtureLocations[i%len(fixtureLocations)]
		if i >= len(fixtureLocations) {
			location = fmt.Sprintf("%s %d", location, i/len(fixtureLocations)+1)
		}
		b := Bin{
			ID:                 i + 1,
			Location:           location,
			Type:               fixtureTypes[rng.IntN(len(fixtureTypes))],
			Lat:                centerLat + (rng.Float64()*0.008 - 0.004),
			Lon:                centerLon + (rng.Float64()*0.008 - 0.004),
			Fill:               fixtureFill(rng),
			LastEmptiedDaysAgo: rng.IntN(11),
		}
		b.Status = Classify(b, DefaultThresholds())
		bins = append(bins, b)
	}
	return bins
}

func fixtureFill(rng *rand.Rand) int {
	switch roll := rng.IntN(100); {
	case roll < 60:
		return rng.IntN(61)
	case roll < 85:
		return 80 + rng.IntN(15)
	default:
		return 95 + rng.IntN(6)
	}
}
