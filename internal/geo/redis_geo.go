package geo

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Index wraps a Redis GEO index for bins.
type Index struct {
	client *redis.Client
	key    string
}

func NewIndex(client *redis.Client) *Index {
	return &Index{client: client, key: "bins:geo"}
}

// AddBin stores/updates bin coordinates.
func (i *Index) AddBin(ctx context.Context, binID int, lat, lon float64) error {
	return i.client.GeoAdd(ctx, i.key, &redis.GeoLocation{
		Name:      strconv.Itoa(binID),
		Longitude: lon,
		Latitude:  lat,
	}).Err()
}

// Reset drops the whole index so stale members from an earlier seed vanish.
func (i *Index) Reset(ctx context.Context) error {
	return i.client.Del(ctx, i.key).Err()
}

// Ping reports whether the Redis server behind the index answers.
func (i *Index) Ping(ctx context.Context) error {
	return i.client.Ping(ctx).Err()
}

// Nearby finds bins within radius km, nearest first.
func (i *Index) Nearby(ctx context.Context, lat, lon, radiusKM float64, limit int) ([]Hit, error) {
	query := redis.GeoSearchQuery{
		Longitude:  lon,
		Latitude:   lat,
		Radius:     radiusKM,
		RadiusUnit: "km",
		Sort:       "ASC",
	}
	if limit > 0 {
		query.Count = limit
	}
	results, err := i.client.GeoSearchLocation(ctx, i.key, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: query,
		WithDist:       true,
	}).Result()
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(results))
	for _, loc := range results {
		id, err := strconv.Atoi(loc.Name)
		if err != nil {
			return nil, fmt.Errorf("geo index: bad member %q: %w", loc.Name, err)
		}
		hits = append(hits, Hit{ID: id, DistanceKM: loc.Dist})
	}
	return hits, nil
}
