// README: Driver position index backed by Redis GEO.
package location

import (
	"context"

	"github.com/redis/go-redis/v9"

	"rideservice/internal/types"
)

const driverGeoKey = "dispatch:drivers"

// Index tracks driver coordinates in a Redis GEO set so radius queries do not
// scan the whole driver table.
type Index struct {
	redis *redis.Client
}

func NewIndex(redis *redis.Client) *Index {
	return &Index{redis: redis}
}

func (i *Index) Upsert(ctx context.Context, id types.ID, pos types.Point) error {
	return i.redis.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: pos.Lng,
		Latitude:  pos.Lat,
	}).Err()
}

func (i *Index) Remove(ctx context.Context, id types.ID) error {
	return i.redis.ZRem(ctx, driverGeoKey, string(id)).Err()
}

// Within returns driver IDs inside radiusKm of center, nearest first.
func (i *Index) Within(ctx context.Context, center types.Point, radiusKm float64) ([]types.ID, error) {
	results, err := i.redis.GeoSearch(ctx, driverGeoKey, &redis.GeoSearchQuery{
		Longitude:  center.Lng,
		Latitude:   center.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for n, r := range results {
		ids[n] = types.ID(r)
	}
	return ids, nil
}
