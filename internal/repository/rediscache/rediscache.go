package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocomet/afya-transport/internal/domain/credit"
	"github.com/gocomet/afya-transport/internal/domain/geo"
	"github.com/gocomet/afya-transport/pkg/cache"
	"github.com/redis/go-redis/v9"
)

const (
	riderLocationsKey = "riders:locations"
	profileKeyPrefix  = "credit:profile:"
)

// RiderLocations mirrors rider positions into a Redis GEO set so nearby
// lookups do not scan the whole fleet.
type RiderLocations struct {
	client *redis.Client
}

// NewRiderLocations creates the GEO mirror
func NewRiderLocations(client *redis.Client) *RiderLocations {
	return &RiderLocations{client: client}
}

// Track records the rider position
func (r *RiderLocations) Track(ctx context.Context, riderID string, p geo.Point) error {
	return cache.GeoUpsert(ctx, r.client, riderLocationsKey, riderID, p.Latitude, p.Longitude)
}

// Untrack removes the rider from nearby searches
func (r *RiderLocations) Untrack(ctx context.Context, riderID string) error {
	return cache.GeoRemove(ctx, r.client, riderLocationsKey, riderID)
}

// Nearby returns rider ids within radiusKM of p, nearest first
func (r *RiderLocations) Nearby(ctx context.Context, p geo.Point, radiusKM float64, count int) ([]string, error) {
	locs, err := cache.GeoNearby(ctx, r.client, riderLocationsKey, p.Latitude, p.Longitude, radiusKM, count)
	if err != nil {
		return nil, fmt.Errorf("search rider locations: %w", err)
	}
	ids := make([]string, len(locs))
	for i, loc := range locs {
		ids[i] = loc.Name
	}
	return ids, nil
}

// ProfileCache stores computed credit profiles with a TTL
type ProfileCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewProfileCache creates a profile cache
func NewProfileCache(client *redis.Client, ttl time.Duration) *ProfileCache {
	return &ProfileCache{client: client, ttl: ttl}
}

// Get returns a cached profile. ok is false on a miss.
func (c *ProfileCache) Get(ctx context.Context, userID string) (*credit.Profile, bool, error) {
	var p credit.Profile
	err := cache.GetJSON(ctx, c.client, profileKeyPrefix+userID, &p)
	if errors.Is(err, cache.ErrMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &p, true, nil
}

// Set stores a profile
func (c *ProfileCache) Set(ctx context.Context, p *credit.Profile) error {
	return cache.SetJSON(ctx, c.client, profileKeyPrefix+p.UserID, p, c.ttl)
}

// Invalidate drops the cached profile of userID
func (c *ProfileCache) Invalidate(ctx context.Context, userID string) error {
	return cache.Delete(ctx, c.client, profileKeyPrefix+userID)
}
