package rediscache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/gocomet/afya-transport/internal/domain/credit"
	"github.com/gocomet/afya-transport/internal/domain/geo"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// redisClient connects to REDIS_ADDR or skips the test
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRiderLocations_Nearby(t *testing.T) {
	client := redisClient(t)
	ctx := context.Background()
	locs := NewRiderLocations(client)

	near, far := "near-"+uuid.NewString(), "far-"+uuid.NewString()
	pickup := geo.Point{Latitude: -1.1743, Longitude: 36.8356}

	require.NoError(t, locs.Track(ctx, near, geo.Point{Latitude: -1.1833, Longitude: 36.8356}))
	require.NoError(t, locs.Track(ctx, far, geo.Point{Latitude: -1.4000, Longitude: 36.8356}))
	t.Cleanup(func() {
		locs.Untrack(ctx, near)
		locs.Untrack(ctx, far)
	})

	ids, err := locs.Nearby(ctx, pickup, 5, 0)
	require.NoError(t, err)
	assert.Contains(t, ids, near)
	assert.NotContains(t, ids, far)

	require.NoError(t, locs.Untrack(ctx, near))
	ids, err = locs.Nearby(ctx, pickup, 5, 0)
	require.NoError(t, err)
	assert.NotContains(t, ids, near)
}

func TestProfileCache_RoundTripAndInvalidate(t *testing.T) {
	client := redisClient(t)
	ctx := context.Background()
	c := NewProfileCache(client, time.Minute)
	userID := "user-" + uuid.NewString()

	_, ok, err := c.Get(ctx, userID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, &credit.Profile{UserID: userID, Score: 640, TrustLevel: credit.TrustSilver}))

	p, ok, err := c.Get(ctx, userID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 640, p.Score)

	require.NoError(t, c.Invalidate(ctx, userID))
	_, ok, err = c.Get(ctx, userID)
	require.NoError(t, err)
	assert.False(t, ok)
}
