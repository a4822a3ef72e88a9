package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type snapshot struct {
	PackID string  `json:"pack_id"`
	Score  float64 `json:"score"`
}

func exerciseCache(t *testing.T, c Cache) {
	t.Helper()
	ctx := context.Background()

	var got snapshot
	hit, err := c.Get(ctx, "pack:score:p1", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Set(ctx, "pack:score:p1", snapshot{PackID: "p1", Score: 4.5}, time.Minute))
	hit, err = c.Get(ctx, "pack:score:p1", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, snapshot{PackID: "p1", Score: 4.5}, got)

	require.NoError(t, c.Delete(ctx, "pack:score:p1"))
	hit, err = c.Get(ctx, "pack:score:p1", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestInMemoryCache(t *testing.T) {
	c := NewInMemoryCache(time.Minute, time.Minute)
	defer c.Stop()
	exerciseCache(t, c)
}

func TestInMemoryCache_Expiry(t *testing.T) {
	c := NewInMemoryCache(time.Minute, time.Minute)
	defer c.Stop()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", 1, time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	var v int
	hit, err := c.Get(ctx, "k", &v)
	require.NoError(t, err)
	assert.False(t, hit)
	c.Stop()
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := NewRedisCache(client, "omnizap:", time.Minute)
	exerciseCache(t, c)

	require.NoError(t, c.Set(context.Background(), "ttl", 1, 0))
	assert.Equal(t, time.Minute, mr.TTL("omnizap:ttl"))
}

func TestAsyncCacheSet(t *testing.T) {
	c := NewInMemoryCache(time.Minute, time.Minute)
	defer c.Stop()

	<-AsyncCacheSet(c, "k", snapshot{PackID: "p"}, time.Minute, zap.NewNop())

	var got snapshot
	hit, err := c.Get(context.Background(), "k", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "p", got.PackID)

	<-AsyncCacheDelete(c, "k", zap.NewNop())
	hit, _ = c.Get(context.Background(), "k", &got)
	assert.False(t, hit)

	<-AsyncCacheSet(nil, "k", 1, time.Minute, zap.NewNop())
}
